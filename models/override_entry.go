package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOverride is returned when an override-list row violates its invariants
var ErrInvalidOverride = errors.New("invalid override entry")

// ListType identifies the regulatory list an override entry comes from
type ListType string

const (
	// ListAuthorityDetermined: the procurement method is set by the authorized body
	ListAuthorityDetermined ListType = "authority_determined"
	// ListDisabilityOrg: items reserved for organizations of persons with disabilities
	ListDisabilityOrg ListType = "disability_org"
	// ListSmallBusiness: items reserved for small and medium businesses
	ListSmallBusiness ListType = "small_business"
)

// ListTypes is the fixed rendering order of override lists
var ListTypes = []ListType{ListAuthorityDetermined, ListDisabilityOrg, ListSmallBusiness}

func (t ListType) Valid() bool {
	for _, lt := range ListTypes {
		if t == lt {
			return true
		}
	}
	return false
}

// OverrideEntry is a product/service/work item whose procurement method is fixed
// by a specific regulatory list, overriding the general rule
type OverrideEntry struct {
	Num                 int      `json:"num"`
	Name                string   `json:"name"`
	Method              string   `json:"method"`
	Basis               string   `json:"basis"`
	BasisURL            string   `json:"basis_url"`
	ListType            ListType `json:"list_type"`
	Subsection          string   `json:"subsection,omitempty"`
	ClassificationCodes string   `json:"classification_codes,omitempty"`
}

// Validate checks the single-row invariants
func (e OverrideEntry) Validate() error {
	if !e.ListType.Valid() {
		return fmt.Errorf("%w: unknown list type %q", ErrInvalidOverride, e.ListType)
	}
	if e.Num <= 0 {
		return fmt.Errorf("%w: %s entry has non-positive number %d", ErrInvalidOverride, e.ListType, e.Num)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: %s entry %d has empty name", ErrInvalidOverride, e.ListType, e.Num)
	}
	return nil
}

// ValidateOverrideList checks that every entry belongs to listType and
// that sequence numbers are unique within it
func ValidateOverrideList(listType ListType, entries []OverrideEntry) error {
	if !listType.Valid() {
		return fmt.Errorf("%w: unknown list type %q", ErrInvalidOverride, listType)
	}
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.ListType != listType {
			return fmt.Errorf("%w: entry %d belongs to %s, expected %s", ErrInvalidOverride, e.Num, e.ListType, listType)
		}
		if seen[e.Num] {
			return fmt.Errorf("%w: duplicate number %d in %s", ErrInvalidOverride, e.Num, listType)
		}
		seen[e.Num] = true
	}
	return nil
}
