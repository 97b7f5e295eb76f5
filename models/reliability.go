package models

import (
	"fmt"
	"strings"
)

// RiskLevel is the ordered hallucination-risk scale
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"safe", "low_risk", "medium_risk", "high_risk", "critical"}

func (l RiskLevel) String() string {
	if l < RiskSafe || l > RiskCritical {
		return fmt.Sprintf("risk(%d)", int(l))
	}
	return riskNames[l]
}

// ParseRiskLevel converts a level name back into a RiskLevel
func ParseRiskLevel(s string) (RiskLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range riskNames {
		if n == name {
			return RiskLevel(i), nil
		}
	}
	return RiskSafe, fmt.Errorf("unknown risk level %q", s)
}

// MarshalText lets levels appear by name in JSON and YAML
func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *RiskLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MaxRisk returns the more severe of two levels
func MaxRisk(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}

// IssueKind names the check that raised an issue
type IssueKind string

const (
	IssueRedFlag            IssueKind = "red_flag"
	IssueUncertainty        IssueKind = "uncertainty_indicator"
	IssueLowSourceCoverage  IssueKind = "low_source_coverage"
	IssueSuspiciousCitation IssueKind = "suspicious_citation"
)

// Issue is a single finding of the hallucination detector
type Issue struct {
	Kind        IssueKind `json:"kind"`
	Level       RiskLevel `json:"level"`
	Message     string    `json:"message"`
	MatchedText string    `json:"matched_text,omitempty"`
}

// IsCritical reports whether the issue blocks an answer outright.
// A known fabrication (high risk or worse) counts as critical.
func (i Issue) IsCritical() bool {
	return i.Level >= RiskHigh
}

// ReliabilityAssessment is the per-answer verdict of the hallucination detector
type ReliabilityAssessment struct {
	Level           RiskLevel `json:"level"`
	Confidence      float64   `json:"confidence"`
	Issues          []Issue   `json:"issues"`
	SourceCoverage  float64   `json:"source_coverage"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

// HasCritical reports whether any issue is critical
func (a ReliabilityAssessment) HasCritical() bool {
	for _, issue := range a.Issues {
		if issue.IsCritical() {
			return true
		}
	}
	return false
}

// MaxIssueLevel returns the highest level among the issues (safe when there are none)
func (a ReliabilityAssessment) MaxIssueLevel() RiskLevel {
	level := RiskSafe
	for _, issue := range a.Issues {
		level = MaxRisk(level, issue.Level)
	}
	return level
}
