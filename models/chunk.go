package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrInvalidChunk is returned when a chunk record violates the corpus invariants
var ErrInvalidChunk = errors.New("invalid chunk")

// Category is the topical category a chunk belongs to
type Category string

const (
	CategoryGeneralLaw      Category = "law"
	CategorySpecialLists    Category = "special_lists"
	CategoryOmarket         Category = "omarket"  // platform A: e-shop instructions
	CategoryGoszakup        Category = "goszakup" // platform B: procurement portal instructions
	CategoryCivilCode       Category = "civil_code"
	CategoryTaxCode         Category = "tax_code"
	CategoryConflictingNorm Category = "conflicting_norm"
)

var knownCategories = map[Category]bool{
	CategoryGeneralLaw:      true,
	CategorySpecialLists:    true,
	CategoryOmarket:         true,
	CategoryGoszakup:        true,
	CategoryCivilCode:       true,
	CategoryTaxCode:         true,
	CategoryConflictingNorm: true,
}

// Valid reports whether c is one of the fixed categories
func (c Category) Valid() bool {
	return knownCategories[c]
}

// IsPlatform reports whether c tags platform instructions
func (c Category) IsPlatform() bool {
	return c == CategoryOmarket || c == CategoryGoszakup
}

// SourceKind is the kind of document a chunk was cut from
type SourceKind string

const (
	SourceStatute     SourceKind = "law"
	SourceRegulation  SourceKind = "rules"
	SourceInstruction SourceKind = "instruction"
	SourceCodex       SourceKind = "codex"
)

func (k SourceKind) Valid() bool {
	switch k {
	case SourceStatute, SourceRegulation, SourceInstruction, SourceCodex:
		return true
	}
	return false
}

// LocatorKind tells which structural locator a chunk carries
type LocatorKind string

const (
	LocatorNone       LocatorKind = ""
	LocatorChapter    LocatorKind = "chapter"
	LocatorArticle    LocatorKind = "article"
	LocatorParagraphs LocatorKind = "paragraphs"
)

// Locator points at the place of a chunk inside its source document
type Locator struct {
	Kind  LocatorKind `json:"kind,omitempty"`
	Value string      `json:"value,omitempty"`
}

// Chunk is an immutable unit of retrievable legal or instructional text
type Chunk struct {
	ID            string     `json:"id"`
	DocumentShort string     `json:"document_short"`
	DocumentName  string     `json:"document_name"`
	SourceKind    SourceKind `json:"source_type"`
	Category      Category   `json:"category"`
	Chapter       string     `json:"chapter,omitempty"`
	Locator       Locator    `json:"locator"`
	Text          string     `json:"text"`
	OfficialURL   string     `json:"official_url"`
	CharCount     int        `json:"char_count"`
}

// ChunkParams is the loosely-typed shape of a chunk as it comes out of ingestion
// or a database row. At most one of ChapterNum, ArticleNum and ParagraphRange may be set.
type ChunkParams struct {
	ID             string  `json:"id"`
	DocumentShort  string  `json:"document_short"`
	DocumentName   string  `json:"document_name"`
	SourceKind     string  `json:"source_type"`
	Category       string  `json:"category"`
	Chapter        string  `json:"chapter"`
	ChapterNum     *string `json:"chapter_num"`
	ArticleNum     *string `json:"article_num"`
	ParagraphRange *string `json:"punkt_range"`
	Text           string  `json:"text"`
	OfficialURL    string  `json:"official_url"`
	CharCount      int     `json:"char_count"`
}

// NewChunk validates params and builds a Chunk
func NewChunk(p ChunkParams) (Chunk, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return Chunk{}, fmt.Errorf("%w: empty id", ErrInvalidChunk)
	}

	category := Category(strings.TrimSpace(p.Category))
	if !category.Valid() {
		return Chunk{}, fmt.Errorf("%w: chunk %s has unknown category %q", ErrInvalidChunk, id, p.Category)
	}

	kind := SourceKind(strings.TrimSpace(p.SourceKind))
	if !kind.Valid() {
		return Chunk{}, fmt.Errorf("%w: chunk %s has unknown source type %q", ErrInvalidChunk, id, p.SourceKind)
	}

	var locator Locator
	set := 0
	for _, candidate := range []struct {
		kind  LocatorKind
		value *string
	}{
		{LocatorChapter, p.ChapterNum},
		{LocatorArticle, p.ArticleNum},
		{LocatorParagraphs, p.ParagraphRange},
	} {
		if candidate.value == nil || strings.TrimSpace(*candidate.value) == "" {
			continue
		}
		set++
		locator = Locator{Kind: candidate.kind, Value: strings.TrimSpace(*candidate.value)}
	}
	if set > 1 {
		return Chunk{}, fmt.Errorf("%w: chunk %s has %d structural locators, at most one allowed", ErrInvalidChunk, id, set)
	}

	charCount := p.CharCount
	if charCount <= 0 {
		charCount = utf8.RuneCountInString(p.Text)
	}

	return Chunk{
		ID:            id,
		DocumentShort: p.DocumentShort,
		DocumentName:  p.DocumentName,
		SourceKind:    kind,
		Category:      category,
		Chapter:       p.Chapter,
		Locator:       locator,
		Text:          p.Text,
		OfficialURL:   p.OfficialURL,
		CharCount:     charCount,
	}, nil
}

// Heading returns the human-readable heading used when rendering the chunk
func (c Chunk) Heading() string {
	switch c.Locator.Kind {
	case LocatorArticle:
		if c.Chapter != "" {
			return fmt.Sprintf("Статья %s. %s", c.Locator.Value, c.Chapter)
		}
		return "Статья " + c.Locator.Value
	case LocatorParagraphs:
		if c.Chapter != "" {
			return fmt.Sprintf("%s (пункты %s)", c.Chapter, c.Locator.Value)
		}
		return "Пункты " + c.Locator.Value
	case LocatorChapter:
		if c.Chapter != "" {
			return fmt.Sprintf("Глава %s. %s", c.Locator.Value, c.Chapter)
		}
		return "Глава " + c.Locator.Value
	}
	return c.Chapter
}
