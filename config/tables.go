package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"procurement-assistant/models"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

//go:embed system_prompt.txt
var defaultSystemPrompt string

// ErrInvalidTables is returned when the rule tables fail validation
var ErrInvalidTables = errors.New("invalid rule tables")

// Tables holds every static rule the answer pipeline consults.
// Loaded once at startup, never mutated afterwards.
type Tables struct {
	Normalizer    NormalizerTables            `yaml:"normalizer"`
	Platforms     []PlatformRule              `yaml:"platforms"`
	Overrides     OverrideTables              `yaml:"overrides"`
	Topics        []TopicalRule               `yaml:"topics"`
	Retrieval     RetrievalTables             `yaml:"retrieval"`
	Conflicts     []models.ConflictDefinition `yaml:"conflicts"`
	Hallucination HallucinationTables         `yaml:"hallucination"`
	Gate          GateTables                  `yaml:"gate"`
	Messages      MessageTables               `yaml:"messages"`
}

type NormalizerTables struct {
	Stopwords         []string  `yaml:"stopwords"`
	Synonyms          []Synonym `yaml:"synonyms"`
	MinTokenLength    int       `yaml:"min_token_length"`
	MaxTokens         int       `yaml:"max_tokens"`
	FallbackTokens    int       `yaml:"fallback_tokens"`
	OverrideMinLength int       `yaml:"override_min_length"`
	OverrideMaxTokens int       `yaml:"override_max_tokens"`
}

// Synonym rewrites an abbreviation or a multi-word phrase into corpus vocabulary
type Synonym struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// PlatformRule describes one procurement platform for the platform-affinity detector
type PlatformRule struct {
	Category models.Category `yaml:"category"`
	Tag      string          `yaml:"tag"`
	Title    string          `yaml:"title"`
	Names    []string        `yaml:"names"`
	Triggers []string        `yaml:"triggers"`
}

type OverrideTables struct {
	Title             string             `yaml:"title"`
	FallbackMinLength int                `yaml:"fallback_min_length"`
	SearchLimit       int                `yaml:"search_limit"`
	Lists             []OverrideListMeta `yaml:"lists"`
	Triggers          []string           `yaml:"triggers"`
}

// OverrideListMeta is the group header rendered above the entries of one list
type OverrideListMeta struct {
	ListType models.ListType `yaml:"list_type"`
	Title    string          `yaml:"title"`
	Basis    string          `yaml:"basis"`
	URL      string          `yaml:"url"`
}

// TopicalRule routes a question to an extra corpus slice when any trigger occurs in it
type TopicalRule struct {
	Category models.Category `yaml:"category"`
	Title    string          `yaml:"title"`
	Budget   int             `yaml:"budget"`
	Triggers []string        `yaml:"triggers"`
}

type RetrievalTables struct {
	PlatformBudget            int    `yaml:"platform_budget"`
	GeneralBudget             int    `yaml:"general_budget"`
	GeneralBudgetWithPlatform int    `yaml:"general_budget_with_platform"`
	MaxChunks                 int    `yaml:"max_chunks"`
	GeneralTitle              string `yaml:"general_title"`
}

type RedFlag struct {
	Name     string           `yaml:"name"`
	Level    models.RiskLevel `yaml:"level"`
	Message  string           `yaml:"message"`
	Keywords []string         `yaml:"keywords"`
}

// ConfidenceTable maps each risk level to its base confidence
type ConfidenceTable struct {
	Safe     float64 `yaml:"safe"`
	Low      float64 `yaml:"low_risk"`
	Medium   float64 `yaml:"medium_risk"`
	High     float64 `yaml:"high_risk"`
	Critical float64 `yaml:"critical"`
}

// For returns the base confidence of a level
func (c ConfidenceTable) For(level models.RiskLevel) float64 {
	switch level {
	case models.RiskSafe:
		return c.Safe
	case models.RiskLow:
		return c.Low
	case models.RiskMedium:
		return c.Medium
	case models.RiskHigh:
		return c.High
	}
	return c.Critical
}

type HallucinationTables struct {
	SignificantWordMinLength int             `yaml:"significant_word_min_length"`
	CoverageWarnThreshold    float64         `yaml:"coverage_warn_threshold"`
	CoveragePenaltyThreshold float64         `yaml:"coverage_penalty_threshold"`
	CoveragePenaltyFactor    float64         `yaml:"coverage_penalty_factor"`
	NoWordsCoverage          float64         `yaml:"no_words_coverage"`
	CitationBonus            float64         `yaml:"citation_bonus"`
	ImplausibleCitation      int             `yaml:"implausible_citation"`
	Confidence               ConfidenceTable `yaml:"confidence"`
	RedFlags                 []RedFlag       `yaml:"red_flags"`
	HedgingWords             []string        `yaml:"hedging_words"`
	CoverageStopwords        []string        `yaml:"coverage_stopwords"`
	CitationMarkers          []string        `yaml:"citation_markers"`
	KnownDocumentFamilies    []string        `yaml:"known_document_families"`
}

type GateTables struct {
	MinConfidence            float64  `yaml:"min_confidence"`
	CoverageThreshold        float64  `yaml:"coverage_threshold"`
	HighConfidence           float64  `yaml:"high_confidence"`
	InterpretationMinMarkers int      `yaml:"interpretation_min_markers"`
	InterpretationMarkers    []string `yaml:"interpretation_markers"`
}

// RejectionTemplate holds the text/template sources for one rejection code
type RejectionTemplate struct {
	Description    string `yaml:"description"`
	Recommendation string `yaml:"recommendation"`
	Body           string `yaml:"body"`
}

type MessageTables struct {
	NothingFound          string                                     `yaml:"nothing_found"`
	Disclaimer            string                                     `yaml:"disclaimer"`
	ConflictTitle         string                                     `yaml:"conflict_title"`
	ConflictPositiveLabel string                                     `yaml:"conflict_positive_label"`
	ConflictNegativeLabel string                                     `yaml:"conflict_negative_label"`
	Rejections            map[models.RejectionCode]RejectionTemplate `yaml:"rejections"`
}

// LoadTables parses the rule tables from path, or the embedded defaults when path is empty
func LoadTables(path string) (*Tables, error) {
	raw := defaultRules
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule tables %s: %w", path, err)
		}
		raw = data
	}
	return ParseTables(raw)
}

// DefaultTables returns the embedded rule tables
func DefaultTables() (*Tables, error) {
	return ParseTables(defaultRules)
}

// ParseTables decodes and validates a YAML rule document
func ParseTables(raw []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTables, err)
	}
	t.normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadSystemPrompt returns the persona preamble from path, or the embedded default
func LoadSystemPrompt(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt %s: %w", path, err)
	}
	return string(data), nil
}

// normalize lowercases every trigger list so matchers can work on a lowercased question
func (t *Tables) normalize() {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	t.Normalizer.Stopwords = lower(t.Normalizer.Stopwords)
	for i := range t.Normalizer.Synonyms {
		t.Normalizer.Synonyms[i].From = strings.ToLower(strings.TrimSpace(t.Normalizer.Synonyms[i].From))
		t.Normalizer.Synonyms[i].To = strings.ToLower(strings.TrimSpace(t.Normalizer.Synonyms[i].To))
	}
	for i := range t.Platforms {
		t.Platforms[i].Names = lower(t.Platforms[i].Names)
		t.Platforms[i].Triggers = lower(t.Platforms[i].Triggers)
	}
	t.Overrides.Triggers = lower(t.Overrides.Triggers)
	for i := range t.Topics {
		t.Topics[i].Triggers = lower(t.Topics[i].Triggers)
	}
	for i := range t.Conflicts {
		t.Conflicts[i].Keywords = lower(t.Conflicts[i].Keywords)
	}
	for i := range t.Hallucination.RedFlags {
		t.Hallucination.RedFlags[i].Keywords = lower(t.Hallucination.RedFlags[i].Keywords)
	}
	t.Hallucination.HedgingWords = lower(t.Hallucination.HedgingWords)
	t.Hallucination.CoverageStopwords = lower(t.Hallucination.CoverageStopwords)
	t.Hallucination.CitationMarkers = lower(t.Hallucination.CitationMarkers)
	t.Hallucination.KnownDocumentFamilies = lower(t.Hallucination.KnownDocumentFamilies)
	t.Gate.InterpretationMarkers = lower(t.Gate.InterpretationMarkers)
}

// Validate checks the cross-table invariants
func (t *Tables) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	n := t.Normalizer
	if n.MinTokenLength < 1 || n.MaxTokens < 1 || n.FallbackTokens < 1 || n.OverrideMaxTokens < 1 {
		add("normalizer lengths and caps must be positive")
	}
	for _, s := range n.Synonyms {
		if s.From == "" || s.To == "" {
			add("synonym with empty side: %q -> %q", s.From, s.To)
		}
	}

	if len(t.Platforms) == 0 {
		add("no platform rules")
	}
	platformTriggers := map[string]models.Category{}
	for _, p := range t.Platforms {
		if !p.Category.IsPlatform() {
			add("platform rule has non-platform category %q", p.Category)
		}
		if len(p.Names) == 0 {
			add("platform %s has no names", p.Category)
		}
		for _, trig := range p.Triggers {
			if owner, ok := platformTriggers[trig]; ok && owner != p.Category {
				add("platform trigger %q shared by %s and %s", trig, owner, p.Category)
			}
			platformTriggers[trig] = p.Category
		}
	}

	if t.Overrides.SearchLimit < 1 {
		add("override search_limit must be positive")
	}
	seenLists := map[models.ListType]bool{}
	for _, l := range t.Overrides.Lists {
		if !l.ListType.Valid() {
			add("override list metadata for unknown list type %q", l.ListType)
		}
		seenLists[l.ListType] = true
	}
	for _, lt := range models.ListTypes {
		if !seenLists[lt] {
			add("override list %s has no metadata", lt)
		}
	}

	for _, topic := range t.Topics {
		if !topic.Category.Valid() {
			add("topic has unknown category %q", topic.Category)
		}
		if topic.Budget < 1 {
			add("topic %s has non-positive budget", topic.Category)
		}
		if len(topic.Triggers) == 0 {
			add("topic %s has no triggers", topic.Category)
		}
	}

	r := t.Retrieval
	if r.PlatformBudget < 1 || r.GeneralBudget < 1 || r.GeneralBudgetWithPlatform < 1 || r.MaxChunks < 1 {
		add("retrieval budgets must be positive")
	}

	conflictTypes := map[string]bool{}
	conflictKeywords := map[string]string{}
	for _, c := range t.Conflicts {
		if c.Type == "" {
			add("conflict definition without type")
			continue
		}
		if conflictTypes[c.Type] {
			add("conflict type %s defined twice", c.Type)
		}
		conflictTypes[c.Type] = true
		if len(c.Keywords) == 0 {
			add("conflict %s has no keywords", c.Type)
		}
		if c.Threshold < 0 {
			add("conflict %s has negative threshold", c.Type)
		}
		for _, kw := range c.Keywords {
			if owner, ok := conflictKeywords[kw]; ok && owner != c.Type {
				add("conflict keyword %q shared by %s and %s", kw, owner, c.Type)
			}
			conflictKeywords[kw] = c.Type
		}
		if len(c.PositiveNorms) == 0 || len(c.ConflictingNorms) == 0 {
			add("conflict %s needs both citation sets", c.Type)
		}
		positive := map[string]bool{}
		for _, norm := range c.PositiveNorms {
			positive[norm] = true
		}
		for _, norm := range c.ConflictingNorms {
			if positive[norm] {
				add("conflict %s cites %q on both sides", c.Type, norm)
			}
		}
	}

	h := t.Hallucination
	for name, v := range map[string]float64{
		"coverage_warn_threshold":    h.CoverageWarnThreshold,
		"coverage_penalty_threshold": h.CoveragePenaltyThreshold,
		"coverage_penalty_factor":    h.CoveragePenaltyFactor,
		"no_words_coverage":          h.NoWordsCoverage,
		"citation_bonus":             h.CitationBonus,
		"confidence.safe":            h.Confidence.Safe,
		"confidence.low_risk":        h.Confidence.Low,
		"confidence.medium_risk":     h.Confidence.Medium,
		"confidence.high_risk":       h.Confidence.High,
		"confidence.critical":        h.Confidence.Critical,
	} {
		if v < 0 || v > 1 {
			add("%s must be in [0,1], got %v", name, v)
		}
	}
	c := h.Confidence
	if !(c.Safe >= c.Low && c.Low >= c.Medium && c.Medium >= c.High && c.High >= c.Critical) {
		add("confidence table must not increase with risk")
	}
	if h.ImplausibleCitation < 1 {
		add("implausible_citation must be positive")
	}
	for _, flag := range h.RedFlags {
		if len(flag.Keywords) == 0 {
			add("red flag %q has no keywords", flag.Name)
		}
	}

	g := t.Gate
	for name, v := range map[string]float64{
		"min_confidence":     g.MinConfidence,
		"coverage_threshold": g.CoverageThreshold,
		"high_confidence":    g.HighConfidence,
	} {
		if v < 0 || v > 1 {
			add("gate %s must be in [0,1], got %v", name, v)
		}
	}
	if g.InterpretationMinMarkers < 1 {
		add("interpretation_min_markers must be positive")
	}

	m := t.Messages
	if strings.TrimSpace(m.NothingFound) == "" {
		add("nothing_found message is empty")
	}
	if _, err := template.New("disclaimer").Parse(m.Disclaimer); err != nil {
		add("disclaimer template: %v", err)
	}
	for _, code := range models.RejectionCodes {
		tmpl, ok := m.Rejections[code]
		if !ok {
			add("rejection %s has no template", code)
			continue
		}
		for part, src := range map[string]string{
			"description":    tmpl.Description,
			"recommendation": tmpl.Recommendation,
			"body":           tmpl.Body,
		} {
			if strings.TrimSpace(src) == "" {
				add("rejection %s has empty %s", code, part)
				continue
			}
			if _, err := template.New(string(code)).Parse(src); err != nil {
				add("rejection %s %s template: %v", code, part, err)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTables, strings.Join(problems, "; "))
	}
	return nil
}
