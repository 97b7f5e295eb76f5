package service

import (
	"context"
	"strings"

	"procurement-assistant/config"
	"procurement-assistant/logger"
	"procurement-assistant/models"

	"golang.org/x/sync/errgroup"
)

// OverrideSearcher looks up override-list entries
type OverrideSearcher interface {
	// SearchOverrides runs a full-text query (OR-joined keywords) over entry names
	SearchOverrides(ctx context.Context, query string, limit int) ([]models.OverrideEntry, error)
	// SearchOverridesByName is the case-insensitive substring fallback on the name field
	SearchOverridesByName(ctx context.Context, keyword string, limit int) ([]models.OverrideEntry, error)
}

// CategoryFlags are the routing decisions for one question
type CategoryFlags struct {
	// Platform is the resolved platform category, empty when undetermined
	Platform models.Category
	// Overrides is true when the question needs the override-list block
	Overrides       bool
	OverrideTrigger bool
	OverrideHits    []models.OverrideEntry
	// Topics holds the topical categories that fired, in table order
	Topics []models.Category
}

// HasTopic reports whether the topical category fired
func (f CategoryFlags) HasTopic(c models.Category) bool {
	for _, t := range f.Topics {
		if t == c {
			return true
		}
	}
	return false
}

// CategoryDetector computes every category flag of a question independently
type CategoryDetector struct {
	normalizer *Normalizer
	platforms  []config.PlatformRule
	overrides  config.OverrideTables
	topics     []config.TopicalRule
	searcher   OverrideSearcher
	log        *logger.Logger
}

func NewCategoryDetector(tables *config.Tables, normalizer *Normalizer, searcher OverrideSearcher, log *logger.Logger) *CategoryDetector {
	if log == nil {
		log = logger.Nop()
	}
	return &CategoryDetector{
		normalizer: normalizer,
		platforms:  tables.Platforms,
		overrides:  tables.Overrides,
		topics:     tables.Topics,
		searcher:   searcher,
		log:        log,
	}
}

// Detect runs the detectors concurrently; none of them short-circuits the others
func (d *CategoryDetector) Detect(ctx context.Context, question string) CategoryFlags {
	lowered := strings.ToLower(question)

	var (
		platform models.Category
		topics   []models.Category
		trigger  bool
		hits     []models.OverrideEntry
		g        errgroup.Group
	)
	g.Go(func() error {
		platform = d.DetectPlatform(lowered)
		return nil
	})
	g.Go(func() error {
		topics = d.DetectTopics(lowered)
		return nil
	})
	g.Go(func() error {
		trigger, hits = d.detectOverrides(ctx, question, lowered)
		return nil
	})
	_ = g.Wait()

	flags := CategoryFlags{
		Platform:        platform,
		Overrides:       trigger || len(hits) > 0,
		OverrideTrigger: trigger,
		OverrideHits:    hits,
		Topics:          topics,
	}
	d.log.Debug("Categories detected",
		"platform", string(flags.Platform),
		"overrides", flags.Overrides,
		"override_hits", len(hits),
		"topics", flags.Topics,
	)
	return flags
}

// DetectPlatform resolves the platform a lowercased question is about.
// An explicit name wins outright; otherwise the strictly higher trigger score wins.
func (d *CategoryDetector) DetectPlatform(lowered string) models.Category {
	var named []models.Category
	for _, p := range d.platforms {
		if containsAny(lowered, p.Names) {
			named = append(named, p.Category)
		}
	}
	if len(named) == 1 {
		return named[0]
	}

	var best models.Category
	bestScore, tie := 0, false
	for _, p := range d.platforms {
		score := len(matchedPhrases(lowered, p.Triggers))
		switch {
		case score > bestScore:
			best, bestScore, tie = p.Category, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if tie {
		return ""
	}
	return best
}

// DetectTopics returns every topical category with a trigger in the lowercased question
func (d *CategoryDetector) DetectTopics(lowered string) []models.Category {
	var out []models.Category
	for _, t := range d.topics {
		if containsAny(lowered, t.Triggers) {
			out = append(out, t.Category)
		}
	}
	return out
}

// detectOverrides checks trigger phrases and probes the override table.
// A failed search counts as zero hits.
func (d *CategoryDetector) detectOverrides(ctx context.Context, question, lowered string) (bool, []models.OverrideEntry) {
	trigger := containsAny(lowered, d.overrides.Triggers)
	if d.searcher == nil {
		return trigger, nil
	}

	keywords := d.normalizer.OverrideKeywords(question)
	if len(keywords) == 0 {
		return trigger, nil
	}
	hits, err := d.searcher.SearchOverrides(ctx, strings.Join(keywords, " | "), d.overrides.SearchLimit)
	if err != nil {
		d.log.Warn("Override search failed", "error", err)
		return trigger, nil
	}
	return trigger, hits
}
