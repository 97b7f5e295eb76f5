package service

import (
	"context"
	"unicode/utf8"

	"procurement-assistant/config"
	"procurement-assistant/logger"
	"procurement-assistant/models"
)

// ChunkSearcher runs lexical search over corpus chunks
type ChunkSearcher interface {
	// Search runs a tsquery-syntax keyword query restricted to category,
	// returning at most limit chunks in backend relevance order
	Search(ctx context.Context, query string, category models.Category, limit int) ([]models.Chunk, error)
}

// Slice is one titled block of retrieved chunks
type Slice struct {
	Category models.Category
	Title    string
	Chunks   []models.Chunk
}

// Retrieval is everything the dispatcher found for one question
type Retrieval struct {
	Query     Query
	Flags     CategoryFlags
	Overrides []models.OverrideEntry
	// Slices are in render order: platform, general law, topical
	Slices []Slice
}

// Chunks returns all retrieved chunks in render order
func (r *Retrieval) Chunks() []models.Chunk {
	var out []models.Chunk
	for _, s := range r.Slices {
		out = append(out, s.Chunks...)
	}
	return out
}

func (r *Retrieval) ChunkCount() int {
	n := 0
	for _, s := range r.Slices {
		n += len(s.Chunks)
	}
	return n
}

// Empty reports the single hard "nothing relevant" exit before generation
func (r *Retrieval) Empty() bool {
	return r.ChunkCount() == 0 && len(r.Overrides) == 0
}

// Dispatcher issues the bounded sequence of searches for one question
type Dispatcher struct {
	normalizer *Normalizer
	chunks     ChunkSearcher
	overrides  OverrideSearcher
	platforms  map[models.Category]config.PlatformRule
	topics     []config.TopicalRule
	budgets    config.RetrievalTables
	fallback   config.OverrideTables
	log        *logger.Logger
}

func NewDispatcher(tables *config.Tables, normalizer *Normalizer, chunks ChunkSearcher, overrides OverrideSearcher, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	platforms := make(map[models.Category]config.PlatformRule, len(tables.Platforms))
	for _, p := range tables.Platforms {
		platforms[p.Category] = p
	}
	return &Dispatcher{
		normalizer: normalizer,
		chunks:     chunks,
		overrides:  overrides,
		platforms:  platforms,
		topics:     tables.Topics,
		budgets:    tables.Retrieval,
		fallback:   tables.Overrides,
		log:        log,
	}
}

// Retrieve runs override lookup, the platform slice, the general-law slice and
// the topical slices, never exceeding the total chunk budget. A failed slice
// counts as empty; only a cancelled context is returned as an error.
func (d *Dispatcher) Retrieve(ctx context.Context, question string, flags CategoryFlags) (*Retrieval, error) {
	query := d.normalizer.Normalize(question)
	r := &Retrieval{Query: query, Flags: flags}

	if flags.Overrides {
		r.Overrides = d.retrieveOverrides(ctx, question, flags)
	}

	seen := make(map[string]bool)
	remaining := d.budgets.MaxChunks
	take := func(category models.Category, title string, budget int) {
		if remaining <= 0 || query.Empty() {
			return
		}
		if budget > remaining {
			budget = remaining
		}
		var kept []models.Chunk
		for _, c := range d.searchSlice(ctx, query, category, budget) {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			kept = append(kept, c)
		}
		remaining -= len(kept)
		r.Slices = append(r.Slices, Slice{Category: category, Title: title, Chunks: kept})
	}

	generalBudget := d.budgets.GeneralBudget
	if rule, ok := d.platforms[flags.Platform]; ok {
		take(rule.Category, rule.Title, d.budgets.PlatformBudget)
		generalBudget = d.budgets.GeneralBudgetWithPlatform
	}
	take(models.CategoryGeneralLaw, d.budgets.GeneralTitle, generalBudget)
	for _, topic := range d.topics {
		if flags.HasTopic(topic.Category) {
			take(topic.Category, topic.Title, topic.Budget)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.log.Debug("Retrieval finished",
		"keywords", query.Keywords,
		"chunks", r.ChunkCount(),
		"overrides", len(r.Overrides),
	)
	return r, nil
}

// searchSlice tries the AND query, then the OR query on zero rows or error
func (d *Dispatcher) searchSlice(ctx context.Context, q Query, category models.Category, limit int) []models.Chunk {
	chunks, err := d.chunks.Search(ctx, q.And, category, limit)
	if err != nil {
		d.log.Warn("Chunk search failed", "category", string(category), "mode", "and", "error", err)
	}
	if len(chunks) > 0 {
		return chunks
	}
	if err == nil && q.Or == q.And {
		return nil
	}

	chunks, err = d.chunks.Search(ctx, q.Or, category, limit)
	if err != nil {
		d.log.Warn("Chunk search failed", "category", string(category), "mode", "or", "error", err)
		return nil
	}
	return chunks
}

// retrieveOverrides reuses detection hits; with none but a trigger phrase present
// it falls back to a substring match on the longest significant keyword
func (d *Dispatcher) retrieveOverrides(ctx context.Context, question string, flags CategoryFlags) []models.OverrideEntry {
	if len(flags.OverrideHits) > 0 {
		return flags.OverrideHits
	}
	if !flags.OverrideTrigger || d.overrides == nil {
		return nil
	}

	longest := ""
	for _, kw := range d.normalizer.OverrideKeywords(question) {
		if utf8.RuneCountInString(kw) > utf8.RuneCountInString(longest) {
			longest = kw
		}
	}
	if utf8.RuneCountInString(longest) <= d.fallback.FallbackMinLength {
		return nil
	}

	hits, err := d.overrides.SearchOverridesByName(ctx, longest, d.fallback.SearchLimit)
	if err != nil {
		d.log.Warn("Override name search failed", "keyword", longest, "error", err)
		return nil
	}
	return hits
}
