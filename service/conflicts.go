package service

import (
	"context"
	"strings"

	"procurement-assistant/logger"
	"procurement-assistant/models"
)

// ChunkFetcher loads chunks by their fixed identifiers
type ChunkFetcher interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Chunk, error)
}

// ConflictMatch is an active conflict definition with the keywords that fired it
type ConflictMatch struct {
	Definition models.ConflictDefinition
	Matched    []string
	// Evidence holds the evidence chunks that could be found, in definition order
	Evidence []models.Chunk
}

// ConflictDetector recognizes questions that fall into known conflicts between norms
type ConflictDetector struct {
	definitions []models.ConflictDefinition
	fetcher     ChunkFetcher
	log         *logger.Logger
}

func NewConflictDetector(definitions []models.ConflictDefinition, fetcher ChunkFetcher, log *logger.Logger) *ConflictDetector {
	if log == nil {
		log = logger.Nop()
	}
	return &ConflictDetector{definitions: definitions, fetcher: fetcher, log: log}
}

// Match returns every definition whose keyword count in the question exceeds its threshold
func (d *ConflictDetector) Match(question string) []ConflictMatch {
	lowered := strings.ToLower(question)
	var out []ConflictMatch
	for _, def := range d.definitions {
		matched := matchedPhrases(lowered, def.Keywords)
		if len(matched) > def.Threshold {
			out = append(out, ConflictMatch{Definition: def, Matched: matched})
		}
	}
	return out
}

// Resolve matches the question and attaches evidence chunks. Evidence already
// present in retrieved is reused; the rest is fetched. A failed fetch leaves
// the match without evidence text.
func (d *ConflictDetector) Resolve(ctx context.Context, question string, retrieved []models.Chunk) []ConflictMatch {
	matches := d.Match(question)
	if len(matches) == 0 {
		return nil
	}

	known := make(map[string]models.Chunk, len(retrieved))
	for _, c := range retrieved {
		known[c.ID] = c
	}

	var missing []string
	requested := make(map[string]bool)
	for _, m := range matches {
		for _, id := range m.Definition.EvidenceChunkIDs {
			if _, ok := known[id]; !ok && !requested[id] {
				requested[id] = true
				missing = append(missing, id)
			}
		}
	}

	if len(missing) > 0 && d.fetcher != nil {
		fetched, err := d.fetcher.GetByIDs(ctx, missing)
		if err != nil {
			d.log.Warn("Conflict evidence fetch failed", "ids", missing, "error", err)
		}
		for _, c := range fetched {
			known[c.ID] = c
		}
	}

	for i := range matches {
		for _, id := range matches[i].Definition.EvidenceChunkIDs {
			if c, ok := known[id]; ok {
				matches[i].Evidence = append(matches[i].Evidence, c)
			}
		}
		d.log.Info("Norm conflict detected",
			"type", matches[i].Definition.Type,
			"matched", matches[i].Matched,
			"evidence", len(matches[i].Evidence),
		)
	}
	return matches
}

// ConflictTypes lists the type keys of the matches
func ConflictTypes(matches []ConflictMatch) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Definition.Type)
	}
	return out
}
