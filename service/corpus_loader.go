package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"procurement-assistant/logger"
	"procurement-assistant/models"
)

const (
	chunkSnapshotPrefix    = "chunks/"
	overrideSnapshotPrefix = "overrides/"
)

// SnapshotSource is where ingestion scripts leave corpus snapshots
type SnapshotSource interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// ChunkWriter persists validated chunks
type ChunkWriter interface {
	UpsertChunks(ctx context.Context, chunks []models.Chunk) (int, error)
}

// OverrideWriter replaces one override list wholesale
type OverrideWriter interface {
	ReplaceList(ctx context.Context, listType models.ListType, entries []models.OverrideEntry) error
}

// LoadReport summarizes one corpus load
type LoadReport struct {
	Chunks    int
	Overrides map[models.ListType]int
}

// CorpusLoader moves chunk and override-list snapshots from storage into the database.
// Every record is validated before anything is written.
type CorpusLoader struct {
	source    SnapshotSource
	chunks    ChunkWriter
	overrides OverrideWriter
	log       *logger.Logger
}

func NewCorpusLoader(source SnapshotSource, chunks ChunkWriter, overrides OverrideWriter, log *logger.Logger) *CorpusLoader {
	if log == nil {
		log = logger.Nop()
	}
	return &CorpusLoader{source: source, chunks: chunks, overrides: overrides, log: log}
}

// Load reads chunks/*.json and overrides/<list_type>.json and writes them.
// Chunk IDs must be unique across all chunk files.
func (l *CorpusLoader) Load(ctx context.Context) (*LoadReport, error) {
	chunks, err := l.readChunks(ctx)
	if err != nil {
		return nil, err
	}
	lists, err := l.readOverrides(ctx)
	if err != nil {
		return nil, err
	}

	report := &LoadReport{Overrides: make(map[models.ListType]int)}
	if len(chunks) > 0 {
		n, err := l.chunks.UpsertChunks(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert chunks: %w", err)
		}
		report.Chunks = n
	}
	for _, lt := range models.ListTypes {
		entries, ok := lists[lt]
		if !ok {
			continue
		}
		if err := l.overrides.ReplaceList(ctx, lt, entries); err != nil {
			return nil, fmt.Errorf("failed to replace %s list: %w", lt, err)
		}
		report.Overrides[lt] = len(entries)
	}

	l.log.Info("Corpus loaded", "chunks", report.Chunks, "override_lists", len(report.Overrides))
	return report, nil
}

func (l *CorpusLoader) readChunks(ctx context.Context) ([]models.Chunk, error) {
	keys, err := l.jsonKeys(ctx, chunkSnapshotPrefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var chunks []models.Chunk
	for _, key := range keys {
		var params []models.ChunkParams
		if err := l.decode(ctx, key, &params); err != nil {
			return nil, err
		}
		for _, p := range params {
			chunk, err := models.NewChunk(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			if prev, dup := seen[chunk.ID]; dup {
				return nil, fmt.Errorf("%w: id %s appears in %s and %s", models.ErrInvalidChunk, chunk.ID, prev, key)
			}
			seen[chunk.ID] = key
			chunks = append(chunks, chunk)
		}
		l.log.Debug("Chunk snapshot read", "key", key, "records", len(params))
	}
	return chunks, nil
}

func (l *CorpusLoader) readOverrides(ctx context.Context) (map[models.ListType][]models.OverrideEntry, error) {
	keys, err := l.jsonKeys(ctx, overrideSnapshotPrefix)
	if err != nil {
		return nil, err
	}

	lists := make(map[models.ListType][]models.OverrideEntry)
	for _, key := range keys {
		listType := models.ListType(strings.TrimSuffix(path.Base(key), ".json"))
		if !listType.Valid() {
			return nil, fmt.Errorf("%w: snapshot %s does not name a list type", models.ErrInvalidOverride, key)
		}

		var entries []models.OverrideEntry
		if err := l.decode(ctx, key, &entries); err != nil {
			return nil, err
		}
		for i := range entries {
			if entries[i].ListType == "" {
				entries[i].ListType = listType
			}
		}
		if err := models.ValidateOverrideList(listType, entries); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		lists[listType] = entries
	}
	return lists, nil
}

func (l *CorpusLoader) jsonKeys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := l.source.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	out := keys[:0]
	for _, k := range keys {
		if strings.HasSuffix(k, ".json") {
			out = append(out, k)
		}
	}
	return out, nil
}

func (l *CorpusLoader) decode(ctx context.Context, key string, v interface{}) error {
	rc, err := l.source.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", key, err)
	}
	defer rc.Close()

	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
