package repository

import (
	"context"
	"fmt"

	"procurement-assistant/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chunkColumns = `id, document_short, document_name, source_type, category, chapter,
			chapter_num, article_num, punkt_range, text, official_url, char_count`

// ChunkRepository handles database operations for corpus chunks
type ChunkRepository struct {
	db *pgxpool.Pool
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Search runs a full-text query over one category.
// query: tsquery syntax, e.g. "сроки & оплаты" or "сроки | оплаты"
// category: chunk category to restrict to
// limit: maximum number of chunks to return, best rank first
func (r *ChunkRepository) Search(ctx context.Context, query string, category models.Category, limit int) ([]models.Chunk, error) {
	sql := `
		SELECT ` + chunkColumns + `
		FROM chunks
		WHERE
			category = $1
			AND search_vector @@ to_tsquery('russian', $2)
		ORDER BY
			ts_rank(search_vector, to_tsquery('russian', $2)) DESC,
			id
		LIMIT $3`

	rows, err := r.db.Query(ctx, sql, string(category), query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// GetByIDs loads chunks by identifier, returned in the order of ids.
// Unknown identifiers are skipped.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql := `SELECT ` + chunkColumns + ` FROM chunks WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	found, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(found, ids), nil
}

// UpsertChunks inserts or replaces chunks in one batch
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	sql := `
		INSERT INTO chunks (
			id, document_short, document_name, source_type, category, chapter,
			chapter_num, article_num, punkt_range, text, official_url, char_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			document_short = EXCLUDED.document_short,
			document_name = EXCLUDED.document_name,
			source_type = EXCLUDED.source_type,
			category = EXCLUDED.category,
			chapter = EXCLUDED.chapter,
			chapter_num = EXCLUDED.chapter_num,
			article_num = EXCLUDED.article_num,
			punkt_range = EXCLUDED.punkt_range,
			text = EXCLUDED.text,
			official_url = EXCLUDED.official_url,
			char_count = EXCLUDED.char_count,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		chapterNum, articleNum, punktRange := locatorColumns(c.Locator)
		batch.Queue(sql,
			c.ID,
			c.DocumentShort,
			c.DocumentName,
			string(c.SourceKind),
			string(c.Category),
			c.Chapter,
			chapterNum,
			articleNum,
			punktRange,
			c.Text,
			c.OfficialURL,
			c.CharCount,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, c := range chunks {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}
	return len(chunks), nil
}

// Count returns the number of chunks per category
func (r *ChunkRepository) Count(ctx context.Context) (map[models.Category]int, error) {
	rows, err := r.db.Query(ctx, `SELECT category, COUNT(*) FROM chunks GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Category]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count: %w", err)
		}
		counts[models.Category(category)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk counts: %w", err)
	}
	return counts, nil
}

func scanChunks(rows pgx.Rows) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for rows.Next() {
		var p models.ChunkParams
		err := rows.Scan(
			&p.ID,
			&p.DocumentShort,
			&p.DocumentName,
			&p.SourceKind,
			&p.Category,
			&p.Chapter,
			&p.ChapterNum,
			&p.ArticleNum,
			&p.ParagraphRange,
			&p.Text,
			&p.OfficialURL,
			&p.CharCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunk, err := models.NewChunk(p)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// locatorColumns splits a locator back into its three nullable columns
func locatorColumns(l models.Locator) (chapterNum, articleNum, punktRange *string) {
	if l.Value == "" {
		return nil, nil, nil
	}
	v := l.Value
	switch l.Kind {
	case models.LocatorChapter:
		return &v, nil, nil
	case models.LocatorArticle:
		return nil, &v, nil
	case models.LocatorParagraphs:
		return nil, nil, &v
	}
	return nil, nil, nil
}

func orderByIDs(chunks []models.Chunk, ids []string) []models.Chunk {
	byID := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	out := make([]models.Chunk, 0, len(chunks))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
			delete(byID, id)
		}
	}
	return out
}
