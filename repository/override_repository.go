package repository

import (
	"context"
	"fmt"
	"strings"

	"procurement-assistant/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const overrideColumns = `num, name, method, basis, basis_url, list_type, subsection, classification_codes`

// OverrideRepository handles database operations for override-list entries
type OverrideRepository struct {
	db *pgxpool.Pool
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(db *pgxpool.Pool) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// SearchOverrides runs a full-text query over entry names across all lists
func (r *OverrideRepository) SearchOverrides(ctx context.Context, query string, limit int) ([]models.OverrideEntry, error) {
	sql := `
		SELECT ` + overrideColumns + `
		FROM override_entries
		WHERE search_vector @@ to_tsquery('russian', $1)
		ORDER BY
			ts_rank(search_vector, to_tsquery('russian', $1)) DESC,
			list_type,
			num
		LIMIT $2`

	rows, err := r.db.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search override entries: %w", err)
	}
	defer rows.Close()

	return scanOverrides(rows)
}

// SearchOverridesByName matches keyword as a case-insensitive substring of the name
func (r *OverrideRepository) SearchOverridesByName(ctx context.Context, keyword string, limit int) ([]models.OverrideEntry, error) {
	sql := `
		SELECT ` + overrideColumns + `
		FROM override_entries
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY list_type, num
		LIMIT $2`

	rows, err := r.db.Query(ctx, sql, escapeLike(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search override entries by name: %w", err)
	}
	defer rows.Close()

	return scanOverrides(rows)
}

// ReplaceList deletes every entry of listType and inserts entries in one transaction
func (r *OverrideRepository) ReplaceList(ctx context.Context, listType models.ListType, entries []models.OverrideEntry) error {
	if err := models.ValidateOverrideList(listType, entries); err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM override_entries WHERE list_type = $1`, string(listType)); err != nil {
		return fmt.Errorf("failed to clear %s list: %w", listType, err)
	}

	if len(entries) > 0 {
		sql := `
			INSERT INTO override_entries (
				num, name, method, basis, basis_url, list_type, subsection, classification_codes
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(sql,
				e.Num,
				e.Name,
				e.Method,
				e.Basis,
				e.BasisURL,
				string(e.ListType),
				e.Subsection,
				e.ClassificationCodes,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert %s entries: %w", listType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s list: %w", listType, err)
	}
	return nil
}

func scanOverrides(rows pgx.Rows) ([]models.OverrideEntry, error) {
	var entries []models.OverrideEntry
	for rows.Next() {
		var e models.OverrideEntry
		var listType string
		err := rows.Scan(
			&e.Num,
			&e.Name,
			&e.Method,
			&e.Basis,
			&e.BasisURL,
			&listType,
			&e.Subsection,
			&e.ClassificationCodes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override entry: %w", err)
		}
		e.ListType = models.ListType(listType)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating override entries: %w", err)
	}
	return entries, nil
}

// escapeLike escapes LIKE wildcards so keyword matches literally
func escapeLike(keyword string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(keyword)
}
