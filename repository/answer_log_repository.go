package repository

import (
	"context"
	"fmt"

	"procurement-assistant/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerLogRepository stores one telemetry row per question-answer cycle
type AnswerLogRepository struct {
	db *pgxpool.Pool
}

// NewAnswerLogRepository creates a new answer log repository
func NewAnswerLogRepository(db *pgxpool.Pool) *AnswerLogRepository {
	return &AnswerLogRepository{db: db}
}

// RecordAnswer inserts entry, assigning an ID when it has none
func (r *AnswerLogRepository) RecordAnswer(ctx context.Context, entry *models.AnswerLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO answer_log (
			id, user_id, question, answer, stage, accepted, rejection_code,
			risk_level, confidence, source_coverage, chunks_used,
			override_list_hit, conflicts
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12, $13
		) RETURNING created_at`

	conflicts := entry.Conflicts
	if conflicts == nil {
		conflicts = []string{}
	}

	err := r.db.QueryRow(
		ctx, query,
		entry.ID,
		entry.UserID,
		entry.Question,
		entry.Answer,
		entry.Stage,
		entry.Accepted,
		entry.RejectionCode,
		entry.RiskLevel,
		entry.Confidence,
		entry.SourceCoverage,
		entry.ChunksUsed,
		entry.OverrideListHit,
		conflicts,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert answer log: %w", err)
	}
	return nil
}
