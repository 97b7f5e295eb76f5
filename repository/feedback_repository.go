package repository

import (
	"context"
	"fmt"

	"procurement-assistant/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedbackRepository handles database operations for answer ratings
type FeedbackRepository struct {
	db *pgxpool.Pool
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *pgxpool.Pool) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create stores a rating
func (r *FeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	if fb.ID == uuid.Nil {
		fb.ID = uuid.New()
	}

	query := `
		INSERT INTO feedback (
			id, user_id, message_id, question, answer, rating, comment
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		RETURNING created_at`

	err := r.db.QueryRow(
		ctx, query,
		fb.ID,
		fb.UserID,
		fb.MessageID,
		fb.Question,
		fb.Answer,
		string(fb.Rating),
		fb.Comment,
	).Scan(&fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}
