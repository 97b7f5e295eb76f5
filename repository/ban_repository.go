package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// BanRepository reads the banned_users table
type BanRepository struct {
	db *pgxpool.Pool
}

// NewBanRepository creates a new ban repository
func NewBanRepository(db *pgxpool.Pool) *BanRepository {
	return &BanRepository{db: db}
}

// IsBanned reports whether userID is blocked
func (r *BanRepository) IsBanned(ctx context.Context, userID string) (bool, error) {
	var banned bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM banned_users WHERE user_id = $1)`,
		userID,
	).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("failed to check ban: %w", err)
	}
	return banned, nil
}

// Ban blocks userID; banning twice only refreshes the reason
func (r *BanRepository) Ban(ctx context.Context, userID, reason string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO banned_users (user_id, reason)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET reason = EXCLUDED.reason`,
		userID, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// Unban lifts a ban; unknown users are ignored
func (r *BanRepository) Unban(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM banned_users WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	return nil
}
