package service

import (
	"context"
	"errors"

	"procurement-assistant/models"
)

var (
	ErrRateLimited      = errors.New("completion backend rate limited")
	ErrCompletionFailed = errors.New("completion failed")
	ErrEmptyCompletion  = errors.New("completion returned no text")
)

// CompletionRequest is one call to the language model
type CompletionRequest struct {
	// System is the persona preamble followed by the assembled context
	System   string
	History  []models.Turn
	Question string
}

// Completer produces one completion. Implementations wrap rate-limit
// failures in ErrRateLimited so callers can retry them.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
