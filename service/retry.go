package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement-assistant/logger"
)

// RetryingCompleter wraps a Completer with a per-attempt timeout and a bounded
// retry on rate limiting. Any other error ends the call immediately.
type RetryingCompleter struct {
	next        Completer
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	log         *logger.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRetryingCompleter(next Completer, maxAttempts int, timeout, backoff time.Duration, log *logger.Logger) *RetryingCompleter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RetryingCompleter{
		next:        next,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		backoff:     backoff,
		log:         log,
		sleep:       sleepContext,
	}
}

func (r *RetryingCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.backoff); err != nil {
				return "", err
			}
		}

		completionAttempts.Inc()
		text, err := r.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRateLimited) {
			return "", err
		}
		completionRateLimited.Inc()
		r.log.Warn("Completion rate limited", "attempt", attempt, "max_attempts", r.maxAttempts, "error", err)
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *RetryingCompleter) attempt(ctx context.Context, req CompletionRequest) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.next.Complete(ctx, req)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
