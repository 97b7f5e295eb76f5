package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrying(next Completer, attempts int) (*RetryingCompleter, *[]time.Duration) {
	r := NewRetryingCompleter(next, attempts, time.Minute, 2*time.Second, nil)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestRetryingCompleterRecoversFromRateLimit(t *testing.T) {
	limited := fmt.Errorf("%w: 429 Too Many Requests", ErrRateLimited)
	fc := &fakeCompleter{errs: []error{limited, limited}, replies: []string{"", "", "ответ"}}
	r, slept := newTestRetrying(fc, 3)

	text, err := r.Complete(context.Background(), CompletionRequest{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ответ", text)
	assert.Equal(t, 3, fc.calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)
}

func TestRetryingCompleterStopsOnOtherErrors(t *testing.T) {
	fc := &fakeCompleter{errs: []error{fmt.Errorf("%w: invalid api key", ErrCompletionFailed)}}
	r, slept := newTestRetrying(fc, 3)

	_, err := r.Complete(context.Background(), CompletionRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, 1, fc.calls())
	assert.Empty(t, *slept)
}

func TestRetryingCompleterGivesUp(t *testing.T) {
	limited := fmt.Errorf("%w: quota", ErrRateLimited)
	fc := &fakeCompleter{errs: []error{limited, limited, limited, limited}}
	r, _ := newTestRetrying(fc, 3)

	_, err := r.Complete(context.Background(), CompletionRequest{Question: "q"})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, fc.calls())
}

func TestRetryingCompleterAttemptTimeout(t *testing.T) {
	var deadlines []time.Time
	fc := &fakeCompleter{
		replies: []string{"ответ"},
		hook: func(ctx context.Context) {
			d, ok := ctx.Deadline()
			if ok {
				deadlines = append(deadlines, d)
			}
		},
	}
	r, _ := newTestRetrying(fc, 1)

	_, err := r.Complete(context.Background(), CompletionRequest{Question: "q"})
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadlines[0], 5*time.Second)
}

func TestRetryingCompleterCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeCompleter{errs: []error{ErrRateLimited, ErrRateLimited}}
	r, _ := newTestRetrying(fc, 3)
	r.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := r.Complete(ctx, CompletionRequest{Question: "q"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, fc.calls())
}

func TestClassifyGeminiError(t *testing.T) {
	assert.ErrorIs(t, classifyGeminiError(errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")), ErrRateLimited)
	assert.ErrorIs(t, classifyGeminiError(errors.New("blocked: safety")), ErrCompletionFailed)
}
