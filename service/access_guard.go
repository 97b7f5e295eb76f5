package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BanChecker reports whether a user is blocked from asking questions
type BanChecker interface {
	IsBanned(ctx context.Context, userID string) (bool, error)
}

// maxTrackedUsers bounds the limiter map; idle limiters are pruned past it
const maxTrackedUsers = 10000

// AccessGuard gates users before a question enters the pipeline.
// Bans come from an injected checker; rate limiting is a token bucket per user.
type AccessGuard struct {
	bans     BanChecker
	interval time.Duration
	burst    int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func NewAccessGuard(bans BanChecker, interval time.Duration, burst int) *AccessGuard {
	if burst < 1 {
		burst = 1
	}
	return &AccessGuard{
		bans:     bans,
		interval: interval,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}
}

// IsBanned asks the injected checker; without one nobody is banned
func (g *AccessGuard) IsBanned(ctx context.Context, userID string) (bool, error) {
	if g.bans == nil {
		return false, nil
	}
	return g.bans.IsBanned(ctx, userID)
}

// CheckRateLimit consumes one token for userID. When none is available it
// returns false and how long the user should wait.
func (g *AccessGuard) CheckRateLimit(userID string) (bool, time.Duration) {
	now := g.now()
	limiter := g.limiter(userID, now)

	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, g.interval
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (g *AccessGuard) limiter(userID string, now time.Time) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.limiters[userID]; ok {
		return l
	}
	if len(g.limiters) >= maxTrackedUsers {
		for id, l := range g.limiters {
			if l.TokensAt(now) >= float64(g.burst) {
				delete(g.limiters, id)
			}
		}
	}
	l := rate.NewLimiter(rate.Every(g.interval), g.burst)
	g.limiters[userID] = l
	return l
}
