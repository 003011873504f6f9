package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces upstream requests
type Limiter interface {
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// TokenBucket paces requests to a steady rate with bursts
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows rps requests per second with the given burst.
// A non-positive rps disables pacing.
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, burst)}
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.limiter.Wait(ctx)
}

// Cooloff holds every caller back after the upstream signalled rate limiting.
// Pause extends the quiet period; it never shortens one already in force.
type Cooloff struct {
	mu       sync.Mutex
	resumeAt time.Time
	now      func() time.Time
}

// NewCooloff returns an open Cooloff
func NewCooloff() *Cooloff {
	return &Cooloff{now: time.Now}
}

// Pause blocks callers of Wait for d from now
func (c *Cooloff) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if until := c.now().Add(d); until.After(c.resumeAt) {
		c.resumeAt = until
	}
}

// Remaining returns how long callers still have to wait
func (c *Cooloff) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.resumeAt.Sub(c.now()); d > 0 {
		return d
	}
	return 0
}

// Wait blocks until the quiet period is over or ctx is done
func (c *Cooloff) Wait(ctx context.Context) error {
	for {
		d := c.Remaining()
		if d == 0 {
			return ctx.Err()
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
