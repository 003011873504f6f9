package retry

import (
	"context"
	"math"
	"time"

	"tonscraper/pkg/config"
)

// Kind classifies a failed attempt for the purpose of deciding whether to retry it
type Kind int

const (
	// KindUnclassified covers malformed responses and programming errors. Never retried.
	KindUnclassified Kind = iota
	// KindTransient covers network failures and unexpected status codes
	KindTransient
	// KindRateLimited covers HTTP 429 and protocol level rate limit signals
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unclassified"
	}
}

// Classification is the input of the backoff policy for one failed attempt
type Classification struct {
	Kind Kind
	// StatusCode is the HTTP status of a transient failure, 0 for transport errors
	StatusCode int
	// RetryAfter is the upstream wait hint. Only meaningful when HasRetryAfter is set.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

// Unclassified returns a classification that is never retried
func Unclassified() Classification {
	return Classification{Kind: KindUnclassified}
}

// Transient returns a retryable classification carrying the status code (0 for network errors)
func Transient(statusCode int) Classification {
	return Classification{Kind: KindTransient, StatusCode: statusCode}
}

// RateLimited returns a rate limit classification without a wait hint
func RateLimited() Classification {
	return Classification{Kind: KindRateLimited, StatusCode: 429}
}

// RateLimitedAfter returns a rate limit classification carrying the upstream wait hint
func RateLimitedAfter(retryAfter time.Duration) Classification {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Classification{Kind: KindRateLimited, StatusCode: 429, RetryAfter: retryAfter, HasRetryAfter: true}
}

// Decision is the output of the backoff policy
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy decides retry and delay from a classification and an attempt number.
// Both upstream clients share one Policy value so their behavior cannot drift apart.
type Policy struct {
	// MaxRetries bounds the total number of tries to MaxRetries+1
	MaxRetries int
	// BaseDelay is multiplied by 2^attempt for transient failures
	BaseDelay time.Duration
	// MaxDelay caps every delay, including server supplied retry-after values
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// PolicyFromConfig builds the shared policy from the harvest settings
func PolicyFromConfig(cfg config.HarvestConfig) Policy {
	return Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
	}
}

// MaxAttempts returns the total number of tries allowed by the policy
func (p Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Decide returns whether the attempt that just failed (1-based) should be retried and how
// long to wait first. It has no side effects.
func (p Policy) Decide(c Classification, attempt int) Decision {
	if c.Kind == KindUnclassified {
		return Decision{}
	}
	if attempt >= p.MaxAttempts() {
		return Decision{}
	}

	if c.Kind == KindRateLimited && c.HasRetryAfter {
		return Decision{Retry: true, Delay: p.capped(float64(c.RetryAfter))}
	}

	return Decision{Retry: true, Delay: p.ExponentialDelay(attempt)}
}

// ExponentialDelay returns BaseDelay*2^attempt capped at MaxDelay
func (p Policy) ExponentialDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	return p.capped(delay)
}

func (p Policy) capped(delay float64) time.Duration {
	if delay < 0 {
		delay = 0
	}
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	// float64 overflow guard when MaxDelay is unset
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
