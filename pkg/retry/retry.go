package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tonscraper/pkg/logger"
)

// OperationWithResult is a single attempt of an upstream call
type OperationWithResult[T any] func(ctx context.Context) (T, error)

// Classifier maps the error of a failed attempt to a Classification
type Classifier func(err error) Classification

// Config holds everything the retry loop needs besides the operation itself
type Config struct {
	// Policy decides retry and delay
	Policy Policy
	// Classify maps attempt errors to classifications
	Classify Classifier
	// OnRetry is called before sleeping for the next attempt
	OnRetry func(attempt int, class Classification, delay time.Duration, err error)
	// Sleep waits between attempts; defaults to Wait. Tests replace it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger for retry attempts
	Logger logger.Logger
	// Operation names the call in log lines
	Operation string
}

// Failure is returned by Do when the operation did not succeed. Attempts counts the tries made.
type Failure struct {
	Attempts       int
	Classification Classification
	Err            error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("gave up after %d attempts (%s): %v", f.Attempts, f.Classification.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Do runs op until it succeeds or the policy says stop. Context cancellation is never retried.
func Do[T any](ctx context.Context, cfg *Config, op OperationWithResult[T]) (T, error) {
	var zero T

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = Wait
	}
	classify := cfg.Classify
	if classify == nil {
		classify = func(error) Classification { return Transient(0) }
	}

	attempt := 0
	for {
		attempt++

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 && cfg.Logger != nil {
				cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"operation": cfg.Operation,
					"attempt":   attempt,
				})
			}
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, &Failure{
				Attempts:       attempt,
				Classification: Unclassified(),
				Err:            fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), err)),
			}
		}

		class := classify(err)

		decision := cfg.Policy.Decide(class, attempt)
		if !decision.Retry {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("giving up on operation", map[string]interface{}{
					"operation": cfg.Operation,
					"attempts":  attempt,
					"class":     class.Kind.String(),
					"error":     err.Error(),
				})
			}
			return zero, &Failure{Attempts: attempt, Classification: class, Err: err}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, class, decision.Delay, err)
		}

		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"operation":    cfg.Operation,
				"attempt":      attempt,
				"class":        class.Kind.String(),
				"status_code":  class.StatusCode,
				"delay_ms":     decision.Delay.Milliseconds(),
				"max_attempts": cfg.Policy.MaxAttempts(),
				"error":        err.Error(),
			})
		}

		if werr := sleep(ctx, decision.Delay); werr != nil {
			return zero, &Failure{
				Attempts:       attempt,
				Classification: Unclassified(),
				Err:            fmt.Errorf("retry cancelled: %w", errors.Join(werr, err)),
			}
		}
	}
}
