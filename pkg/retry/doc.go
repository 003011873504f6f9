// Package retry holds the backoff policy and the retry loop shared by every upstream call.
//
// The policy is a pure function of an error classification and the attempt number:
//   - Rate limited with a retry-after hint: wait the hint, capped at MaxDelay
//   - Rate limited without a hint, or transient: wait BaseDelay*2^attempt, capped at MaxDelay
//   - Unclassified (malformed response, programming error): never retried
//   - Once MaxRetries+1 attempts were made nothing is retried
//
// Basic usage:
//
//	cfg := &retry.Config{
//		Policy:   retry.DefaultPolicy(),
//		Classify: classifyHTTPError,
//		Logger:   logger.GetLogger(),
//	}
//	page, err := retry.Do(ctx, cfg, func(ctx context.Context) (*Page, error) {
//		return client.fetchPageOnce(ctx, size, cursor)
//	})
//
// A *Failure is returned when Do gives up; it carries the number of attempts and the last
// classification so callers can wrap it into their own domain error.
package retry
