package toncenter

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "tonscraper/pkg/errors"
	"tonscraper/pkg/retry"
)

// Classify maps the error of one attempt onto the shared retry classification.
// Both FetchPage and FetchDetail use it.
func Classify(err error) retry.Classification {
	var apiErr *errs.APIError
	if !errors.As(err, &apiErr) {
		return retry.Unclassified()
	}

	switch apiErr.Type {
	case errs.ErrorTypeRateLimit:
		if apiErr.RetryAfter > 0 {
			return retry.RateLimitedAfter(apiErr.RetryAfter)
		}
		return retry.RateLimited()
	case errs.ErrorTypeNetwork, errs.ErrorTypeServerError, errs.ErrorTypeClientError:
		return retry.Transient(apiErr.Code)
	default:
		return retry.Unclassified()
	}
}

// statusError converts a non 2xx response into an APIError
func statusError(resp *http.Response, now time.Time) *errs.APIError {
	code := resp.StatusCode
	switch {
	case code == http.StatusTooManyRequests:
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), now)
		return &errs.APIError{
			Type:       errs.ErrorTypeRateLimit,
			Message:    "rate limit exceeded",
			Code:       code,
			RetryAfter: retryAfter,
		}
	case code >= 500:
		return &errs.APIError{
			Type:    errs.ErrorTypeServerError,
			Message: fmt.Sprintf("server returned status %d", code),
			Code:    code,
		}
	default:
		return &errs.APIError{
			Type:    errs.ErrorTypeClientError,
			Message: fmt.Sprintf("unexpected status %d", code),
			Code:    code,
		}
	}
}

// maxRetryAfter bounds a parsed hint before it reaches the policy, which caps it further
const maxRetryAfter = time.Hour

// parseRetryAfter understands delta seconds and HTTP dates. Hints are clamped to
// maxRetryAfter; NaN and infinite values are rejected.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
			return 0, false
		}
		if secs >= maxRetryAfter.Seconds() {
			return maxRetryAfter, true
		}
		return time.Duration(secs * float64(time.Second)), true
	}

	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d > maxRetryAfter {
			return maxRetryAfter, true
		}
		if d > 0 {
			return d, true
		}
		return 0, true
	}

	return 0, false
}

// graphQLFailure turns a GraphQL errors array into an APIError
func graphQLFailure(list []graphQLError) *errs.APIError {
	messages := make([]string, 0, len(list))
	rateLimited := false
	var retryAfter time.Duration

	for _, e := range list {
		messages = append(messages, e.Message)
		if rateLimitCodes[strings.ToUpper(e.Extensions.Code)] || isRateLimitMessage(e.Message) {
			rateLimited = true
			if len(e.Extensions.RetryAfter) > 0 {
				if d, ok := parseRetryAfter(strings.Trim(string(e.Extensions.RetryAfter), `"`), time.Now()); ok {
					retryAfter = d
				}
			}
		}
	}

	msg := strings.Join(messages, "; ")
	if rateLimited {
		return &errs.APIError{
			Type:       errs.ErrorTypeRateLimit,
			Message:    "graphql: " + msg,
			Code:       http.StatusOK,
			RetryAfter: retryAfter,
		}
	}
	return &errs.APIError{
		Type:    errs.ErrorTypeServerError,
		Message: "graphql: " + msg,
		Code:    http.StatusOK,
	}
}

func parsingError(format string, args ...interface{}) *errs.APIError {
	return &errs.APIError{
		Type:    errs.ErrorTypeParsing,
		Message: fmt.Sprintf(format, args...),
	}
}
