package toncenter

import (
	"net/url"
	"strings"
)

const (
	// DefaultPageSize is used when a caller asks for a non-positive page size
	DefaultPageSize = 100

	// maxBodyBytes caps how much of a response body is read
	maxBodyBytes = 16 << 20

	// accountsQuery lists account addresses with relay style pagination
	accountsQuery = `query Accounts($first: Int!, $after: String) {
  accounts(first: $first, after: $after) {
    edges { node { address } }
    pageInfo { hasNextPage endCursor }
  }
}`
)

// rateLimitCodes are GraphQL extension codes that mean the caller is being throttled
var rateLimitCodes = map[string]bool{
	"RATE_LIMITED":      true,
	"RATE_LIMIT":        true,
	"TOO_MANY_REQUESTS": true,
	"THROTTLED":         true,
}

// inspectURL builds the detail URL for identifier
func inspectURL(base, identifier string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("address", identifier)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func isRateLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "ratelimit") ||
		strings.Contains(msg, "too many requests")
}
