package toncenter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tonscraper/pkg/config"
	errs "tonscraper/pkg/errors"
	"tonscraper/pkg/logger"
	"tonscraper/pkg/ratelimit"
	"tonscraper/pkg/retry"
)

// Operation names used in logs and metrics
const (
	OpFetchPage   = "fetch_page"
	OpFetchDetail = "fetch_detail"
)

// Observer receives per attempt telemetry. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveRequest(op string, status int, duration time.Duration)
	ObserveRetry(op string, class retry.Classification)
}

// Client talks to the account listing GraphQL API and the per account inspect endpoint.
// Both calls share one retry policy and one classifier.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	graphqlURL string
	inspectURL string
	policy     retry.Policy
	limiter    ratelimit.Limiter
	cooloff    *ratelimit.Cooloff
	sleep      func(ctx context.Context, d time.Duration) error
	observer   Observer
	now        func() time.Time
	logger     logger.Logger
}

// NewClient creates a client for the configured upstream endpoints
func NewClient(cfg config.UpstreamConfig, policy retry.Policy, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	headers := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if cfg.UserAgent != "" {
		headers["User-Agent"] = cfg.UserAgent
	}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
		headers["X-API-Key"] = cfg.APIKey
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		headers:    headers,
		graphqlURL: cfg.GraphQLURL,
		inspectURL: cfg.InspectURL,
		policy:     policy,
		limiter:    ratelimit.NewTokenBucket(cfg.RequestsPerSecond, cfg.Burst),
		now:        time.Now,
		logger:     log,
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// SetLimiter replaces the request pacer; nil disables pacing
func (c *Client) SetLimiter(l ratelimit.Limiter) { c.limiter = l }

// SetCooloff makes every request wait out rate limit hints received by any other request
func (c *Client) SetCooloff(cool *ratelimit.Cooloff) { c.cooloff = cool }

// SetSleep replaces the wait between retry attempts
func (c *Client) SetSleep(sleep func(ctx context.Context, d time.Duration) error) { c.sleep = sleep }

// SetObserver installs an attempt observer
func (c *Client) SetObserver(o Observer) { c.observer = o }

func (c *Client) retryConfig(op string, log logger.Logger) *retry.Config {
	return &retry.Config{
		Policy:    c.policy,
		Classify:  Classify,
		Sleep:     c.sleep,
		Logger:    log,
		Operation: op,
		OnRetry: func(attempt int, class retry.Classification, delay time.Duration, err error) {
			if c.observer != nil {
				c.observer.ObserveRetry(op, class)
			}
			if class.Kind == retry.KindRateLimited && c.cooloff != nil {
				c.cooloff.Pause(delay)
			}
		},
	}
}

// FetchPage fetches up to pageSize identifiers after cursor. An empty cursor starts from the beginning.
func (c *Client) FetchPage(ctx context.Context, pageSize int, cursor string) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	log := c.logger.WithField("cursor", cursor)

	page, err := retry.Do(ctx, c.retryConfig(OpFetchPage, log), func(ctx context.Context) (*Page, error) {
		return c.fetchPageOnce(ctx, pageSize, cursor)
	})
	if err != nil {
		return nil, &errs.SourceUnavailable{Cursor: cursor, Attempts: attempts(err), Err: err}
	}

	log.DebugWithFields("page fetched", map[string]interface{}{
		"identifiers": len(page.Identifiers),
		"has_next":    page.HasNextPage,
		"next_cursor": page.NextCursor,
	})
	return page, nil
}

// FetchDetail fetches the raw inspect payload for identifier
func (c *Client) FetchDetail(ctx context.Context, identifier string) (json.RawMessage, error) {
	log := c.logger.WithField("identifier", identifier)

	payload, err := retry.Do(ctx, c.retryConfig(OpFetchDetail, log), func(ctx context.Context) (json.RawMessage, error) {
		return c.fetchDetailOnce(ctx, identifier)
	})
	if err != nil {
		return nil, &errs.DetailUnavailable{Identifier: identifier, Attempts: attempts(err), Err: err}
	}
	return payload, nil
}

func (c *Client) fetchPageOnce(ctx context.Context, pageSize int, cursor string) (*Page, error) {
	variables := map[string]interface{}{"first": pageSize}
	if cursor != "" {
		variables["after"] = cursor
	}
	body, err := json.Marshal(graphQLRequest{Query: accountsQuery, Variables: variables})
	if err != nil {
		return nil, parsingError("failed to encode query: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, &errs.APIError{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	raw, err := c.do(ctx, OpFetchPage, req)
	if err != nil {
		return nil, err
	}

	var resp accountsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, parsingError("failed to parse page response: %v", err)
	}
	if len(resp.Errors) > 0 {
		return nil, graphQLFailure(resp.Errors)
	}
	if resp.Data == nil || resp.Data.Accounts == nil {
		return nil, parsingError("page response has no accounts field")
	}

	conn := resp.Data.Accounts
	page := &Page{
		Identifiers: make([]string, 0, len(conn.Edges)),
		HasNextPage: conn.PageInfo.HasNextPage,
	}
	if conn.PageInfo.EndCursor != nil {
		page.NextCursor = *conn.PageInfo.EndCursor
	}
	for _, edge := range conn.Edges {
		if edge.Node.Address == "" {
			return nil, parsingError("page response contains an empty address")
		}
		page.Identifiers = append(page.Identifiers, edge.Node.Address)
	}
	return page, nil
}

func (c *Client) fetchDetailOnce(ctx context.Context, identifier string) (json.RawMessage, error) {
	target, err := inspectURL(c.inspectURL, identifier)
	if err != nil {
		return nil, &errs.APIError{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("invalid inspect url: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &errs.APIError{Type: errs.ErrorTypeUnknown, Message: fmt.Sprintf("failed to create request: %v", err)}
	}

	raw, err := c.do(ctx, OpFetchDetail, req)
	if err != nil {
		return nil, err
	}
	if !json.Valid(raw) {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("detail response is not valid JSON", map[string]interface{}{
			"identifier":   identifier,
			"body_preview": preview,
		})
		return nil, parsingError("detail response for %s is not valid JSON", identifier)
	}
	return json.RawMessage(raw), nil
}

// do paces, sends and reads one request. Non 2xx responses become APIErrors.
func (c *Client) do(ctx context.Context, op string, req *http.Request) ([]byte, error) {
	if c.cooloff != nil {
		if err := c.cooloff.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	for key, value := range c.headers {
		if req.Method == http.MethodGet && key == "Content-Type" {
			continue
		}
		req.Header.Set(key, value)
	}

	start := c.now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.observe(op, 0, duration)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errs.APIError{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
		}
	}
	defer resp.Body.Close()
	c.observe(op, resp.StatusCode, duration)

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.Redacted(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		apiErr := statusError(resp, c.now())
		c.logger.WarnWithFields("upstream returned error status", map[string]interface{}{
			"operation":   op,
			"status":      resp.StatusCode,
			"retry_after": apiErr.RetryAfter,
		})
		return nil, apiErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &errs.APIError{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}
	return body, nil
}

func (c *Client) observe(op string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(op, status, d)
	}
}

func attempts(err error) int {
	var failure *retry.Failure
	if errors.As(err, &failure) {
		return failure.Attempts
	}
	return 1
}
