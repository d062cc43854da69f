// Package api implements the Compliance API client: authenticated,
// rate-limited HTTP calls that return typed records or a classified error.
// The rest of the system never sees transport detail.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/gptscan/gptscan/internal/config"
	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/record"
)

// allowedFilters is the remote API's documented filter set for the list
// endpoint. Anything else is rejected before a request is made.
var allowedFilters = map[string]bool{
	"search": true,
}

// ListResponse is one page of the paginated list endpoint.
type ListResponse struct {
	Object  string       `json:"object"`
	Data    []record.GPT `json:"data"`
	HasMore bool         `json:"has_more"`
	LastID  string       `json:"last_id,omitempty"`
}

// Done reports whether this is the final page.
func (r *ListResponse) Done() bool {
	return !r.HasMore || r.LastID == ""
}

// Client is a rate-limited Compliance API client. Repeated calls with the
// same cursor and filters against an unchanged remote return identical
// pages; the client performs no mutation.
type Client struct {
	apiKey      string
	workspaceID string
	baseURL     string
	pageSize    int

	httpClient *http.Client
	limiter    *rate.Limiter

	retryMax  int
	retryBase time.Duration
	retryCap  time.Duration

	log *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a client from explicit configuration. The API key and
// workspace ID must be set.
func NewClient(cfg *config.Config, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewAuthentication("API key not provided; set " + config.EnvAPIKey)
	}
	if cfg.WorkspaceID == "" {
		return nil, errors.NewValidation("workspace_id", "workspace ID not provided; set "+config.EnvWorkspaceID)
	}
	if log == nil {
		log = slog.Default()
	}

	interval := cfg.PaceInterval()
	if interval <= 0 {
		interval = time.Millisecond
	}

	return &Client{
		apiKey:      cfg.APIKey,
		workspaceID: cfg.WorkspaceID,
		baseURL:     cfg.BaseURL,
		pageSize:    cfg.PageSize,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout()},
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		retryMax:    cfg.RetryMax,
		retryBase:   cfg.RetryBaseDelay(),
		retryCap:    cfg.RetryMaxDelay(),
		log:         log,
		sleep:       sleepCtx,
	}, nil
}

// WorkspaceID returns the workspace this client is bound to.
func (c *Client) WorkspaceID() string {
	return c.workspaceID
}

// FetchPage fetches one page of the workspace's GPT list. cursor is the
// continuation token from the previous page, empty for the first page.
// filters must come from the API's documented set.
func (c *Client) FetchPage(ctx context.Context, cursor string, filters map[string]string) (*ListResponse, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageSize))
	if cursor != "" {
		query.Set("after", cursor)
	}
	for name, value := range filters {
		if !allowedFilters[name] {
			return nil, errors.NewValidation(name, fmt.Sprintf("unsupported filter %q", name))
		}
		query.Set(name, value)
	}

	body, err := c.doRetry(ctx, c.listPath(), query)
	if err != nil {
		return nil, err
	}

	var resp ListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to parse list response: %w", err))
	}
	return &resp, nil
}

// FetchDetail fetches the full record for one GPT.
func (c *Client) FetchDetail(ctx context.Context, gptID string) (*record.GPT, error) {
	if gptID == "" {
		return nil, errors.NewValidation("gpt_id", "GPT ID must not be empty")
	}

	body, err := c.doRetry(ctx, c.listPath()+"/"+gptID, nil)
	if err != nil {
		return nil, err
	}

	var gpt record.GPT
	if err := json.Unmarshal(body, &gpt); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to parse detail response: %w", err))
	}
	return &gpt, nil
}

// FetchSharedUsers fetches every user a GPT is shared with, following
// pagination to the end.
func (c *Client) FetchSharedUsers(ctx context.Context, gptID string) ([]record.SharedUser, error) {
	if gptID == "" {
		return nil, errors.NewValidation("gpt_id", "GPT ID must not be empty")
	}

	var users []record.SharedUser
	cursor := ""
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(c.pageSize))
		if cursor != "" {
			query.Set("after", cursor)
		}

		body, err := c.doRetry(ctx, c.listPath()+"/"+gptID+"/shared_users", query)
		if err != nil {
			return nil, err
		}

		var page record.SharedUserList
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.NewInternal(fmt.Errorf("failed to parse shared users response: %w", err))
		}
		users = append(users, page.Data...)

		if !page.HasMore || page.LastID == "" {
			break
		}
		cursor = page.LastID
	}
	return users, nil
}

// ValidateCredentials makes a single minimal request without retries to
// check the API key and workspace entitlement.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	query := url.Values{}
	query.Set("limit", "1")
	_, err := c.do(ctx, c.listPath(), query)
	return err
}

func (c *Client) listPath() string {
	return "/compliance/workspaces/" + c.workspaceID + "/gpts"
}

// doRetry performs a GET with the retry policy: exponential backoff with
// jitter, bounded by retryMax attempts. Only retryable errors are retried;
// exhaustion surfaces the last classified error with its attempt count.
func (c *Client) doRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr *errors.Error
	for attempt := 1; attempt <= c.retryMax; attempt++ {
		body, err := c.do(ctx, path, query)
		if err == nil {
			return body, nil
		}

		gErr, ok := err.(*errors.Error)
		if !ok {
			return nil, errors.NewInternal(err)
		}
		gErr.Attempts = attempt
		if !gErr.Retryable() || attempt == c.retryMax {
			return nil, gErr
		}
		lastErr = gErr

		delay := c.backoff(attempt, gErr.RetryAfter)
		c.log.Warn("retrying API request",
			"path", path, "code", gErr.Code, "attempt", attempt, "delay", delay)
		if err := c.sleep(ctx, delay); err != nil {
			gErr.Attempts = attempt
			return nil, gErr
		}
	}
	return nil, lastErr
}

// backoff computes the delay before the next attempt: base doubled per
// attempt, capped, with half-range jitter. A server Retry-After hint sets
// the floor.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	delay := c.retryBase << (attempt - 1)
	if delay > c.retryCap {
		delay = c.retryCap
	}
	delay = delay/2 + rand.N(delay/2+1)
	if retryAfter > delay {
		delay = retryAfter
	}
	return delay
}

// do performs a single paced GET request and classifies the outcome.
func (c *Client) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.NewNetwork(err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are both transient transport
		// failures under the retry policy.
		return nil, errors.NewNetwork(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetwork(err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	return nil, c.classify(resp, path, body)
}

// classify maps a non-200 response to the error taxonomy.
func (c *Client) classify(resp *http.Response, path string, body []byte) *errors.Error {
	detail := fmt.Sprintf("GET %s: %s", path, truncate(string(body), 200))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.NewAuthentication("unauthorized: " + detail)
	case resp.StatusCode == http.StatusForbidden:
		return errors.NewAuthorization(c.workspaceID)
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewNotFound(path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.NewRateLimit(detail, parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return errors.NewServer(resp.StatusCode, detail)
	case resp.StatusCode == http.StatusBadRequest:
		return errors.NewValidation("request", detail)
	default:
		// Unexpected non-5xx statuses are not retried.
		return errors.NewInternal(fmt.Errorf("unexpected status %d: %s", resp.StatusCode, detail))
	}
}

// parseRetryAfter parses a Retry-After header given in seconds.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
