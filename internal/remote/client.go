package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/log"
)

const (
	defaultEndpoint = "https://api.github.com/graphql"

	// Budget thresholds below which the client pauses between calls
	// instead of waiting for a hard 403
	minRemainingBeforeDelay = 500
	criticalRemaining       = 100

	maxAttempts = 3
)

// graphQLClient executes GraphQL calls against the tracker API with
// bounded retries, exponential backoff, and rate-limit budget tracking.
type graphQLClient struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *log.Logger

	mu            sync.Mutex
	rateRemaining int
	rateResetAt   time.Time
}

func newGraphQLClient(endpoint, token string, logger *log.Logger) *graphQLClient {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &graphQLClient{
		endpoint:      endpoint,
		token:         token,
		client:        &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
		rateRemaining: 5000,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage      `json:"data"`
	Errors []graphQLErrorDetail `json:"errors,omitempty"`
}

// execute runs one GraphQL query or mutation and unmarshals the data
// payload into out. Transient failures (5xx, timeouts) are retried with
// exponential backoff; rate limits surface as *RateLimitError carrying
// the remote-reported reset delay.
func (c *graphQLClient) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	if err := c.pauseForBudget(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github.v4+json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		c.updateBudget(resp.Header)

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return apperrors.NewRemoteAuthError(fmt.Errorf("http 401"))
		case resp.StatusCode == http.StatusForbidden:
			return &RateLimitError{RetryAfter: c.retryAfter(resp.Header)}
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error: http %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			return apperrors.New(apperrors.ErrCodeRemoteAPI,
				fmt.Sprintf("unexpected http status %d: %s", resp.StatusCode, truncate(string(body), 200)))
		}

		var gqlResp graphQLResponse
		if err := json.Unmarshal(body, &gqlResp); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeRemoteAPI, "malformed response", err)
		}

		if len(gqlResp.Errors) > 0 {
			return c.classifyErrors(gqlResp.Errors, resp.Header)
		}

		if out != nil {
			if err := json.Unmarshal(gqlResp.Data, out); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeRemoteAPI, "unmarshal response data", err)
			}
		}
		return nil
	}

	return apperrors.Wrap(apperrors.ErrCodeRemoteTimeout,
		fmt.Sprintf("request failed after %d attempts", maxAttempts), lastErr)
}

// classifyErrors maps GraphQL error payloads onto the error taxonomy:
// rate limits are retryable-with-delay, duplicates are conflicts the
// engine treats as success, permission problems are fatal.
func (c *graphQLClient) classifyErrors(details []graphQLErrorDetail, header http.Header) error {
	messages := make([]string, len(details))
	for i, d := range details {
		messages[i] = d.Message
	}
	joined := strings.Join(messages, "; ")
	lower := strings.ToLower(joined)

	switch {
	case strings.Contains(lower, "rate limit"):
		return &RateLimitError{RetryAfter: c.retryAfter(header)}
	case strings.Contains(lower, "already exists"),
		strings.Contains(lower, "already linked"),
		strings.Contains(lower, "already blocked"),
		strings.Contains(lower, "duplicate"):
		return apperrors.New(apperrors.ErrCodeRemoteConflict, joined)
	case strings.Contains(lower, "permission"), strings.Contains(lower, "forbidden"):
		return apperrors.New(apperrors.ErrCodeRemotePermission, joined)
	case strings.Contains(lower, "could not resolve"), strings.Contains(lower, "not found"):
		return apperrors.New(apperrors.ErrCodeRemoteNotFound, joined)
	default:
		return apperrors.New(apperrors.ErrCodeRemoteAPI, "graphql errors: "+joined)
	}
}

func (c *graphQLClient) updateBudget(header http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := header.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.rateRemaining = n
		}
	}
	if v := header.Get("X-RateLimit-Reset"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.rateResetAt = time.Unix(ts, 0)
		}
	}
}

// pauseForBudget slows the call rate as the remote-reported budget runs
// low, instead of burning the remainder and hitting a hard 403
func (c *graphQLClient) pauseForBudget(ctx context.Context) error {
	c.mu.Lock()
	remaining := c.rateRemaining
	c.mu.Unlock()

	var pause time.Duration
	switch {
	case remaining < criticalRemaining:
		pause = 5 * time.Second
	case remaining < minRemainingBeforeDelay:
		pause = 1 * time.Second
	default:
		return nil
	}

	c.logger.Debug("pausing for rate-limit budget", "remaining", remaining, "pause", pause)
	return sleepCtx(ctx, pause)
}

// retryAfter derives the wait before the next call from the reset
// timestamp, preferring an explicit Retry-After header
func (c *graphQLClient) retryAfter(header http.Header) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	c.mu.Lock()
	resetAt := c.rateResetAt
	c.mu.Unlock()

	if !resetAt.IsZero() {
		if d := time.Until(resetAt); d > 0 {
			return d
		}
	}
	return time.Minute
}

// sleepCtx sleeps for d or until the context is cancelled
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
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
