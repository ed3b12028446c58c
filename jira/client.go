package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client provides access to the Jira REST API (v3).
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string

	// Rate limiting state from response headers.
	mu        sync.RWMutex
	remaining int
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Used by tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Jira client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		remaining:  -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetIssue retrieves an issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	if !ValidateIssueKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrIssueKeyInvalid, key)
	}

	var issue Issue
	if err := c.doJSON(ctx, http.MethodGet, "/issue/"+key, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// SearchIssues searches for issues using JQL.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) (*SearchResponse, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	body := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
		"fields": []string{
			"summary", "description", "status", "priority",
			"labels", "assignee", "issuetype",
		},
	}

	var result SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/search", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTransitions returns the available transitions for an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	if !ValidateIssueKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrIssueKeyInvalid, key)
	}

	var result TransitionsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/issue/"+key+"/transitions", nil, &result); err != nil {
		return nil, err
	}
	return result.Transitions, nil
}

// TransitionIssue executes a transition by ID.
func (c *Client) TransitionIssue(ctx context.Context, key, transitionID string) error {
	if !ValidateIssueKey(key) {
		return fmt.Errorf("%w: %s", ErrIssueKeyInvalid, key)
	}
	body := TransitionRequest{Transition: TransitionRef{ID: transitionID}}
	return c.doJSON(ctx, http.MethodPost, "/issue/"+key+"/transitions", body, nil)
}

// TransitionIssueByName finds and executes a transition by its name,
// case-insensitively.
func (c *Client) TransitionIssueByName(ctx context.Context, key, name string) error {
	transitions, err := c.GetTransitions(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range transitions {
		if strings.EqualFold(t.Name, name) {
			return c.TransitionIssue(ctx, key, t.ID)
		}
	}
	return fmt.Errorf("%w: %q on %s", ErrTransitionNotFound, name, key)
}

// AddComment posts a plain-text comment on an issue. The body is sent as
// an ADF document, which both Cloud and recent Data Center accept.
func (c *Client) AddComment(ctx context.Context, key, text string) error {
	if !ValidateIssueKey(key) {
		return fmt.Errorf("%w: %s", ErrIssueKeyInvalid, key)
	}
	body := map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []any{
				map[string]any{
					"type": "paragraph",
					"content": []any{
						map[string]any{"type": "text", "text": text},
					},
				},
			},
		},
	}
	return c.doJSON(ctx, http.MethodPost, "/issue/"+key+"/comment", body, nil)
}

// AssignIssue sets the issue's assignee by account ID.
func (c *Client) AssignIssue(ctx context.Context, key, accountID string) error {
	if !ValidateIssueKey(key) {
		return fmt.Errorf("%w: %s", ErrIssueKeyInvalid, key)
	}
	body := AssignRequest{AccountID: accountID}
	return c.doJSON(ctx, http.MethodPut, "/issue/"+key+"/assignee", body, nil)
}

// RateLimitRemaining returns remaining capacity, or -1 if unknown.
func (c *Client) RateLimitRemaining() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remaining
}

// doJSON runs one API call end to end: marshal, retry, status check,
// decode.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	resp, err := c.doWithRetry(ctx, method, "/rest/api/3"+endpoint, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp, endpoint)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doWithRetry executes a request, retrying on 429 and transient network
// failures with exponential backoff. Honors Retry-After.
func (c *Client) doWithRetry(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	maxRetries := c.cfg.Retry.MaxRetries
	delay := c.cfg.Retry.RetryWaitMin
	if delay == 0 {
		delay = time.Second
	}
	maxDelay := c.cfg.Retry.RetryWaitMax
	if maxDelay == 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if isRetryableNetErr(err) && attempt < maxRetries {
				if err := sleepCtx(ctx, delay); err != nil {
					return nil, err
				}
				delay = min(delay*2, maxDelay)
				continue
			}
			return nil, err
		}

		c.updateRateLimitState(resp)

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()
		lastErr = ErrRateLimited

		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				delay = time.Duration(seconds) * time.Second
			}
		}
		if attempt < maxRetries {
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
			delay = min(delay*2, maxDelay)
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// newRequest builds an authenticated JSON request.
func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setAuth(req)
	return req, nil
}

// setAuth sets the Authorization header per the configured scheme.
func (c *Client) setAuth(req *http.Request) {
	switch c.cfg.Auth.Type {
	case AuthAPIToken:
		credentials := c.cfg.Auth.Email + ":" + c.cfg.Auth.Token
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	case AuthBasic:
		credentials := c.cfg.Auth.Username + ":" + c.cfg.Auth.Password
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))
	case AuthPAT:
		req.Header.Set("Authorization", "Bearer "+c.cfg.Auth.Token)
	}
}

func (c *Client) updateRateLimitState(resp *http.Response) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	if val, err := strconv.Atoi(remaining); err == nil {
		c.mu.Lock()
		c.remaining = val
		c.mu.Unlock()
	}
}

// isRetryableNetErr reports whether a transport error is worth retrying.
func isRetryableNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
