package workbench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/upfleet/upfleet/internal/logging"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	listPageSize       = 100

	// maxResponseBytes bounds response reads (instance documents and
	// operation payloads are small; listings are paginated)
	maxResponseBytes = 10 * 1024 * 1024
)

// TokenSource supplies bearer tokens for control plane calls
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token on every call
type StaticTokenSource string

// Token implements TokenSource
func (s StaticTokenSource) Token(_ context.Context) (string, error) {
	return string(s), nil
}

// CallMetrics receives client-level counters. Satisfied by *metrics.Collector.
type CallMetrics interface {
	RecordAPICall()
	RecordRetry()
}

// Client is a retrying REST client for the control plane API
type Client struct {
	httpClient *http.Client
	endpoint   string
	tokens     TokenSource
	retry      *RetryConfig
	metrics    CallMetrics
	logger     *logging.Logger
	sleep      func(time.Duration)
}

// ClientOption customizes a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryConfig replaces the retry configuration
func WithRetryConfig(rc *RetryConfig) ClientOption {
	return func(c *Client) { c.retry = rc }
}

// WithMetrics attaches a call metrics sink
func WithMetrics(m CallMetrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a control plane client. endpoint is the API base URL
// including the version segment, e.g. https://notebooks.googleapis.com/v2.
func NewClient(endpoint string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		tokens:     tokens,
		retry:      DefaultRetryConfig(),
		logger:     logging.NewLogger("workbench-client"),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListInstances lists every instance in a location, following pagination
func (c *Client) ListInstances(ctx context.Context, project, location string) ([]Instance, error) {
	basePath := fmt.Sprintf("/projects/%s/locations/%s/instances", project, location)

	var instances []Instance
	pageToken := ""
	for {
		path := fmt.Sprintf("%s?pageSize=%d", basePath, listPageSize)
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}

		body, err := c.request(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list instances in %s: %w", location, err)
		}

		var page instanceList
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse instance listing: %w", err)
		}

		instances = append(instances, page.Instances...)
		if page.NextPageToken == "" {
			return instances, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetInstance fetches an instance document by full resource name
func (c *Client) GetInstance(ctx context.Context, name string) (*Instance, error) {
	body, err := c.request(ctx, http.MethodGet, "/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance %s: %w", name, err)
	}

	var instance Instance
	if err := json.Unmarshal(body, &instance); err != nil {
		return nil, fmt.Errorf("failed to parse instance document: %w", err)
	}
	return &instance, nil
}

// GetInstanceByName looks up a single instance in one location. A 404 means
// "not found here" and returns nil without an error so the caller can probe
// the next location.
func (c *Client) GetInstanceByName(ctx context.Context, project, location, instanceID string) (*Instance, error) {
	name := fmt.Sprintf("projects/%s/locations/%s/instances/%s", project, location, instanceID)
	instance, err := c.GetInstance(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return instance, nil
}

// CheckUpgradability probes whether an instance has an upgrade available
func (c *Client) CheckUpgradability(ctx context.Context, name string) (*UpgradeCheck, error) {
	body, err := c.request(ctx, http.MethodGet, "/"+name+":checkUpgradability", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check upgradability of %s: %w", name, err)
	}

	var check UpgradeCheck
	if err := json.Unmarshal(body, &check); err != nil {
		return nil, fmt.Errorf("failed to parse upgradability response: %w", err)
	}
	return &check, nil
}

// StartInstance starts a stopped instance and returns the operation name
func (c *Client) StartInstance(ctx context.Context, name string) (string, error) {
	return c.mutate(ctx, "/"+name+":start", map[string]interface{}{})
}

// UpgradeInstance starts an upgrade operation and returns the operation name
func (c *Client) UpgradeInstance(ctx context.Context, name string) (string, error) {
	return c.mutate(ctx, "/"+name+":upgrade", map[string]interface{}{})
}

// RollbackInstance starts a rollback operation and returns the operation name
func (c *Client) RollbackInstance(ctx context.Context, name, targetSnapshot string) (string, error) {
	body := map[string]interface{}{}
	if targetSnapshot != "" {
		body["targetSnapshot"] = targetSnapshot
	}
	return c.mutate(ctx, "/"+name+":rollback", body)
}

// GetOperation fetches a long-running operation by name
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	body, err := c.request(ctx, http.MethodGet, "/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %s: %w", name, err)
	}

	var op Operation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("failed to parse operation document: %w", err)
	}
	return &op, nil
}

// mutate issues a mutating POST and extracts the operation name
func (c *Client) mutate(ctx context.Context, path string, body map[string]interface{}) (string, error) {
	respBody, err := c.request(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}

	var ref operationRef
	if err := json.Unmarshal(respBody, &ref); err != nil {
		return "", fmt.Errorf("failed to parse operation reference: %w", err)
	}
	if ref.Name == "" {
		return "", ErrNoOperationName
	}
	return ref.Name, nil
}

// request issues one API call with transparent retries. Retryable statuses
// and network faults back off exponentially with jitter; a server-provided
// Retry-After overrides the computed delay. After MaxAttempts the last
// observed error is surfaced to the caller.
func (c *Client) request(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("request canceled: %w", err)
		}

		data, status, retryAfter, err := c.do(ctx, method, path, body)
		if c.metrics != nil {
			c.metrics.RecordAPICall()
		}

		switch {
		case err != nil:
			// Network fault; always worth a retry
			lastErr = err
		case status >= 200 && status < 300:
			return data, nil
		default:
			lastErr = &APIError{StatusCode: status, Message: extractErrorMessage(data)}
			if !IsRetryableStatus(status) {
				return nil, lastErr
			}
		}

		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := c.retry.BackoffDelay(attempt, status, retryAfter)
		c.logger.Warnf("Retrying %s %s in %s (attempt %d/%d): %v",
			method, path, delay, attempt+1, c.retry.MaxAttempts, lastErr)
		if c.metrics != nil {
			c.metrics.RecordRetry()
		}
		c.sleep(delay)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

// do issues a single HTTP request and reads the response
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, int, time.Duration, error) {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("failed to obtain token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	limitReader := &io.LimitedReader{R: resp.Body, N: maxResponseBytes}
	data, err := io.ReadAll(limitReader)
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// parseRetryAfter reads a Retry-After header given in seconds
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// extractErrorMessage pulls the error message out of an error response body
func extractErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return strings.TrimSpace(string(body))
	}
	if parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}
