// Package client is a Go SDK for the combinator HTTP API.
package client

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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/turtacn/keyip-combinator/pkg/errors"
)

const Version = "0.1.0"

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to one combinator API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	userAgent    string
	headers      http.Header
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	substitutions     *SubstitutionsClient
	substitutionsOnce sync.Once
}

// APIError is an error response from the server.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("combinator: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsBadRequest() bool {
	return e.StatusCode == http.StatusBadRequest
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.InvalidParam("baseURL must not be empty")
	}
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "invalid baseURL")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, errors.InvalidParam("baseURL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 5 * time.Minute},
		userAgent:    fmt.Sprintf("combinator-go-sdk/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Substitutions returns the substitution sub-client.
func (c *Client) Substitutions() *SubstitutionsClient {
	c.substitutionsOnce.Do(func() {
		c.substitutions = &SubstitutionsClient{client: c}
	})
	return c.substitutions
}

// do sends one JSON request, retrying transport failures and 5xx replies
// with exponential backoff.  A 429 carrying Retry-After is retried after the
// delay the server asked for.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal request body")
		}
	}

	b := c.newBackOff()
	attempt := 0
	op := func() error {
		attempt++
		return c.send(ctx, method, path, payload, result, b)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debugf("%s %s attempt %d failed (%v), retrying in %v", method, path, attempt, err, wait)
	}
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retryMax)), ctx), notify)
}

// send performs a single attempt.  Errors wrapped in backoff.Permanent end
// the retry loop.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, result interface{}, b *retryAfterBackOff) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	requestID := uuid.NewString()
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		c.logger.Errorf("%s %s: %v", method, path, err)
		return err
	}
	defer resp.Body.Close()
	c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode >= 400 {
		apiErr := parseAPIError(resp.StatusCode, respBody, requestID)
		switch {
		case apiErr.IsServerError():
			return apiErr
		case apiErr.IsRateLimited():
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds >= 0 {
				c.logger.Infof("rate limited, retrying after %d seconds", seconds)
				b.after(time.Duration(seconds) * time.Second)
				return apiErr
			}
		}
		return backoff.Permanent(apiErr)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return backoff.Permanent(errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal response"))
		}
	}
	return nil
}

func parseAPIError(status int, body []byte, requestID string) *APIError {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	if len(body) == 0 {
		return apiErr
	}
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Code = errResp.Code
		apiErr.Message = errResp.Message
		apiErr.Detail = errResp.Detail
	} else {
		apiErr.Message = string(body)
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

// retryAfterBackOff is an exponential backoff whose next delay can be
// replaced once by a server-supplied Retry-After.
type retryAfterBackOff struct {
	*backoff.ExponentialBackOff
	override time.Duration
	pending  bool
}

func (b *retryAfterBackOff) after(d time.Duration) {
	b.override, b.pending = d, true
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.ExponentialBackOff.NextBackOff()
	if b.pending && next != backoff.Stop {
		next = b.override
	}
	b.pending = false
	return next
}

// newBackOff doubles from retryWaitMin up to retryWaitMax with 25% jitter
// either way.  The retry count is bounded by the caller, not elapsed time.
func (c *Client) newBackOff() *retryAfterBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryWaitMin
	exp.MaxInterval = c.retryWaitMax
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.25
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &retryAfterBackOff{ExponentialBackOff: exp}
}

//Personal.AI order the ending
