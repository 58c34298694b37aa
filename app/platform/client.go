package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lysyi3m/crosspost/app/content"
)

const (
	DefaultUserAgent = "crosspost/1.0"
	DefaultTimeout   = 30 * time.Second
	maxErrorBody     = 200
)

// StatusError is a non-2xx platform response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("platform responded with status %d: %s", e.StatusCode, e.Message)
}

// Client is the HTTP client adapters share for talking to one platform. It
// rate limits requests and classifies failures as recoverable or fatal.
type Client struct {
	platform  string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

type ClientOptions struct {
	HTTPClient *http.Client
	// RateLimit is requests per minute; zero disables limiting.
	RateLimit int
	UserAgent string
	// Timeout bounds every request of the default client.
	Timeout time.Duration
}

func NewClient(platform string, opts ClientOptions) *Client {
	c := &Client{
		platform:  platform,
		http:      opts.HTTPClient,
		userAgent: opts.UserAgent,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RateLimit)), 1)
	}
	return c
}

type Request struct {
	Method string
	URL    string
	// Body is JSON encoded when not nil.
	Body           any
	Header         http.Header
	IdempotencyKey string
}

// Do sends req and decodes a JSON response into out when out is not nil.
// Every returned error is a *content.Error.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return content.Recoverable(c.platform, "rate_limited", err, "retry later")
		}
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return content.Fatal(c.platform, "encode_failed", fmt.Errorf("failed to encode request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return content.Fatal(c.platform, "invalid_request", fmt.Errorf("failed to build request: %w", err))
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("Platform request failed", "platform", c.platform, "method", req.Method,
			"url", req.URL, "status", resp.StatusCode)
		return Classify(c.platform, resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return content.Fatal(c.platform, "decode_failed", fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

func (c *Client) transportError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return content.Recoverable(c.platform, "timeout", err, "retry later")
	default:
		return content.Recoverable(c.platform, "network_error", err, "retry later")
	}
}

// Classify maps an HTTP status to a recoverable or fatal publish error.
func Classify(platform string, status int, body []byte) *content.Error {
	cause := &StatusError{StatusCode: status, Message: errorMessage(body)}

	switch {
	case status == http.StatusTooManyRequests:
		return content.Recoverable(platform, "rate_limited", cause, "retry later")
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly, status >= 500:
		return content.Recoverable(platform, "platform_unavailable", cause, "retry later")
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return content.Fatal(platform, "invalid_credentials", cause, "check the platform credentials and permissions")
	case status == http.StatusNotFound:
		return content.Fatal(platform, "not_found", fmt.Errorf("%w: %w", content.ErrNotFound, cause))
	case status == http.StatusConflict:
		return content.Fatal(platform, "conflict", cause, "change the slug or title and publish again")
	default:
		return content.Fatal(platform, "rejected", cause, "fix the reported problem and publish again")
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
		Errors  any    `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != nil:
			return fmt.Sprint(payload.Error)
		case payload.Errors != nil:
			return fmt.Sprint(payload.Errors)
		}
	}

	msg, _ := content.TruncateWords(strings.TrimSpace(string(body)), maxErrorBody)
	return msg
}

// HTTPClient exposes the underlying client for libraries that fetch URLs
// themselves.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) UserAgent() string {
	return c.userAgent
}
