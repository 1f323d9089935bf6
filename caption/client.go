// Package caption obtains a one-sentence caption for an image from a hosted
// captioning backend, masking transient unavailability with bounded,
// linearly growing backoff.
package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxResponseSize limits the backend response body.
	maxResponseSize = 1 << 20

	// maxErrorBody is how much of an error body is kept for diagnostics.
	maxErrorBody = 300

	// maxLogBody is how much of any body is logged per attempt.
	maxLogBody = 120

	// DefaultEndpoint is the hosted BLIP captioning model.
	DefaultEndpoint = "https://api-inference.huggingface.co/models/Salesforce/blip-image-captioning-large"

	// DefaultTokenEnv is the environment variable holding the API token.
	DefaultTokenEnv = "HF_API_TOKEN"
)

// Config identifies the captioning backend. Both fields are opaque to the
// client beyond being present and well formed.
type Config struct {
	Endpoint string
	Token    string

	// TokenEnv names where the token came from, for error messages only.
	TokenEnv string
}

// Observer receives per-attempt and per-call outcomes, typically for metrics.
type Observer interface {
	ObserveAttempt(outcome string)
	ObserveBackoff(d time.Duration)
	ObserveResult(kind Kind)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client captions images against one backend endpoint.
// It is safe for concurrent use.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	retryConfig RetryConfig
	imageConfig ImageConfig
	logger      *slog.Logger
	sleep       SleepFunc
	observer    Observer

	validateOnce sync.Once
	validateErr  error
	validated    atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout bounds each attempt.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithImageConfig sets the image bounds and encoding quality.
func WithImageConfig(cfg ImageConfig) ClientOption {
	return func(client *Client) {
		client.imageConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) ClientOption {
	return func(client *Client) {
		client.sleep = fn
	}
}

// WithObserver sets an observer for attempts and results.
func WithObserver(o Observer) ClientOption {
	return func(client *Client) {
		client.observer = o
	}
}

// NewClient creates a new captioning client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:         cfg,
		retryConfig: DefaultRetryConfig(),
		imageConfig: DefaultImageConfig(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: slog.Default(),
		sleep:  sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Status reports whether the configuration has been validated yet and, if
// so, the cached validation result.
func (c *Client) Status() (checked bool, err error) {
	if !c.validated.Load() {
		return false, nil
	}
	return true, c.validateErr
}

// validate checks the configuration once per process. The result, success or
// failure, is cached and reused by every later call.
func (c *Client) validate() error {
	c.validateOnce.Do(func() {
		c.validateErr = c.checkConfig()
		c.validated.Store(true)
		if c.validateErr != nil {
			c.logger.Error("Captioning backend misconfigured", "error", c.validateErr)
			return
		}
		c.logger.Info("Captioning backend ready", "endpoint", c.cfg.Endpoint)
	})
	return c.validateErr
}

func (c *Client) checkConfig() error {
	if strings.TrimSpace(c.cfg.Token) == "" {
		source := c.cfg.TokenEnv
		if source == "" {
			source = DefaultTokenEnv
		}
		return NewConfigurationError(fmt.Errorf("%s is not set", source))
	}
	if c.cfg.Endpoint == "" {
		return NewConfigurationError(errors.New("endpoint is not set"))
	}
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return NewConfigurationError(fmt.Errorf("parse endpoint: %w", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewConfigurationError(fmt.Errorf("endpoint %q must be http or https", c.cfg.Endpoint))
	}
	return nil
}

// Caption returns a normalised caption for img. An empty caption is a valid
// result meaning the backend produced no text.
func (c *Client) Caption(ctx context.Context, img image.Image) (string, error) {
	text, err := c.caption(ctx, img)
	if c.observer != nil {
		c.observer.ObserveResult(KindOf(err))
	}
	return text, err
}

func (c *Client) caption(ctx context.Context, img image.Image) (string, error) {
	if err := c.validate(); err != nil {
		return "", err
	}

	// Every attempt sends the same bytes, so the image is encoded once per call.
	body, err := c.imageConfig.Encode(img)
	if err != nil {
		return "", fmt.Errorf("prepare image: %w", err)
	}

	c.logger.Debug("Sending image to captioning backend", "bytes", len(body))

	maxAttempts := max(1, c.retryConfig.MaxAttempts)
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := c.doRequest(ctx, body, attempt)
		if err == nil {
			c.observe("success")
			caption := Normalize(raw)
			c.logger.Debug("Caption generated", "attempt", attempt, "caption", caption)
			return caption, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.observe("canceled")
			return "", ctxErr
		}

		// Don't retry fatal errors
		if IsFatal(err) {
			c.observe("fatal")
			c.logger.Warn("Captioning failed", "attempt", attempt, "error", err)
			return "", err
		}

		c.observe("transient")
		lastErr = err

		if attempt < maxAttempts {
			backoff := c.retryConfig.Backoff(attempt)
			c.logger.Warn("Captioning backend unavailable, retrying",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"backoff", backoff,
				"error", err)

			if c.observer != nil {
				c.observer.ObserveBackoff(backoff)
			}
			if err := c.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}
	}

	c.logger.Warn("Captioning retries exhausted", "attempts", maxAttempts, "error", lastErr)
	return "", &RetriesExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveAttempt(outcome)
	}
}

// doRequest executes a single attempt and returns the raw generated text.
func (c *Client) doRequest(ctx context.Context, body []byte, attempt int) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &FatalError{err: NewConfigurationError(fmt.Errorf("create HTTP request: %w", err))}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	httpReq.Header.Set("Content-Type", "image/jpeg")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and connection failures are transient
		return "", NewTransientError(0, fmt.Errorf("captioning backend unreachable: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return "", NewTransientError(0, fmt.Errorf("read response body: %w", err))
	}

	c.logger.Debug("Captioning backend responded",
		"attempt", attempt,
		"status", httpResp.StatusCode,
		"body", truncate(string(respBody), maxLogBody))

	if err := classifyStatus(httpResp.StatusCode, respBody); err != nil {
		return "", err
	}
	return ExtractText(respBody), nil
}

// classifyStatus maps a backend status to nil (success), a transient
// warm-up error, or a fatal error.
func classifyStatus(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusOK:
		return nil
	case http.StatusServiceUnavailable:
		// The hosted model is still loading
		return NewTransientError(statusCode, fmt.Errorf("captioning model warming up (status %d)", statusCode))
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewAuthenticationError(statusCode)
	default:
		return NewUpstreamError(statusCode, truncate(string(body), maxErrorBody))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
