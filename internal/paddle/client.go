// Package paddle is an HTTP client for a PaddleOCR serving pipeline (POST /ocr).
package paddle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/slipguard/internal/logger"
)

const (
	// DefaultEndpoint is where `paddlex --serve --pipeline OCR` listens by default
	DefaultEndpoint = "http://localhost:8080"

	// DefaultTimeout is the default HTTP client timeout
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxRetries is the default number of retries
	DefaultMaxRetries = 2

	// DefaultRetryDelay is the initial delay between retries
	DefaultRetryDelay = 500 * time.Millisecond
)

// Client talks to a PaddleOCR serving endpoint
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *logger.Logger
	maxRetries int
	retryDelay time.Duration
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithEndpoint sets the serving endpoint
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the initial retry delay
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = delay
	}
}

// NewClient creates a new PaddleOCR client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger.Get(),
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured serving endpoint
func (c *Client) Endpoint() string {
	return c.endpoint
}

// OCR sends one base64 image and returns the pruned result of its first page.
// An image without detections yields a nil result and no error.
func (c *Client) OCR(ctx context.Context, imageB64 string) (json.RawMessage, error) {
	off := false
	req := &OCRRequest{
		File:                      imageB64,
		FileType:                  FileTypeImage,
		UseDocOrientationClassify: &off,
		UseDocUnwarping:           &off,
		Visualize:                 &off,
	}

	var resp Response
	if err := c.post(ctx, "/ocr", req, &resp); err != nil {
		return nil, err
	}
	if resp.ErrorCode != 0 {
		return nil, fmt.Errorf("paddle error %d: %s", resp.ErrorCode, resp.ErrorMsg)
	}
	if resp.Result == nil || len(resp.Result.OCRResults) == 0 {
		return nil, nil
	}
	return resp.Result.OCRResults[0].PrunedResult, nil
}

// post performs a JSON POST with retry logic.
// Transport errors and 5xx responses are retried with exponential backoff.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Debugf("Retrying paddle request (attempt %d/%d) after %v", attempt, c.maxRetries, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("failed to execute request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		// the server reports pipeline failures inside the envelope with a non-2xx status
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("paddle server error (status %d): %s", resp.StatusCode, envelopeMessage(respBody))
			c.logger.Debugf("Server error: %v", lastErr)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("paddle request rejected (status %d): %s", resp.StatusCode, envelopeMessage(respBody))
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("paddle request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func envelopeMessage(body []byte) string {
	var env Response
	if json.Unmarshal(body, &env) == nil && env.ErrorMsg != "" {
		return env.ErrorMsg
	}
	return strings.TrimSpace(string(body))
}

// HealthCheck verifies the serving process answers HTTP at all
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paddle is not accessible: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("paddle health check failed with status: %d", resp.StatusCode)
	}
	return nil
}
