// Package vision provides a client for the standings extraction service, an
// external OCR/vision API that turns a match-result screenshot into rows of
// player names and placements.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bracketworks/standings-cli/internal/model"
)

// Client defines the extraction operations.
type Client interface {
	// Extract submits a screenshot and returns the parsed standings rows.
	Extract(ctx context.Context, imageBytes []byte) (*Extraction, error)
}

// Extraction is the parsed extraction response. Success=false with a
// populated Error means the service inspected the image and could not read
// standings from it; that is a result, not a transport failure.
type Extraction struct {
	Success    bool                 `json:"success"`
	Confidence float64              `json:"confidence"`
	Players    []model.ExtractedRow `json:"players"`
	Error      string               `json:"error,omitempty"`
}

// Option configures the vision client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the request rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxAttempts overrides the retry budget.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		c.maxAttempts = n
	}
}

type httpClient struct {
	apiKey      string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
}

// NewClient creates a new extraction service client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		baseURL:     "https://api.standings-vision.dev",
		limiter:     rate.NewLimiter(2, 4),
		maxAttempts: 3,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes the request with exponential backoff on transient
// failures. The request body is rebuilt from payload on each attempt.
func (c *httpClient) retryDo(ctx context.Context, url string, payload []byte) ([]byte, int, error) {
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, eris.Wrap(err, "vision: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "vision: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxAttempts {
				zap.L().Warn("vision request failed, retrying",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "vision: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < c.maxAttempts {
			lastErr = eris.Errorf("vision: status %d: %s", resp.StatusCode, string(body))
			zap.L().Warn("vision retryable status, backing off",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Extract(ctx context.Context, imageBytes []byte) (*Extraction, error) {
	if len(imageBytes) == 0 {
		return nil, eris.New("vision: empty image payload")
	}

	body, statusCode, err := c.retryDo(ctx, c.baseURL+"/v1/extract", imageBytes)
	if err != nil {
		return nil, eris.Wrap(err, "vision: extract request failed")
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("vision: unexpected status %d: %s", statusCode, string(body))
	}

	var result Extraction
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "vision: unmarshal response")
	}

	return &result, nil
}
