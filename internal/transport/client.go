package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-cart/internal/logger"
	"storefront-cart/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultTimeout = 10 * time.Second

// TokenSource returns the bearer token for the current session, or "".
type TokenSource func() string

// Client is a JSON-over-HTTP client for the storefront APIs.
// It never retries; a failed call is reported to the caller as is.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	token      TokenSource
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit throttles outbound calls to r requests per second.
func WithRateLimit(r float64, burst int) Option {
	return func(c *Client) {
		if r > 0 && burst > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends in (if non-nil) as JSON and decodes the response into out (if non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	reqID := logger.RequestIDFrom(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "transport"),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("outbound_request_id", reqID),
	)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			log.Warn("rate limiter wait aborted", zap.Error(err))
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			log.Error("failed to marshal request", zap.Error(err))
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		log.Error("failed creating request", zap.Error(err))
		return err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(logger.RequestIDHeader, reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	timer := metrics.StartTimer()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("request failed", zap.Error(err), zap.Duration("duration", timer.Duration()))
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
			zap.Duration("duration", timer.Duration()),
		)
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(bodyBytes)),
		}
	}

	log.Debug("request done",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", timer.Duration()),
	)

	if out == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		log.Error("failed decoding response", zap.Error(err))
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
