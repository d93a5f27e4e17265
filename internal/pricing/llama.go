package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"chain-tax-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultLlamaBaseURL = "https://coins.llama.fi"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultBackoffMult  = 2.0
	DefaultRatePerSec   = 5
	DefaultSearchWidth  = "4h"
)

// LlamaSource implements HistoricalSource against a DefiLlama-style coins API:
// GET {base}/prices/historical/{unix_seconds}/{coins}?searchWidth=...
type LlamaSource struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	searchWidth string
}

// SourceOption configures LlamaSource.
type SourceOption func(*LlamaSource)

// WithSourceTimeout sets HTTP client timeout.
func WithSourceTimeout(d time.Duration) SourceOption {
	return func(s *LlamaSource) {
		s.client.Timeout = d
	}
}

// WithSourceRetries sets maximum retry attempts and the initial retry delay.
func WithSourceRetries(n int, delay time.Duration) SourceOption {
	return func(s *LlamaSource) {
		s.maxRetries = n
		s.retryDelay = delay
	}
}

// WithRateLimit sets the request rate limit. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) SourceOption {
	return func(s *LlamaSource) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSourceHTTPClient sets custom http.Client.
func WithSourceHTTPClient(client *http.Client) SourceOption {
	return func(s *LlamaSource) {
		s.client = client
	}
}

// WithSearchWidth sets how far from the timestamp the service may look.
func WithSearchWidth(w string) SourceOption {
	return func(s *LlamaSource) {
		s.searchWidth = w
	}
}

// NewLlamaSource creates a new coins API client.
func NewLlamaSource(baseURL string, opts ...SourceOption) *LlamaSource {
	if baseURL == "" {
		baseURL = DefaultLlamaBaseURL
	}
	s := &LlamaSource{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRatePerSec), 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		searchWidth: DefaultSearchWidth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// llamaResponse is the coins API response body.
type llamaResponse struct {
	Coins map[string]llamaCoin `json:"coins"`
}

type llamaCoin struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  int64           `json:"timestamp"`
	Confidence float64         `json:"confidence"`
}

// HistoricalPrice returns the USD price of key at ts (milliseconds).
func (s *LlamaSource) HistoricalPrice(ctx context.Context, key string, ts int64) (decimal.Decimal, error) {
	start := time.Now()
	price, err := s.fetch(ctx, key, ts)
	observability.RecordPriceSource(time.Since(start).Seconds(), err)
	return price, err
}

func (s *LlamaSource) fetch(ctx context.Context, key string, ts int64) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/prices/historical/%d/%s", s.baseURL, ts/1000, url.PathEscape(key))
	if s.searchWidth != "" {
		endpoint += "?searchWidth=" + url.QueryEscape(s.searchWidth)
	}

	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return decimal.Zero, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return decimal.Zero, fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return decimal.Zero, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting and server errors
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}

		// Client errors are not retried
		if resp.StatusCode != http.StatusOK {
			return decimal.Zero, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
		}

		var parsed llamaResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return decimal.Zero, fmt.Errorf("unmarshal response: %w", err)
		}

		coin, ok := parsed.Coins[key]
		if !ok {
			return decimal.Zero, fmt.Errorf("%s: %w", key, ErrCoinNotFound)
		}
		if !coin.Price.IsPositive() {
			return decimal.Zero, fmt.Errorf("%s: non-positive price %s", key, coin.Price)
		}
		return coin.Price, nil
	}

	return decimal.Zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ HistoricalSource = (*LlamaSource)(nil)
