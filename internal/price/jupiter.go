package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultJupiterURL is the public Jupiter price endpoint.
const DefaultJupiterURL = "https://lite-api.jup.ag/price/v2"

// JupiterSource fetches USD prices from the Jupiter price API.
type JupiterSource struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// JupiterOption configures JupiterSource.
type JupiterOption func(*JupiterSource)

// WithJupiterHTTPClient sets the HTTP client.
func WithJupiterHTTPClient(client *http.Client) JupiterOption {
	return func(j *JupiterSource) {
		j.client = client
	}
}

// WithJupiterRetries sets the retry count and the initial backoff delay.
func WithJupiterRetries(n int, delay time.Duration) JupiterOption {
	return func(j *JupiterSource) {
		j.maxRetries = n
		j.retryDelay = delay
	}
}

// NewJupiterSource creates a JupiterSource. An empty baseURL selects DefaultJupiterURL.
func NewJupiterSource(baseURL string, opts ...JupiterOption) *JupiterSource {
	if baseURL == "" {
		baseURL = DefaultJupiterURL
	}
	j := &JupiterSource{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

type jupiterResponse struct {
	Data map[string]*struct {
		Price string `json:"price"`
	} `json:"data"`
}

// Price implements Source.
func (j *JupiterSource) Price(ctx context.Context, mint string) (float64, error) {
	u, err := url.Parse(j.baseURL)
	if err != nil {
		return 0, fmt.Errorf("parse jupiter url: %w", err)
	}
	q := u.Query()
	q.Set("ids", mint)
	u.RawQuery = q.Encode()

	body, err := j.get(ctx, u.String())
	if err != nil {
		return 0, err
	}

	var resp jupiterResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode jupiter response: %w", err)
	}

	entry := resp.Data[mint]
	if entry == nil || entry.Price == "" {
		return 0, fmt.Errorf("%w: jupiter has no price for %s", ErrPriceUnavailable, mint)
	}

	d, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return 0, fmt.Errorf("parse jupiter price %q: %w", entry.Price, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: jupiter price %s for %s", ErrPriceUnavailable, d, mint)
	}

	f, _ := d.Float64()
	return f, nil
}

// get retries transport failures, 429 and 5xx with exponential backoff.
func (j *JupiterSource) get(ctx context.Context, target string) ([]byte, error) {
	delay := j.retryDelay
	var lastErr error

	for attempt := 0; attempt <= j.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := j.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		default:
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

var _ Source = (*JupiterSource)(nil)
