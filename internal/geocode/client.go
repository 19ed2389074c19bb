package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Geocoder resolves a point to its first reverse-geocode result. A nil
// Location with a nil error means the service knows nothing at that point.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, p Point) (*Location, error)
}

// ErrRetryable marks failures worth another attempt (quota, 5xx, network).
var ErrRetryable = errors.New("retryable geocode failure")

// ClientConfig configures a Client.
type ClientConfig struct {
	APIKey   string
	Endpoint string
	Interval time.Duration // minimum spacing between requests
	Timeout  time.Duration // per attempt
	Attempts int
	Backoff  time.Duration // first retry delay, doubled each retry
}

// Client calls a Google-compatible reverse geocoding endpoint.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	attempts   int
	backoff    time.Duration
}

// NewClient creates a client from cfg, filling zero values with defaults.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    cfg.Timeout,
		attempts:   cfg.Attempts,
		backoff:    cfg.Backoff,
	}
}

type apiResponse struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	Results      []Location `json:"results"`
}

// ReverseGeocode implements Geocoder with bounded retries.
func (c *Client) ReverseGeocode(ctx context.Context, p Point) (*Location, error) {
	delay := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.attempts; attempt++ {
		loc, err := c.call(ctx, p)
		if err == nil {
			return loc, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRetryable) || attempt == c.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("reverse geocode %s: %w", p, lastErr)
}

func (c *Client) call(ctx context.Context, p Point) (*Location, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("latlng", p.String())
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrRetryable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch body.Status {
	case "OK":
		if len(body.Results) == 0 {
			return nil, nil
		}
		return &body.Results[0], nil
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT", "UNKNOWN_ERROR":
		return nil, fmt.Errorf("%w: %s", ErrRetryable, body.Status)
	default:
		return nil, fmt.Errorf("geocoder status %s: %s", body.Status, body.ErrorMessage)
	}
}
