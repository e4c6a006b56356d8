package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/SirQuantumZero/Data-Manager/internal/domain"
	"github.com/SirQuantumZero/Data-Manager/internal/ports"
)

const (
	defaultBaseURL = "https://api.polygon.io"
	defaultTimeout = 30 * time.Second

	// sourceName tags bars produced by this adapter.
	sourceName = "POLYGON"

	// maxResultsPerRequest is the aggregates endpoint page size ceiling.
	maxResultsPerRequest = 50000
)

// Client implements the ports.MarketDataSource interface against the
// Polygon.io aggregates API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Polygon source adapter.
type Config struct {
	APIKey  string
	BaseURL string        // Defaults to the public API host
	Timeout time.Duration // HTTP client timeout, defaults to 30s
	Logger  ports.Logger
}

// New creates a new Polygon source adapter. An API key is required; every
// aggregates request is authenticated.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Polygon client")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Polygon client: %w", ports.ErrInvalidAPIKeys)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger,
	}, nil
}

// Name identifies the source in logs, health reports and bar tags.
func (c *Client) Name() string { return sourceName }

// aggsResponse mirrors the aggregates endpoint payload.
type aggsResponse struct {
	Ticker       string `json:"ticker"`
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	NextURL      string `json:"next_url"`
	Results      []agg  `json:"results"`
}

// agg is a single aggregate window as Polygon encodes it.
type agg struct {
	Timestamp    int64   `json:"t"` // Window start in Unix milliseconds
	Open         float64 `json:"o"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Close        float64 `json:"c"`
	Volume       float64 `json:"v"`
	VWAP         float64 `json:"vw"`
	Transactions int64   `json:"n"`
}

// Fetch retrieves aggregates for symbol covering [start, end] at the given
// timeframe and translates them into bars. Responses larger than one page
// are followed through next_url until the range is exhausted.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time, timeframe domain.Timeframe) ([]*domain.Bar, error) {
	op := "Fetch"
	multiplier, timespan, err := timeframeToRange(timeframe)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}

	requestURL := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%d/%d?adjusted=true&sort=asc&limit=%d",
		c.baseURL, url.PathEscape(symbol), multiplier, timespan, start.UnixMilli(), end.UnixMilli(), maxResultsPerRequest)

	var allBars []*domain.Bar
	for requestURL != "" {
		page, err := c.fetchPage(ctx, requestURL)
		if err != nil {
			return nil, fmt.Errorf("%s for %s failed: %w", op, symbol, err)
		}
		for _, a := range page.Results {
			bar, err := translateAgg(a, symbol)
			if err != nil {
				return nil, fmt.Errorf("%s for %s failed to translate aggregate: %w: %w", op, symbol, ports.ErrUnknown, err)
			}
			allBars = append(allBars, bar)
		}
		requestURL = page.NextURL
	}

	domain.SortBars(allBars)
	c.logger.Debug(ctx, op+" completed", map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
		"bars":      len(allBars),
	})
	return allBars, nil
}

// fetchPage performs one authenticated aggregates request and decodes the
// response, mapping HTTP failures onto the standard ports errors.
func (c *Client) fetchPage(ctx context.Context, requestURL string) (*aggsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w: %w", ports.ErrInvalidRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out: %w: %w", ports.ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request canceled: %w: %w", ports.ErrContextCanceled, err)
		}
		return nil, fmt.Errorf("request failed: %w: %w", ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %w: %s", resp.StatusCode, statusToErr(resp.StatusCode), string(body))
	}

	var page aggsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w: %w", ports.ErrUnknown, err)
	}
	return &page, nil
}

// statusToErr maps an HTTP status code onto the standard ports errors.
func statusToErr(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ports.ErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return ports.ErrInvalidAPIKeys
	case http.StatusNotFound:
		return ports.ErrNotFound
	case http.StatusTooManyRequests:
		return ports.ErrRateLimited
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ports.ErrSourceUnavailable
	default:
		return ports.ErrUnknown
	}
}

// Ping checks the connectivity to the Polygon API via the market status
// endpoint.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/marketstatus/now", nil)
	if err != nil {
		return fmt.Errorf("%s failed to build request: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s got status %d: %w", op, resp.StatusCode, statusToErr(resp.StatusCode))
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// timeframeToRange maps a bar timeframe onto the aggregates multiplier and
// timespan path segments.
func timeframeToRange(timeframe domain.Timeframe) (int, string, error) {
	switch timeframe {
	case domain.Timeframe1m:
		return 1, "minute", nil
	case domain.Timeframe5m:
		return 5, "minute", nil
	case domain.Timeframe15m:
		return 15, "minute", nil
	case domain.Timeframe30m:
		return 30, "minute", nil
	case domain.Timeframe1h:
		return 1, "hour", nil
	case domain.Timeframe1d:
		return 1, "day", nil
	case domain.Timeframe1w:
		return 1, "week", nil
	default:
		return 0, "", fmt.Errorf("no Polygon range for timeframe %q", timeframe)
	}
}

// translateAgg converts one aggregate window into a domain bar. Polygon
// reports volume as a float; it is truncated to whole units.
func translateAgg(a agg, symbol string) (*domain.Bar, error) {
	bar := domain.Bar{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(a.Timestamp),
		Open:      a.Open,
		High:      a.High,
		Low:       a.Low,
		Close:     a.Close,
		Volume:    int64(a.Volume),
		Source:    sourceName,
	}
	if a.VWAP > 0 {
		bar.VWAP = domain.Float64Ptr(a.VWAP)
	}
	if a.Transactions > 0 {
		bar.Transactions = domain.Int64Ptr(a.Transactions)
	}
	return domain.NewBar(bar)
}
