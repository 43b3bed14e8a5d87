// Package polygon provides a market data client for the Polygon.io API
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

const (
	DefaultBaseURL   = "https://api.polygon.io"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements MarketDataProvider against Polygon.io.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Polygon client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Polygon API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("path", path).Msg("Polygon API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

type snapshotResponse struct {
	Tickers []snapshotTicker `json:"tickers"`
}

type snapshotTicker struct {
	Ticker           string  `json:"ticker"`
	TodaysChangePerc float64 `json:"todaysChangePerc"`
	LastQuote        struct {
		BidPrice  float64 `json:"p"`
		BidSize   int64   `json:"s"`
		AskPrice  float64 `json:"P"`
		AskSize   int64   `json:"S"`
		Timestamp int64   `json:"t"`
	} `json:"lastQuote"`
	LastTrade struct {
		Price float64 `json:"p"`
		Size  int64   `json:"s"`
	} `json:"lastTrade"`
	Day struct {
		Close  float64 `json:"c"`
		Volume int64   `json:"v"`
	} `json:"day"`
}

// GetQuotes retrieves the latest snapshot quotes for the symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	params := url.Values{}
	params.Set("tickers", strings.Join(symbols, ","))

	var resp snapshotResponse
	if err := c.get(ctx, "/v2/snapshot/locale/us/markets/stocks/tickers", params, &resp); err != nil {
		return nil, err
	}

	quotes := make([]models.Quote, 0, len(resp.Tickers))
	for _, t := range resp.Tickers {
		quotes = append(quotes, models.Quote{
			Symbol:    t.Ticker,
			BidPrice:  t.LastQuote.BidPrice,
			BidSize:   t.LastQuote.BidSize,
			AskPrice:  t.LastQuote.AskPrice,
			AskSize:   t.LastQuote.AskSize,
			LastPrice: t.LastTrade.Price,
			LastSize:  t.LastTrade.Size,
			Timestamp: time.Unix(0, t.LastQuote.Timestamp),
			Provider:  "polygon",
		})
	}

	return quotes, nil
}

type aggsResponse struct {
	Ticker  string `json:"ticker"`
	Results []struct {
		Timestamp int64   `json:"t"`
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		VWAP      float64 `json:"vw"`
	} `json:"results"`
}

// GetBars retrieves aggregate bars, one request per symbol.
func (c *Client) GetBars(ctx context.Context, req models.BarRequest) (map[string][]models.Bar, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 200
	}

	end := req.End
	if end.IsZero() {
		end = time.Now()
	}
	start := req.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -7)
	}

	multiplier, timespan := polygonTimespan(req.Timeframe)

	result := make(map[string][]models.Bar, len(req.Symbols))
	for _, symbol := range req.Symbols {
		path := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%d/%d",
			symbol, multiplier, timespan, start.UnixMilli(), end.UnixMilli())

		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		params.Set("sort", "desc")

		var resp aggsResponse
		if err := c.get(ctx, path, params, &resp); err != nil {
			return nil, err
		}

		bars := make([]models.Bar, len(resp.Results))
		for i, r := range resp.Results {
			bars[i] = models.Bar{
				Timestamp: time.UnixMilli(r.Timestamp),
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    int64(r.Volume),
				VWAP:      r.VWAP,
			}
		}
		result[symbol] = bars
	}

	return result, nil
}

// GetMovers retrieves the day's top gainers from the snapshot endpoint.
func (c *Client) GetMovers(ctx context.Context, limit int) ([]models.MarketSnapshot, error) {
	var resp snapshotResponse
	if err := c.get(ctx, "/v2/snapshot/locale/us/markets/stocks/gainers", nil, &resp); err != nil {
		return nil, err
	}

	movers := make([]models.MarketSnapshot, 0, len(resp.Tickers))
	for _, t := range resp.Tickers {
		movers = append(movers, models.MarketSnapshot{
			Symbol:        t.Ticker,
			Price:         t.Day.Close,
			ChangePercent: t.TodaysChangePerc,
			Volume:        t.Day.Volume,
			Source:        "polygon",
		})
	}
	if limit > 0 && len(movers) > limit {
		movers = movers[:limit]
	}

	return movers, nil
}

func polygonTimespan(timeframe string) (int, string) {
	switch timeframe {
	case "1m", "":
		return 1, "minute"
	case "5m":
		return 5, "minute"
	case "15m":
		return 15, "minute"
	case "1h":
		return 1, "hour"
	case "1d":
		return 1, "day"
	default:
		return 1, "minute"
	}
}

// Ensure Client implements MarketDataProvider
var _ interfaces.MarketDataProvider = (*Client)(nil)
