// Package alpaca provides a market data client for the Alpaca Market Data API
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

const (
	DefaultBaseURL   = "https://data.alpaca.markets"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements MarketDataProvider against Alpaca's data API.
type Client struct {
	baseURL    string
	apiKey     string
	secretKey  string
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

// NewClient creates a new Alpaca data client
func NewClient(apiKey, secretKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		apiKey:    apiKey,
		secretKey: secretKey,
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
	return fmt.Sprintf("Alpaca API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)

	c.logger.Debug().Str("path", path).Msg("Alpaca API request")

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

type quoteResponse struct {
	Quotes map[string]struct {
		BidPrice  float64   `json:"bp"`
		BidSize   int64     `json:"bs"`
		AskPrice  float64   `json:"ap"`
		AskSize   int64     `json:"as"`
		Timestamp time.Time `json:"t"`
	} `json:"quotes"`
	Trades map[string]struct {
		Price float64 `json:"p"`
		Size  int64   `json:"s"`
	} `json:"trades"`
}

// GetQuotes retrieves the latest NBBO quotes and trades for the symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	var quotesResp quoteResponse
	if err := c.get(ctx, "/v2/stocks/quotes/latest", params, &quotesResp); err != nil {
		return nil, err
	}

	var tradesResp quoteResponse
	if err := c.get(ctx, "/v2/stocks/trades/latest", params, &tradesResp); err != nil {
		return nil, err
	}

	quotes := make([]models.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, ok := quotesResp.Quotes[symbol]
		if !ok {
			continue
		}
		quote := models.Quote{
			Symbol:    symbol,
			BidPrice:  q.BidPrice,
			BidSize:   q.BidSize,
			AskPrice:  q.AskPrice,
			AskSize:   q.AskSize,
			Timestamp: q.Timestamp,
			Provider:  "alpaca",
		}
		if t, ok := tradesResp.Trades[symbol]; ok {
			quote.LastPrice = t.Price
			quote.LastSize = t.Size
		}
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

type barResponse struct {
	Bars map[string][]struct {
		Timestamp time.Time `json:"t"`
		Open      float64   `json:"o"`
		High      float64   `json:"h"`
		Low       float64   `json:"l"`
		Close     float64   `json:"c"`
		Volume    int64     `json:"v"`
		VWAP      float64   `json:"vw"`
	} `json:"bars"`
	NextPageToken string `json:"next_page_token"`
}

// GetBars retrieves historical OHLCV bars keyed by symbol.
func (c *Client) GetBars(ctx context.Context, req models.BarRequest) (map[string][]models.Bar, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 200
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(req.Symbols, ","))
	params.Set("timeframe", alpacaTimeframe(req.Timeframe))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("adjustment", "split")
	if !req.Start.IsZero() {
		params.Set("start", req.Start.Format(time.RFC3339))
	}
	if !req.End.IsZero() {
		params.Set("end", req.End.Format(time.RFC3339))
	}

	var resp barResponse
	if err := c.get(ctx, "/v2/stocks/bars", params, &resp); err != nil {
		return nil, err
	}

	result := make(map[string][]models.Bar, len(resp.Bars))
	for symbol, bars := range resp.Bars {
		converted := make([]models.Bar, len(bars))
		for i, b := range bars {
			converted[i] = models.Bar{
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
				VWAP:      b.VWAP,
			}
		}
		result[symbol] = converted
	}

	return result, nil
}

type moversResponse struct {
	Gainers []struct {
		Symbol        string  `json:"symbol"`
		Price         float64 `json:"price"`
		PercentChange float64 `json:"percent_change"`
	} `json:"gainers"`
	Losers []struct {
		Symbol        string  `json:"symbol"`
		Price         float64 `json:"price"`
		PercentChange float64 `json:"percent_change"`
	} `json:"losers"`
}

// GetMovers retrieves top gainers and losers, interleaved by absolute move.
func (c *Client) GetMovers(ctx context.Context, limit int) ([]models.MarketSnapshot, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("top", strconv.Itoa(limit))
	}

	var resp moversResponse
	if err := c.get(ctx, "/v1beta1/screener/stocks/movers", params, &resp); err != nil {
		return nil, err
	}

	movers := make([]models.MarketSnapshot, 0, len(resp.Gainers)+len(resp.Losers))
	for _, g := range resp.Gainers {
		movers = append(movers, models.MarketSnapshot{
			Symbol:        g.Symbol,
			Price:         g.Price,
			ChangePercent: g.PercentChange,
			Source:        "alpaca",
		})
	}
	for _, l := range resp.Losers {
		movers = append(movers, models.MarketSnapshot{
			Symbol:        l.Symbol,
			Price:         l.Price,
			ChangePercent: l.PercentChange,
			Source:        "alpaca",
		})
	}

	sort.Slice(movers, func(i, j int) bool {
		return abs(movers[i].ChangePercent) > abs(movers[j].ChangePercent)
	})
	if limit > 0 && len(movers) > limit {
		movers = movers[:limit]
	}

	return movers, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func alpacaTimeframe(timeframe string) string {
	switch timeframe {
	case "1m", "":
		return "1Min"
	case "5m":
		return "5Min"
	case "15m":
		return "15Min"
	case "1h":
		return "1Hour"
	case "1d":
		return "1Day"
	default:
		return "1Min"
	}
}

// Ensure Client implements MarketDataProvider
var _ interfaces.MarketDataProvider = (*Client)(nil)
