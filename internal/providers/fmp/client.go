// Package fmp provides a context data client for the Financial Modeling Prep API
package fmp

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
	DefaultBaseURL   = "https://financialmodelingprep.com/api/v3"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements ContextDataProvider and ScreeningProvider against FMP.
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

// NewClient creates a new FMP client
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
	return fmt.Sprintf("FMP API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("path", path).Msg("FMP API request")

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

type profileResponse struct {
	Symbol            string `json:"symbol"`
	CompanyName       string `json:"companyName"`
	Sector            string `json:"sector"`
	Industry          string `json:"industry"`
	Description       string `json:"description"`
	FullTimeEmployees string `json:"fullTimeEmployees"`
	Website           string `json:"website"`
}

// GetCompanyProfile retrieves the company profile for a symbol.
func (c *Client) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	var profiles []profileResponse
	if err := c.get(ctx, "/profile/"+url.PathEscape(symbol), nil, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no profile for " + symbol, Endpoint: "/profile"}
	}

	p := profiles[0]
	employees, _ := strconv.ParseInt(p.FullTimeEmployees, 10, 64)
	return &models.CompanyProfile{
		Symbol:      p.Symbol,
		Name:        p.CompanyName,
		Sector:      p.Sector,
		Industry:    p.Industry,
		Description: p.Description,
		Employees:   employees,
		Website:     p.Website,
	}, nil
}

// GetFinancialMetrics retrieves key TTM metrics for a symbol.
func (c *Client) GetFinancialMetrics(ctx context.Context, symbol string) (map[string]any, error) {
	var metrics []map[string]any
	if err := c.get(ctx, "/key-metrics-ttm/"+url.PathEscape(symbol), nil, &metrics); err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return map[string]any{}, nil
	}
	return metrics[0], nil
}

// GetEarningsCalendar retrieves earnings announcements in the date range.
func (c *Client) GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("from", start.Format("2006-01-02"))
	params.Set("to", end.Format("2006-01-02"))

	var calendar []map[string]any
	if err := c.get(ctx, "/earning_calendar", params, &calendar); err != nil {
		return nil, err
	}
	return calendar, nil
}

type newsResponse struct {
	Symbol        string `json:"symbol"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	Site          string `json:"site"`
	URL           string `json:"url"`
	PublishedDate string `json:"publishedDate"`
}

// GetNews retrieves recent headlines keyed by symbol.
func (c *Client) GetNews(ctx context.Context, symbols []string, limit int) (map[string][]models.NewsItem, error) {
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("tickers", strings.Join(symbols, ","))
	params.Set("limit", strconv.Itoa(limit*len(symbols)))

	var items []newsResponse
	if err := c.get(ctx, "/stock_news", params, &items); err != nil {
		return nil, err
	}

	result := make(map[string][]models.NewsItem, len(symbols))
	for _, item := range items {
		if len(result[item.Symbol]) >= limit {
			continue
		}
		publishedAt, _ := time.Parse("2006-01-02 15:04:05", item.PublishedDate)
		result[item.Symbol] = append(result[item.Symbol], models.NewsItem{
			Headline:    item.Title,
			Summary:     item.Text,
			Source:      item.Site,
			URL:         item.URL,
			PublishedAt: publishedAt,
		})
	}

	return result, nil
}

type screenerResponse struct {
	Symbol        string  `json:"symbol"`
	CompanyName   string  `json:"companyName"`
	Price         float64 `json:"price"`
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"marketCap"`
	Sector        string  `json:"sector"`
	ChangePercent float64 `json:"changesPercentage"`
}

// Screen runs the upstream stock screener with the given criteria.
func (c *Client) Screen(ctx context.Context, criteria models.ScreeningCriteria) ([]models.MarketSnapshot, error) {
	params := url.Values{}
	if criteria.MinPrice > 0 {
		params.Set("priceMoreThan", strconv.FormatFloat(criteria.MinPrice, 'f', -1, 64))
	}
	if criteria.MaxPrice > 0 {
		params.Set("priceLowerThan", strconv.FormatFloat(criteria.MaxPrice, 'f', -1, 64))
	}
	if criteria.MinVolume > 0 {
		params.Set("volumeMoreThan", strconv.FormatInt(criteria.MinVolume, 10))
	}
	if criteria.Sector != "" {
		params.Set("sector", criteria.Sector)
	}
	if criteria.MinMarketCap > 0 {
		params.Set("marketCapMoreThan", strconv.FormatFloat(criteria.MinMarketCap, 'f', -1, 64))
	}
	params.Set("isActivelyTrading", "true")
	params.Set("limit", "100")

	var results []screenerResponse
	if err := c.get(ctx, "/stock-screener", params, &results); err != nil {
		return nil, err
	}

	c.logger.Debug().Int("results", len(results)).Msg("FMP screener returned results")

	snapshots := make([]models.MarketSnapshot, len(results))
	for i, r := range results {
		snapshots[i] = models.MarketSnapshot{
			Symbol:        r.Symbol,
			Price:         r.Price,
			ChangePercent: r.ChangePercent,
			Volume:        r.Volume,
			Description:   r.CompanyName,
			Source:        "fmp",
		}
	}

	return snapshots, nil
}

// Ensure Client implements the context and screening interfaces
var (
	_ interfaces.ContextDataProvider = (*Client)(nil)
	_ interfaces.ScreeningProvider   = (*Client)(nil)
)
