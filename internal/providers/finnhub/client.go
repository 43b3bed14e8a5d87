// Package finnhub provides a context data client for the Finnhub API
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

const (
	DefaultBaseURL   = "https://finnhub.io/api/v1"
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client implements ContextDataProvider against Finnhub.
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

// NewClient creates a new Finnhub client
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
	return fmt.Sprintf("Finnhub API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("path", path).Msg("Finnhub API request")

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
	Ticker               string  `json:"ticker"`
	Name                 string  `json:"name"`
	FinnhubIndustry      string  `json:"finnhubIndustry"`
	WebURL               string  `json:"weburl"`
	ShareOutstanding     float64 `json:"shareOutstanding"`
	MarketCapitalization float64 `json:"marketCapitalization"`
}

// GetCompanyProfile retrieves the company profile for a symbol.
func (c *Client) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var profile profileResponse
	if err := c.get(ctx, "/stock/profile2", params, &profile); err != nil {
		return nil, err
	}
	if profile.Name == "" {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "no profile for " + symbol, Endpoint: "/stock/profile2"}
	}

	return &models.CompanyProfile{
		Symbol:   symbol,
		Name:     profile.Name,
		Industry: profile.FinnhubIndustry,
		Website:  profile.WebURL,
	}, nil
}

type metricsResponse struct {
	Metric map[string]any `json:"metric"`
}

// GetFinancialMetrics retrieves basic financials for a symbol.
func (c *Client) GetFinancialMetrics(ctx context.Context, symbol string) (map[string]any, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("metric", "all")

	var resp metricsResponse
	if err := c.get(ctx, "/stock/metric", params, &resp); err != nil {
		return nil, err
	}
	if resp.Metric == nil {
		return map[string]any{}, nil
	}
	return resp.Metric, nil
}

type earningsCalendarResponse struct {
	EarningsCalendar []map[string]any `json:"earningsCalendar"`
}

// GetEarningsCalendar retrieves earnings announcements in the date range.
func (c *Client) GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("from", start.Format("2006-01-02"))
	params.Set("to", end.Format("2006-01-02"))

	var resp earningsCalendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &resp); err != nil {
		return nil, err
	}
	return resp.EarningsCalendar, nil
}

type newsResponse struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
}

// GetNews retrieves recent company news keyed by symbol, one request per symbol.
func (c *Client) GetNews(ctx context.Context, symbols []string, limit int) (map[string][]models.NewsItem, error) {
	if limit <= 0 {
		limit = 10
	}

	to := time.Now()
	from := to.AddDate(0, 0, -7)

	result := make(map[string][]models.NewsItem, len(symbols))
	for _, symbol := range symbols {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("from", from.Format("2006-01-02"))
		params.Set("to", to.Format("2006-01-02"))

		var items []newsResponse
		if err := c.get(ctx, "/company-news", params, &items); err != nil {
			return nil, err
		}

		if len(items) > limit {
			items = items[:limit]
		}
		news := make([]models.NewsItem, len(items))
		for i, item := range items {
			news[i] = models.NewsItem{
				Headline:    item.Headline,
				Summary:     item.Summary,
				Source:      item.Source,
				URL:         item.URL,
				PublishedAt: time.Unix(item.Datetime, 0),
			}
		}
		result[symbol] = news
	}

	return result, nil
}

// Ensure Client implements ContextDataProvider
var _ interfaces.ContextDataProvider = (*Client)(nil)
