// Package providers implements market/context data providers and the
// decorators (caching, fallback, circuit breaking) composed around them.
package providers

import (
	"context"
	"time"

	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

// MockProvider is the guaranteed-available baseline provider appended as
// the last resort of every fallback chain. Deterministic synthetic data.
type MockProvider struct{}

// NewMockProvider creates the baseline provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) GetQuotes(_ context.Context, symbols []string) ([]models.Quote, error) {
	quotes := make([]models.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		quotes = append(quotes, models.Quote{
			Symbol:    symbol,
			BidPrice:  150.00,
			BidSize:   100,
			AskPrice:  150.10,
			AskSize:   100,
			LastPrice: 150.05,
			LastSize:  50,
			Timestamp: time.Now(),
			Provider:  "mock",
		})
	}
	return quotes, nil
}

func (p *MockProvider) GetBars(_ context.Context, req models.BarRequest) (map[string][]models.Bar, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	result := make(map[string][]models.Bar, len(req.Symbols))
	now := time.Now()
	for _, symbol := range req.Symbols {
		bars := make([]models.Bar, 0, limit)
		for i := 0; i < limit; i++ {
			bars = append(bars, models.Bar{
				Timestamp: now.Add(-time.Duration(i) * time.Minute),
				Open:      150 + float64(i),
				High:      155 + float64(i),
				Low:       145 + float64(i),
				Close:     152 + float64(i),
				Volume:    10000 + int64(i)*100,
				VWAP:      151 + float64(i),
			})
		}
		result[symbol] = bars
	}
	return result, nil
}

func (p *MockProvider) GetMovers(_ context.Context, limit int) ([]models.MarketSnapshot, error) {
	movers := []models.MarketSnapshot{
		{Symbol: "AAPL", Price: 150.00, ChangePercent: 1.5, Volume: 50000000, Description: "Apple Inc.", Source: "mock"},
		{Symbol: "TSLA", Price: 250.00, ChangePercent: -2.0, Volume: 30000000, Description: "Tesla, Inc.", Source: "mock"},
	}
	if limit > 0 && limit < len(movers) {
		movers = movers[:limit]
	}
	return movers, nil
}

func (p *MockProvider) GetCompanyProfile(_ context.Context, symbol string) (*models.CompanyProfile, error) {
	return &models.CompanyProfile{
		Symbol:      symbol,
		Name:        symbol + " Corp",
		Sector:      "Technology",
		Industry:    "Software",
		Description: "Synthetic profile",
	}, nil
}

func (p *MockProvider) GetFinancialMetrics(_ context.Context, symbol string) (map[string]any, error) {
	return map[string]any{
		"symbol":        symbol,
		"marketCap":     float64(1_000_000_000),
		"peRatio":       25.0,
		"eps":           6.0,
		"dividendYield": 0.5,
	}, nil
}

func (p *MockProvider) GetEarningsCalendar(_ context.Context, start, end time.Time) ([]map[string]any, error) {
	return []map[string]any{
		{"symbol": "AAPL", "date": start.Format("2006-01-02"), "epsEstimate": 1.5},
	}, nil
}

func (p *MockProvider) GetNews(_ context.Context, symbols []string, limit int) (map[string][]models.NewsItem, error) {
	result := make(map[string][]models.NewsItem, len(symbols))
	for _, symbol := range symbols {
		result[symbol] = []models.NewsItem{
			{Headline: symbol + " in the news", Source: "mock", PublishedAt: time.Now()},
		}
	}
	return result, nil
}

var (
	_ interfaces.MarketDataProvider  = (*MockProvider)(nil)
	_ interfaces.ContextDataProvider = (*MockProvider)(nil)
)
