// Package interfaces defines service contracts for signalmesh
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/signalmesh/internal/models"
)

// MarketDataProvider supplies quotes, historical bars, and movers.
type MarketDataProvider interface {
	// GetQuotes returns the latest bid/ask/trade for the given symbols.
	GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)

	// GetBars returns historical OHLCV bars keyed by symbol.
	GetBars(ctx context.Context, req models.BarRequest) (map[string][]models.Bar, error)

	// GetMovers returns top gainers/losers/actives for discovery.
	GetMovers(ctx context.Context, limit int) ([]models.MarketSnapshot, error)
}

// ContextDataProvider supplies fundamental and news context.
type ContextDataProvider interface {
	GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
	GetFinancialMetrics(ctx context.Context, symbol string) (map[string]any, error)
	GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]map[string]any, error)
	GetNews(ctx context.Context, symbols []string, limit int) (map[string][]models.NewsItem, error)
}

// ScreeningProvider is an optional capability: a market data provider that
// can screen candidates natively upstream instead of client-side filtering.
// Selected at construction time, never probed at call time.
type ScreeningProvider interface {
	Screen(ctx context.Context, criteria models.ScreeningCriteria) ([]models.MarketSnapshot, error)
}
