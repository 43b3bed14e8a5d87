package providers

import (
	"context"
	"time"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

// FallbackProvider tries an ordered list of market data providers and
// returns the first success. When every provider fails, the last error
// is returned. The chain always ends in the mock provider so a fully
// degraded stack still answers.
type FallbackProvider struct {
	providers []interfaces.MarketDataProvider
	logger    *common.Logger
}

// NewFallbackProvider builds a chain over providers in priority order.
func NewFallbackProvider(logger *common.Logger, providers ...interfaces.MarketDataProvider) *FallbackProvider {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &FallbackProvider{providers: providers, logger: logger}
}

func (p *FallbackProvider) GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	var lastErr error
	for _, provider := range p.providers {
		quotes, err := provider.GetQuotes(ctx, symbols)
		if err == nil {
			return quotes, nil
		}
		lastErr = err
		p.logger.Debug().Err(err).Msg("Quote provider failed, trying next")
	}
	return nil, lastErr
}

func (p *FallbackProvider) GetBars(ctx context.Context, req models.BarRequest) (map[string][]models.Bar, error) {
	var lastErr error
	for _, provider := range p.providers {
		bars, err := provider.GetBars(ctx, req)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		p.logger.Debug().Err(err).Msg("Bar provider failed, trying next")
	}
	return nil, lastErr
}

func (p *FallbackProvider) GetMovers(ctx context.Context, limit int) ([]models.MarketSnapshot, error) {
	var lastErr error
	for _, provider := range p.providers {
		movers, err := provider.GetMovers(ctx, limit)
		if err == nil {
			return movers, nil
		}
		lastErr = err
		p.logger.Debug().Err(err).Msg("Movers provider failed, trying next")
	}
	return nil, lastErr
}

// ContextFallbackProvider is the fallback chain over context providers.
type ContextFallbackProvider struct {
	providers []interfaces.ContextDataProvider
	logger    *common.Logger
}

// NewContextFallbackProvider builds a chain over providers in priority order.
func NewContextFallbackProvider(logger *common.Logger, providers ...interfaces.ContextDataProvider) *ContextFallbackProvider {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &ContextFallbackProvider{providers: providers, logger: logger}
}

func (p *ContextFallbackProvider) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	var lastErr error
	for _, provider := range p.providers {
		profile, err := provider.GetCompanyProfile(ctx, symbol)
		if err == nil {
			return profile, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *ContextFallbackProvider) GetFinancialMetrics(ctx context.Context, symbol string) (map[string]any, error) {
	var lastErr error
	for _, provider := range p.providers {
		metrics, err := provider.GetFinancialMetrics(ctx, symbol)
		if err == nil {
			return metrics, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *ContextFallbackProvider) GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]map[string]any, error) {
	var lastErr error
	for _, provider := range p.providers {
		calendar, err := provider.GetEarningsCalendar(ctx, start, end)
		if err == nil {
			return calendar, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *ContextFallbackProvider) GetNews(ctx context.Context, symbols []string, limit int) (map[string][]models.NewsItem, error) {
	var lastErr error
	for _, provider := range p.providers {
		news, err := provider.GetNews(ctx, symbols, limit)
		if err == nil {
			return news, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

var (
	_ interfaces.MarketDataProvider  = (*FallbackProvider)(nil)
	_ interfaces.ContextDataProvider = (*ContextFallbackProvider)(nil)
)
