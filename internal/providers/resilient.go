package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

// HealthReporter tracks per-provider consecutive failures and answers
// whether the circuit for a provider is currently closed.
type HealthReporter interface {
	RecordSuccess(provider string)
	RecordError(provider string)
	IsHealthy(provider string) bool
}

// CircuitOpenError is returned without touching the upstream when a
// provider's circuit is open. Fallback chains treat it like any other
// failure and move to the next provider.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("provider %s circuit open", e.Provider)
}

// ResilientProvider gates calls to a market data provider through a
// shared health monitor. Every outcome is reported back so consecutive
// failures eventually open the circuit.
type ResilientProvider struct {
	name   string
	inner  interfaces.MarketDataProvider
	health HealthReporter
}

// NewResilientProvider wraps inner under the given stable name.
func NewResilientProvider(name string, inner interfaces.MarketDataProvider, health HealthReporter) *ResilientProvider {
	return &ResilientProvider{name: name, inner: inner, health: health}
}

// Name returns the stable provider name used for health tracking.
func (p *ResilientProvider) Name() string {
	return p.name
}

func (p *ResilientProvider) GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	quotes, err := p.inner.GetQuotes(ctx, symbols)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

func (p *ResilientProvider) GetBars(ctx context.Context, req models.BarRequest) (map[string][]models.Bar, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	bars, err := p.inner.GetBars(ctx, req)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return bars, nil
}

func (p *ResilientProvider) GetMovers(ctx context.Context, limit int) ([]models.MarketSnapshot, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	movers, err := p.inner.GetMovers(ctx, limit)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return movers, nil
}

func (p *ResilientProvider) report(err error) {
	if err != nil {
		p.health.RecordError(p.name)
		return
	}
	p.health.RecordSuccess(p.name)
}

// ResilientContextProvider is the circuit-gated wrapper for context providers.
type ResilientContextProvider struct {
	name   string
	inner  interfaces.ContextDataProvider
	health HealthReporter
}

// NewResilientContextProvider wraps inner under the given stable name.
func NewResilientContextProvider(name string, inner interfaces.ContextDataProvider, health HealthReporter) *ResilientContextProvider {
	return &ResilientContextProvider{name: name, inner: inner, health: health}
}

func (p *ResilientContextProvider) GetCompanyProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	profile, err := p.inner.GetCompanyProfile(ctx, symbol)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (p *ResilientContextProvider) GetFinancialMetrics(ctx context.Context, symbol string) (map[string]any, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	metrics, err := p.inner.GetFinancialMetrics(ctx, symbol)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

func (p *ResilientContextProvider) GetEarningsCalendar(ctx context.Context, start, end time.Time) ([]map[string]any, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	calendar, err := p.inner.GetEarningsCalendar(ctx, start, end)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return calendar, nil
}

func (p *ResilientContextProvider) GetNews(ctx context.Context, symbols []string, limit int) (map[string][]models.NewsItem, error) {
	if !p.health.IsHealthy(p.name) {
		return nil, &CircuitOpenError{Provider: p.name}
	}
	news, err := p.inner.GetNews(ctx, symbols, limit)
	p.report(err)
	if err != nil {
		return nil, err
	}
	return news, nil
}

func (p *ResilientContextProvider) report(err error) {
	if err != nil {
		p.health.RecordError(p.name)
		return
	}
	p.health.RecordSuccess(p.name)
}

var (
	_ interfaces.MarketDataProvider  = (*ResilientProvider)(nil)
	_ interfaces.ContextDataProvider = (*ResilientContextProvider)(nil)
)
