// Package routing builds resilient provider stacks from tenant
// configuration and tracks provider health.
package routing

import (
	"time"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/providers"
	"github.com/bobmcallan/signalmesh/internal/providers/alpaca"
	"github.com/bobmcallan/signalmesh/internal/providers/finnhub"
	"github.com/bobmcallan/signalmesh/internal/providers/fmp"
	"github.com/bobmcallan/signalmesh/internal/providers/polygon"
)

const DefaultCacheTTL = 60 * time.Second

// Router holds the capability stacks built for one tenant. Every stack
// is a fallback chain of circuit-gated providers ending in the mock
// provider, so a router always answers.
type Router struct {
	quotes    interfaces.MarketDataProvider
	bars      interfaces.MarketDataProvider
	discovery interfaces.MarketDataProvider
	context   interfaces.ContextDataProvider
	screener  interfaces.ScreeningProvider

	health    *HealthMonitor
	providers []string
	caching   bool
	cacheTTL  time.Duration
}

// RouterOption configures router construction.
type RouterOption func(*routerOptions)

type routerOptions struct {
	logger   *common.Logger
	caching  bool
	cacheTTL time.Duration
}

// WithLogger sets the logger used by decorators.
func WithLogger(logger *common.Logger) RouterOption {
	return func(o *routerOptions) {
		o.logger = logger
	}
}

// WithCaching enables the read cache with the given TTL.
func WithCaching(ttl time.Duration) RouterOption {
	return func(o *routerOptions) {
		o.caching = true
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// NewRouter builds the capability stacks for a tenant from its merged
// configuration. Providers without credentials are skipped; the mock
// provider is always appended last.
func NewRouter(cfg models.TenantConfig, opts ...RouterOption) *Router {
	options := &routerOptions{
		logger:   common.NewSilentLogger(),
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(options)
	}
	if cfg.EnableCaching != nil {
		options.caching = *cfg.EnableCaching
	}
	if cfg.CacheTTLSeconds > 0 {
		options.cacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}

	health := NewHealthMonitor()
	r := &Router{
		health:   health,
		caching:  options.caching,
		cacheTTL: options.cacheTTL,
	}

	var market []interfaces.MarketDataProvider
	if cfg.AlpacaAPIKey != "" && cfg.AlpacaSecretKey != "" {
		client := alpaca.NewClient(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey, alpaca.WithLogger(options.logger))
		market = append(market, providers.NewResilientProvider("alpaca", client, health))
		r.providers = append(r.providers, "alpaca")
	}
	if cfg.PolygonAPIKey != "" {
		client := polygon.NewClient(cfg.PolygonAPIKey, polygon.WithLogger(options.logger))
		market = append(market, providers.NewResilientProvider("polygon", client, health))
		r.providers = append(r.providers, "polygon")
	}
	market = append(market, providers.NewMockProvider())
	r.providers = append(r.providers, "mock")

	marketChain := interfaces.MarketDataProvider(
		providers.NewFallbackProvider(options.logger, market...))
	if options.caching {
		marketChain = providers.NewCachingProvider(marketChain, options.cacheTTL)
	}
	r.quotes = marketChain
	r.bars = marketChain
	r.discovery = marketChain

	var contextual []interfaces.ContextDataProvider
	if cfg.FMPAPIKey != "" {
		client := fmp.NewClient(cfg.FMPAPIKey, fmp.WithLogger(options.logger))
		contextual = append(contextual, providers.NewResilientContextProvider("fmp", client, health))
		r.screener = client
	}
	if cfg.FinnhubAPIKey != "" {
		client := finnhub.NewClient(cfg.FinnhubAPIKey, finnhub.WithLogger(options.logger))
		contextual = append(contextual, providers.NewResilientContextProvider("finnhub", client, health))
	}
	contextual = append(contextual, providers.NewMockProvider())
	r.context = providers.NewContextFallbackProvider(options.logger, contextual...)

	return r
}

// Quotes returns the quote capability stack.
func (r *Router) Quotes() interfaces.MarketDataProvider { return r.quotes }

// Bars returns the historical bars capability stack.
func (r *Router) Bars() interfaces.MarketDataProvider { return r.bars }

// Discovery returns the movers/discovery capability stack.
func (r *Router) Discovery() interfaces.MarketDataProvider { return r.discovery }

// Context returns the fundamental/news capability stack.
func (r *Router) Context() interfaces.ContextDataProvider { return r.context }

// Screener returns the native screening capability, or nil when no
// configured provider supports it.
func (r *Router) Screener() interfaces.ScreeningProvider { return r.screener }

// Health returns the shared health monitor behind all stacks.
func (r *Router) Health() *HealthMonitor { return r.health }

// ProviderNames lists the configured providers in priority order,
// ending with "mock".
func (r *Router) ProviderNames() []string {
	names := make([]string, len(r.providers))
	copy(names, r.providers)
	return names
}

// CachingEnabled reports whether the read cache is active.
func (r *Router) CachingEnabled() bool { return r.caching }

// CacheTTL returns the configured read cache TTL.
func (r *Router) CacheTTL() time.Duration { return r.cacheTTL }
