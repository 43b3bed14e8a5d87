package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bobmcallan/signalmesh/internal/interfaces"
	"github.com/bobmcallan/signalmesh/internal/models"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// CachingProvider wraps a MarketDataProvider with a TTL cache keyed by
// operation and canonicalized arguments. Symbol order never affects the key.
type CachingProvider struct {
	inner interfaces.MarketDataProvider
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCachingProvider wraps inner with a cache whose entries live for ttl.
func NewCachingProvider(inner interfaces.MarketDataProvider, ttl time.Duration) *CachingProvider {
	return &CachingProvider{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (p *CachingProvider) GetQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	key := "quotes:" + canonicalSymbols(symbols)
	if cached, ok := p.lookup(key); ok {
		return cached.([]models.Quote), nil
	}
	quotes, err := p.inner.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	p.store(key, quotes)
	return quotes, nil
}

func (p *CachingProvider) GetBars(ctx context.Context, req models.BarRequest) (map[string][]models.Bar, error) {
	key := fmt.Sprintf("bars:%s:%s:%d:%d:%d",
		canonicalSymbols(req.Symbols), req.Timeframe, req.Limit,
		req.Start.Unix(), req.End.Unix())
	if cached, ok := p.lookup(key); ok {
		return cached.(map[string][]models.Bar), nil
	}
	bars, err := p.inner.GetBars(ctx, req)
	if err != nil {
		return nil, err
	}
	p.store(key, bars)
	return bars, nil
}

func (p *CachingProvider) GetMovers(ctx context.Context, limit int) ([]models.MarketSnapshot, error) {
	key := fmt.Sprintf("movers:%d", limit)
	if cached, ok := p.lookup(key); ok {
		return cached.([]models.MarketSnapshot), nil
	}
	movers, err := p.inner.GetMovers(ctx, limit)
	if err != nil {
		return nil, err
	}
	p.store(key, movers)
	return movers, nil
}

func (p *CachingProvider) lookup(key string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	if p.now().After(entry.expiresAt) {
		delete(p.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (p *CachingProvider) store(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[key] = cacheEntry{value: value, expiresAt: p.now().Add(p.ttl)}
}

// canonicalSymbols sorts a copy of symbols so ["A","B"] and ["B","A"]
// produce the same cache key.
func canonicalSymbols(symbols []string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

var _ interfaces.MarketDataProvider = (*CachingProvider)(nil)
