// Package screener finds discovery candidates, preferring a provider's
// native screening capability over client-side filtering.
package screener

import (
	"context"
	"strings"

	"github.com/bobmcallan/signalmesh/internal/common"
	"github.com/bobmcallan/signalmesh/internal/models"
	"github.com/bobmcallan/signalmesh/internal/routing"
)

// fallbackUniverse caps the movers fetch used for client-side filtering.
const fallbackUniverse = 50

// Service screens for candidates against a tenant's router.
type Service struct {
	logger *common.Logger
}

// NewService creates a screener service.
func NewService(logger *common.Logger) *Service {
	return &Service{logger: logger}
}

// Screen returns candidates matching the criteria. The native screener is
// chosen at router construction time; when the tenant has none, the
// discovery stack's movers are filtered locally instead.
func (s *Service) Screen(ctx context.Context, router *routing.Router, criteria models.ScreeningCriteria) ([]models.MarketSnapshot, error) {
	if native := router.Screener(); native != nil {
		results, err := native.Screen(ctx, criteria)
		if err == nil {
			return results, nil
		}
		s.logger.Warn().Err(err).Msg("Native screener failed, filtering movers instead")
	}

	movers, err := router.Discovery().GetMovers(ctx, fallbackUniverse)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.MarketSnapshot, 0, len(movers))
	for _, m := range movers {
		if matches(m, criteria) {
			filtered = append(filtered, m)
		}
	}

	if criteria.Sector != "" || criteria.MinMarketCap > 0 {
		filtered = s.filterByContext(ctx, router, filtered, criteria)
	}
	return filtered, nil
}

// filterByContext narrows candidates using company profiles and metrics.
// Lookups are best effort: a candidate whose context cannot be fetched is
// dropped rather than passed through unverified.
func (s *Service) filterByContext(ctx context.Context, router *routing.Router, candidates []models.MarketSnapshot, criteria models.ScreeningCriteria) []models.MarketSnapshot {
	kept := make([]models.MarketSnapshot, 0, len(candidates))
	for _, m := range candidates {
		if criteria.Sector != "" {
			profile, err := router.Context().GetCompanyProfile(ctx, m.Symbol)
			if err != nil {
				s.logger.Debug().Err(err).Str("symbol", m.Symbol).Msg("Profile lookup failed during screening")
				continue
			}
			if !strings.EqualFold(profile.Sector, criteria.Sector) {
				continue
			}
		}
		if criteria.MinMarketCap > 0 {
			metrics, err := router.Context().GetFinancialMetrics(ctx, m.Symbol)
			if err != nil {
				s.logger.Debug().Err(err).Str("symbol", m.Symbol).Msg("Metrics lookup failed during screening")
				continue
			}
			if marketCap(metrics) < criteria.MinMarketCap {
				continue
			}
		}
		kept = append(kept, m)
	}
	return kept
}

// marketCap extracts the capitalization from provider metrics. Providers
// disagree on the key name.
func marketCap(metrics map[string]any) float64 {
	for _, key := range []string{"marketCap", "market_cap", "marketCapitalization", "mktCapUSD"} {
		if v, ok := metrics[key]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}

func matches(m models.MarketSnapshot, c models.ScreeningCriteria) bool {
	if c.MinPrice > 0 && m.Price < c.MinPrice {
		return false
	}
	if c.MaxPrice > 0 && m.Price > c.MaxPrice {
		return false
	}
	if c.MinVolume > 0 && m.Volume < c.MinVolume {
		return false
	}
	return true
}
