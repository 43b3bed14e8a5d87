package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/signalmesh/internal/models"
)

func TestRouterWithNoCredentialsFallsBackToMock(t *testing.T) {
	router := NewRouter(models.TenantConfig{})

	assert.Equal(t, []string{"mock"}, router.ProviderNames())

	quotes, err := router.Quotes().GetQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "mock", quotes[0].Provider)

	profile, err := router.Context().GetCompanyProfile(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", profile.Symbol)

	assert.Nil(t, router.Screener())
}

func TestRouterProviderOrder(t *testing.T) {
	router := NewRouter(models.TenantConfig{
		AlpacaAPIKey:    "ak",
		AlpacaSecretKey: "as",
		PolygonAPIKey:   "pk",
		FMPAPIKey:       "fk",
	})

	assert.Equal(t, []string{"alpaca", "polygon", "mock"}, router.ProviderNames())
	assert.NotNil(t, router.Screener())
}

func TestRouterCachingFromTenantConfig(t *testing.T) {
	enabled := true
	router := NewRouter(models.TenantConfig{
		EnableCaching:   &enabled,
		CacheTTLSeconds: 30,
	})

	assert.True(t, router.CachingEnabled())
	assert.Equal(t, 30*time.Second, router.CacheTTL())

	disabled := false
	router = NewRouter(models.TenantConfig{EnableCaching: &disabled})
	assert.False(t, router.CachingEnabled())
}

func TestRouterCacheVersionedLookup(t *testing.T) {
	cache := NewRouterCache()
	router := NewRouter(models.TenantConfig{})

	cache.Put("connection:abc", 1, router)
	assert.Same(t, router, cache.Get("connection:abc", 1))
	assert.Nil(t, cache.Get("connection:abc", 2))
	assert.Nil(t, cache.Get("connection:other", 1))
}

func TestRouterCachePutDropsOlderVersions(t *testing.T) {
	cache := NewRouterCache()
	old := NewRouter(models.TenantConfig{})
	fresh := NewRouter(models.TenantConfig{})

	cache.Put("connection:abc", 1, old)
	cache.Put("connection:abc", 2, fresh)

	assert.Nil(t, cache.Get("connection:abc", 1))
	assert.Same(t, fresh, cache.Get("connection:abc", 2))
	assert.Equal(t, 1, cache.Len())
}

func TestRouterCacheDelete(t *testing.T) {
	cache := NewRouterCache()
	cache.Put("connection:abc", 1, NewRouter(models.TenantConfig{}))
	cache.Put("connection:xyz", 1, NewRouter(models.TenantConfig{}))

	cache.Delete("connection:abc")
	assert.Nil(t, cache.Get("connection:abc", 1))
	assert.NotNil(t, cache.Get("connection:xyz", 1))
}
