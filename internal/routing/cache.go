package routing

import (
	"fmt"
	"sync"
)

// RouterCache holds one Router per tenant, keyed by tenant id and
// config version. Bumping the version on re-encryption makes the old
// entry unreachable, so stale credentials age out without invalidation
// plumbing.
type RouterCache struct {
	mu      sync.RWMutex
	routers map[string]*Router
}

// NewRouterCache creates an empty cache.
func NewRouterCache() *RouterCache {
	return &RouterCache{routers: make(map[string]*Router)}
}

func cacheKey(tenantID string, configVersion int) string {
	return fmt.Sprintf("%s:%d", tenantID, configVersion)
}

// Get returns the cached router for the tenant at the given config
// version, or nil.
func (c *RouterCache) Get(tenantID string, configVersion int) *Router {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.routers[cacheKey(tenantID, configVersion)]
}

// Put stores a router for the tenant, dropping entries for older
// versions of the same tenant.
func (c *RouterCache) Put(tenantID string, configVersion int, router *Router) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.routers {
		if len(key) > len(tenantID) && key[:len(tenantID)+1] == tenantID+":" {
			delete(c.routers, key)
		}
	}
	c.routers[cacheKey(tenantID, configVersion)] = router
}

// Delete removes every cached router for the tenant.
func (c *RouterCache) Delete(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.routers {
		if len(key) > len(tenantID) && key[:len(tenantID)+1] == tenantID+":" {
			delete(c.routers, key)
		}
	}
}

// Len returns the number of cached routers.
func (c *RouterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routers)
}
