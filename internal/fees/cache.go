package fees

import (
	"sync"
	"time"

	"github.com/paylane/settlement/internal/domain"
)

// DefaultCacheTTL bounds how stale a memoized lookup may be.
const DefaultCacheTTL = 30 * time.Second

type cacheEntry struct {
	defs      []domain.FeeDefinition
	fetchedAt time.Time
}

// Cache memoizes fee definitions per scope. It is an optimization only; the
// repository stays the source of truth and every write must call Invalidate.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]cacheEntry)}
}

// Get returns the cached definitions of scope if they are still fresh.
func (c *Cache) Get(scope string) ([]domain.FeeDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[scope]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, scope)
		return nil, false
	}
	return e.defs, true
}

func (c *Cache) Put(scope string, defs []domain.FeeDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[scope] = cacheEntry{defs: defs, fetchedAt: c.now()}
}

// Invalidate drops scope. Dropping the global scope drops every entry, since
// any tenant lookup may have fallen back to it.
func (c *Cache) Invalidate(scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scope == domain.GlobalScope {
		c.entries = make(map[string]cacheEntry)
		return
	}
	delete(c.entries, scope)
}
