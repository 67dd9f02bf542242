package planner

import "sync"

// Cache memoizes Plans by their Intent's CacheKey (the verbatim SQL
// text, so structurally identical statements with different text are
// cached separately), and invalidates every entry in one shot when the
// schema cookie changes.
type Cache struct {
	mu           sync.Mutex
	schemaCookie uint32
	plans        map[string]*Plan
}

// NewCache returns an empty cache bound to no schema generation yet; the
// first Get/Put call seeds schemaCookie.
func NewCache() *Cache {
	return &Cache{plans: make(map[string]*Plan)}
}

// Get returns the cached plan for key under schemaCookie, or nil if
// absent or the cookie has advanced since the entry was stored.
func (c *Cache) Get(schemaCookie uint32, key string) *Plan {
	c.mu.Lock()
	defer c.mu.Unlock()
	if schemaCookie != c.schemaCookie {
		c.plans = make(map[string]*Plan)
		c.schemaCookie = schemaCookie
		return nil
	}
	return c.plans[key]
}

// Put stores plan under key for the given schema generation, discarding
// the whole cache first if schemaCookie has moved on.
func (c *Cache) Put(schemaCookie uint32, key string, plan *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if schemaCookie != c.schemaCookie {
		c.plans = make(map[string]*Plan)
		c.schemaCookie = schemaCookie
	}
	c.plans[key] = plan
}

// Len reports the number of cached plans, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.plans)
}
