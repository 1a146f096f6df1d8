package frequency

import (
	"sync"
	"time"
)

type entry struct {
	events []Event
	expiry time.Time
}

// Cache holds raw event sets in named regions. Entries are replaced whole.
// Every Purge starts a new generation.
type Cache struct {
	mu      sync.RWMutex
	regions map[string]map[string]entry
	gen     uint64
	now     func() time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{regions: make(map[string]map[string]entry), now: time.Now}
}

// Get returns an unexpired entry.
func (c *Cache) Get(region, key string) ([]Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.regions[region][key]
	if !ok || !c.now().Before(e.expiry) {
		return nil, false
	}
	return e.events, true
}

// Generation returns the current purge generation.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Set stores events until now+ttl. Callers must not modify events afterwards.
func (c *Cache) Set(region, key string, events []Event, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(region, key, events, ttl)
}

// SetIfGeneration stores events only if no Purge happened since gen was
// read. It reports whether the entry was stored.
func (c *Cache) SetIfGeneration(gen uint64, region, key string, events []Event, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.set(region, key, events, ttl)
	return true
}

func (c *Cache) set(region, key string, events []Event, ttl time.Duration) {
	r, ok := c.regions[region]
	if !ok {
		r = make(map[string]entry)
		c.regions[region] = r
	}
	r[key] = entry{events: events, expiry: c.now().Add(ttl)}
}

// Purge drops every entry of every region.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.regions = make(map[string]map[string]entry)
	c.gen++
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.regions {
		n += len(r)
	}
	return n
}
