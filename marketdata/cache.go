package marketdata

import (
	"sync"
	"time"
)

// DefaultStatsTTL is how long a stats fetch is considered fresh.
const DefaultStatsTTL = 60 * time.Second

// StatsCache stores the last successful 24h statistics fetch with thread safety.
// Entries are replaced only by a successful fetch; expired data keeps being served
// until one succeeds.
type StatsCache struct {
	mu        sync.RWMutex
	entries   map[string]AssetStats
	fetchedAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func NewStatsCache(ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsCache{
		entries: make(map[string]AssetStats),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached stats for id and whether they are present.
func (c *StatsCache) Get(id string) (AssetStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[id]
	return s, ok
}

// Store merges a fetch result into the cache and stamps the fetch time.
func (c *StatsCache) Store(stats map[string]AssetStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range stats {
		c.entries[id] = s
	}
	c.fetchedAt = c.now()
}

// IsStale reports whether the cache has never been filled or is older than its TTL.
func (c *StatsCache) IsStale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt.IsZero() || c.now().Sub(c.fetchedAt) > c.ttl
}

// Age is the time since the last successful fetch, zero if there was none.
func (c *StatsCache) Age() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return 0
	}
	return c.now().Sub(c.fetchedAt)
}

func (c *StatsCache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Snapshot copies the current entries.
func (c *StatsCache) Snapshot() map[string]AssetStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]AssetStats, len(c.entries))
	for id, s := range c.entries {
		out[id] = s
	}
	return out
}
