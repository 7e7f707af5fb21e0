package scheduling

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// SLOT CACHE - LRU of computed availability, invalidated per professional
// =============================================================================

type cacheEntry struct {
	generation uint64
	slots      []time.Time
}

// SlotCache memoizes ComputeAvailableSlots results per (professional, range).
// Every booking or status change bumps the professional's generation, so an
// entry computed before the change is never served after it.
type SlotCache struct {
	cache *lru.Cache[string, cacheEntry]

	mu          sync.Mutex
	generations map[ProfessionalID]uint64
}

func NewSlotCache(size int) (*SlotCache, error) {
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create slot cache: %w", err)
	}
	return &SlotCache{cache: c, generations: make(map[ProfessionalID]uint64)}, nil
}

// Generation returns the current generation; read it before loading data.
func (c *SlotCache) Generation(id ProfessionalID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[id]
}

func (c *SlotCache) Get(id ProfessionalID, from, to time.Time) ([]time.Time, bool) {
	entry, ok := c.cache.Get(cacheKey(id, from, to))
	if !ok || entry.generation != c.Generation(id) {
		return nil, false
	}
	return slices.Clone(entry.slots), true
}

// Put stores slots computed while the professional was at generation gen.
func (c *SlotCache) Put(id ProfessionalID, from, to time.Time, gen uint64, slots []time.Time) {
	if gen != c.Generation(id) {
		return
	}
	c.cache.Add(cacheKey(id, from, to), cacheEntry{generation: gen, slots: slices.Clone(slots)})
}

// Invalidate drops every cached range of the professional.
func (c *SlotCache) Invalidate(id ProfessionalID) {
	c.mu.Lock()
	c.generations[id]++
	c.mu.Unlock()

	prefix := string(id) + "|"
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
}

// Purge drops every entry. Generations are kept so in-flight Puts stay safe.
func (c *SlotCache) Purge() { c.cache.Purge() }

func (c *SlotCache) Len() int { return c.cache.Len() }

func cacheKey(id ProfessionalID, from, to time.Time) string {
	return fmt.Sprintf("%s|%d|%d|%s", id, from.UnixNano(), to.UnixNano(), from.Location())
}
