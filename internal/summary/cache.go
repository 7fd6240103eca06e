package summary

import (
	"sync"

	"github.com/skillmesh/trust-engine/pkg/models"
)

// Summary Cache
//
// agent id → latest computed (naive, hardened, usage-weighted) triple.
// The cache is the source of truth for query readers between
// recomputations. Writes happen in one short critical section; readers
// never block writers for longer than a map assignment.

// Cache owns the derived summaries
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.AgentSummary
}

// NewCache creates an empty summary cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]models.AgentSummary)}
}

// Get returns the cached triple for an agent
func (c *Cache) Get(agentID string) (models.AgentSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[agentID]
	return entry, ok
}

// Put stores a freshly computed triple
func (c *Cache) Put(entry models.AgentSummary) {
	c.mu.Lock()
	c.entries[entry.AgentID] = entry
	c.mu.Unlock()
}

// Agents returns the ids with cached summaries
func (c *Cache) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	return out
}
