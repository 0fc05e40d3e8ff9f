package googleads

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection is what a pull needs to address one client's ads account.
type Connection struct {
	ClientID        uuid.UUID
	CustomerID      string
	LoginCustomerID string
}

type cacheEntry struct {
	conn    Connection
	expires time.Time
}

// ConnectionCache memoizes per-client connections for a fixed TTL. It is
// owned by whoever constructs it; there is no shared instance.
type ConnectionCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[uuid.UUID]cacheEntry
}

func NewConnectionCache(ttl time.Duration) *ConnectionCache {
	return &ConnectionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]cacheEntry),
	}
}

// Get returns a live entry. Expired entries are evicted on access.
func (c *ConnectionCache) Get(clientID uuid.UUID) (Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[clientID]
	if !ok {
		return Connection{}, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, clientID)
		return Connection{}, false
	}
	return e.conn, true
}

func (c *ConnectionCache) Put(conn Connection) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[conn.ClientID] = cacheEntry{conn: conn, expires: c.now().Add(c.ttl)}
}

func (c *ConnectionCache) Invalidate(clientID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, clientID)
}

func (c *ConnectionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uuid.UUID]cacheEntry)
}

func (c *ConnectionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
