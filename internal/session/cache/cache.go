// Package cache provides the read accelerator for session/user lookups.
// Entries are ephemeral projections: a miss always falls through to the
// durable store, but a hit marked invalid is an authoritative rejection so
// revocation propagates faster than TTL expiry.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	sessiondomain "github.com/devcoda25/myaccounts-bk-sub000/internal/session/domain"
	userdomain "github.com/devcoda25/myaccounts-bk-sub000/internal/user/domain"
)

// Entry is the cached projection of a session and its user, keyed by session id.
type Entry struct {
	Session *sessiondomain.Session
	User    *userdomain.User
	// Valid is false when the session was explicitly revoked. Invalid
	// entries are authoritative: the resolver rejects without consulting
	// the durable store.
	Valid bool
}

// Cache is the session cache interface. Implementations may be backed by an
// external store; all errors are best-effort for callers (logged, treated as
// misses) because the durable store is the source of truth.
type Cache interface {
	Get(id string) (*Entry, bool, error)
	Set(id string, e *Entry) error
	// MarkInvalid writes an authoritative negative entry for id.
	MarkInvalid(id string) error
	Delete(id string) error
}

// Stats are simple counters for cache behavior, for diagnostics.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int
}

type record struct {
	entry    *Entry
	cachedAt time.Time
}

// Memory is an in-memory Cache with a bounded TTL and max size.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*record
	ttl     time.Duration
	maxSize int
	nowF    func() time.Time

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

// NewMemory returns an in-memory cache. Zero ttl defaults to one hour; zero
// maxSize defaults to 10000 entries.
func NewMemory(ttl time.Duration, maxSize int) *Memory {
	if ttl == 0 {
		ttl = time.Hour
	}
	if maxSize == 0 {
		maxSize = 10000
	}
	return &Memory{
		entries: make(map[string]*record),
		ttl:     ttl,
		maxSize: maxSize,
		nowF:    time.Now,
	}
}

// Get returns the entry for id. ok is false on miss or TTL expiry.
func (c *Memory) Get(id string) (*Entry, bool, error) {
	c.mu.RLock()
	rec, exists := c.entries[id]
	c.mu.RUnlock()
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, false, nil
	}
	if c.nowF().Sub(rec.cachedAt) > c.ttl {
		atomic.AddInt64(&c.misses, 1)
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return nil, false, nil
	}
	atomic.AddInt64(&c.hits, 1)
	return rec.entry, true, nil
}

// Set stores the entry for id, evicting an arbitrary entry when full.
// Writes are idempotent for a given session id, so concurrent cache-aside
// populations are harmless.
func (c *Memory) Set(id string, e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxSize {
		for k := range c.entries {
			delete(c.entries, k)
			atomic.AddInt64(&c.evictions, 1)
			break
		}
	}
	c.entries[id] = &record{entry: e, cachedAt: c.nowF()}
	atomic.AddInt64(&c.sets, 1)
	return nil
}

// MarkInvalid writes an authoritative negative entry for id.
func (c *Memory) MarkInvalid(id string) error {
	return c.Set(id, &Entry{Valid: false})
}

// Delete removes the entry for id.
func (c *Memory) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Memory) Stats() Stats {
	c.mu.RLock()
	size := len(c.entries)
	c.mu.RUnlock()
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Sets:      atomic.LoadInt64(&c.sets),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      size,
	}
}
