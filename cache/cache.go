package cache

import (
	"sync"
	"time"
)

// View is a rendered representation of the stored record.
type View struct {
	ContentType string
	Body        []byte
}

// entry holds a cached view with its creation timestamp.
type entry struct {
	view      *View
	createdAt time.Time
}

// Cache holds rendered views keyed by format until they expire or the
// stored record changes. It is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	store map[string]*entry
	gen   uint64
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
}

// New creates a Cache whose entries live for ttl. A ttl <= 0 disables
// caching. A background goroutine evicts expired entries once per ttl
// until Close.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		store: make(map[string]*entry),
		ttl:   ttl,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Get returns the cached view for format if it is younger than the TTL.
func (c *Cache) Get(format string) (*View, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[format]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return nil, false
	}
	return e.view, true
}

// Generation identifies the current contents. Read it before loading the
// record a view is rendered from and pass it to SetIfGen.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// SetIfGen stores v only if no Invalidate happened since gen was read,
// so a view rendered from a record older than the last run is dropped.
func (c *Cache) SetIfGen(format string, gen uint64, v *View) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.store[format] = &entry{view: v, createdAt: c.now()}
	return true
}

// Invalidate drops every cached view and starts a new generation. Called
// after each stored run.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.store)
	c.gen++
}

// Len returns the number of cached views, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
