package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
)

// ttlCeiling is the age past which the cleanup loop drops entries no matter
// what max_age a later request asks for.
const ttlCeiling = time.Hour

type entry struct {
	response  models.ScrapeResponse
	createdAt time.Time
}

// Cache is an in-memory cache of successful scrape responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries responses. A background
// goroutine evicts entries older than an hour every 5 minutes until Stop.
func New(maxEntries int) *Cache {
	c := newCache(maxEntries, time.Now)
	go c.cleanupLoop(5 * time.Minute)
	return c
}

func newCache(maxEntries int, now func() time.Time) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        now,
		stop:       make(chan struct{}),
	}
}

// Key derives a cache key from everything that shapes a non-login result.
func Key(req *models.ScrapeRequest) string {
	h := sha256.New()
	parts := []string{req.URL, string(req.Mode), req.Hint, req.OutputFormat, strconv.FormatBool(req.RawMarkup)}
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cacheable reports whether a request's result may be served from or stored
// in the cache. Login runs and exports are never cached.
func Cacheable(req *models.ScrapeRequest) bool {
	return req.MaxAge > 0 && !req.LoginRequired && req.Mode != models.ModeExportButton
}

// Get returns a copy of the cached response if it is younger than maxAgeMs.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ScrapeResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > time.Duration(maxAgeMs)*time.Millisecond {
		return nil, false
	}
	resp := e.response
	return &resp, true
}

// Set stores a copy of resp. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, resp *models.ScrapeResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.store {
			if oldestKey == "" || e.createdAt.Before(oldest) {
				oldestKey, oldest = k, e.createdAt
			}
		}
		delete(c.store, oldestKey)
	}

	c.store[key] = &entry{response: *resp, createdAt: c.now()}
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the cleanup goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictOlderThan(ttlCeiling)
		}
	}
}

func (c *Cache) evictOlderThan(age time.Duration) {
	cutoff := c.now().Add(-age)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
