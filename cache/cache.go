package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/use-agent/gatherer/models"
)

const (
	sweepInterval = 5 * time.Minute
	entryTTL      = time.Hour
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.CaptureResponse
	createdAt time.Time
}

// Cache is a simple in-memory cache for capture responses.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a new Cache with the given maximum number of entries.
// A background goroutine evicts entries older than an hour until Close
// is called.
func New(maxEntries int) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: max(maxEntries, 1),
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop()
	return c
}

// Key generates a cache key from everything in req that shapes the
// captured page: URL, mode, viewport, stealth, ad blocking, headers,
// cookies and actions. identity scopes the key to one caller, so a capture
// made with one caller's session is never served to another.
func Key(identity string, req *models.CaptureRequest) string {
	shape := struct {
		URL      string            `json:"url"`
		Mode     string            `json:"mode"`
		Viewport *models.Viewport  `json:"viewport"`
		Stealth  bool              `json:"stealth"`
		BlockAds bool              `json:"block_ads"`
		Headers  map[string]string `json:"headers"`
		Cookies  []models.Cookie   `json:"cookies"`
		Actions  []models.Action   `json:"actions"`
	}{
		URL:      req.URL,
		Mode:     req.Mode,
		Viewport: req.Viewport,
		Stealth:  req.Stealth,
		BlockAds: req.BlockAds,
		Headers:  req.Headers,
		Cookies:  req.Cookies,
		Actions:  req.Actions,
	}
	// Map keys are marshalled in sorted order, so equal requests encode
	// identically.
	payload, _ := json.Marshal(shape)

	h := sha256.New()
	h.Write([]byte(identity))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a copy of a cached response if it exists and is younger
// than maxAgeMs milliseconds. If maxAgeMs <= 0, no lookup is performed.
func (c *Cache) Get(key string, maxAgeMs int64) (*models.CaptureResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	resp := e.response
	return &resp, true
}

// Set stores a copy of resp. Only successful captures are cached. If the
// cache is at capacity, a random entry is evicted to make room.
func (c *Cache) Set(key string, resp *models.CaptureResponse) {
	if resp == nil || !resp.Success {
		return
	}
	stored := *resp
	stored.CacheStatus = ""
	stored.ReportEntry = nil

	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  stored,
		createdAt: c.now(),
	}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Close stops the background sweeper.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts entries older than entryTTL.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-entryTTL)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
