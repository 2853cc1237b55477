package capture

import (
	"math"
	"sync"
	"time"

	"github.com/go-rod/rod"
)

// Retirement thresholds for pooled tabs.
const (
	maxErrScore = 3.0
	maxUses     = 50
	maxAge      = 50 * time.Minute
)

// pageHealth tracks how a pooled tab has fared across captures.
type pageHealth struct {
	errScore float64
	useCount int
	created  time.Time

	// tainted is set once a capture left per-request state on the tab
	// (stealth scripts, extra headers) that the next capture must not see.
	tainted bool
}

func (h *pageHealth) recordSuccess() {
	h.useCount++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *pageHealth) recordFailure() {
	h.useCount++
	h.errScore += 1.0
}

func (h *pageHealth) shouldRetire(now time.Time) bool {
	return h.tainted ||
		h.errScore >= maxErrScore ||
		h.useCount >= maxUses ||
		now.Sub(h.created) >= maxAge
}

// healthTable maps live pooled tabs to their health.
type healthTable struct {
	mu    sync.Mutex
	pages map[*rod.Page]*pageHealth
	now   func() time.Time
}

func newHealthTable() *healthTable {
	return &healthTable{pages: make(map[*rod.Page]*pageHealth), now: time.Now}
}

// release records the outcome of a capture on page and reports whether
// the tab should be closed instead of returned to the pool.
func (t *healthTable) release(page *rod.Page, ok, tainted bool) (retire bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.pages[page]
	if h == nil {
		h = &pageHealth{created: t.now()}
		t.pages[page] = h
	}
	if ok {
		h.recordSuccess()
	} else {
		h.recordFailure()
	}
	h.tainted = h.tainted || tainted

	if h.shouldRetire(t.now()) {
		delete(t.pages, page)
		return true
	}
	return false
}

// track registers a freshly opened tab.
func (t *healthTable) track(page *rod.Page) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages[page] = &pageHealth{created: t.now()}
}
