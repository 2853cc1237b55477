package cache

import (
	"testing"
	"time"

	"github.com/use-agent/gatherer/models"
)

func newTestCache(t *testing.T, maxEntries int) (*Cache, *time.Time) {
	t.Helper()
	c := New(maxEntries)
	t.Cleanup(c.Close)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestKey(t *testing.T) {
	req := func() *models.CaptureRequest {
		return &models.CaptureRequest{URL: "https://example.com", Mode: models.ModeFullPage}
	}
	base := Key("alice", req())
	if base != Key("alice", req()) {
		t.Error("Key is not deterministic")
	}

	tests := []struct {
		name     string
		identity string
		mutate   func(*models.CaptureRequest)
	}{
		{"other caller", "bob", func(*models.CaptureRequest) {}},
		{"mode", "alice", func(r *models.CaptureRequest) { r.Mode = models.ModeViewport }},
		{"viewport", "alice", func(r *models.CaptureRequest) { r.Viewport = &models.Viewport{Width: 800, Height: 600} }},
		{"stealth", "alice", func(r *models.CaptureRequest) { r.Stealth = true }},
		{"block ads", "alice", func(r *models.CaptureRequest) { r.BlockAds = true }},
		{"headers", "alice", func(r *models.CaptureRequest) { r.Headers = map[string]string{"Accept-Language": "de"} }},
		{"cookie", "alice", func(r *models.CaptureRequest) { r.Cookies = []models.Cookie{{Name: "sid", Value: "alice"}} }},
		{"action", "alice", func(r *models.CaptureRequest) {
			r.Actions = []models.Action{{Type: "click", Selector: "#logout"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := req()
			tt.mutate(r)
			if Key(tt.identity, r) == base {
				t.Errorf("%s does not change the key", tt.name)
			}
		})
	}

	alice := req()
	alice.Cookies = []models.Cookie{{Name: "sid", Value: "alice"}}
	bob := req()
	bob.Cookies = []models.Cookie{{Name: "sid", Value: "bob"}}
	if Key("", alice) == Key("", bob) {
		t.Error("different cookie values share a key")
	}

	w1 := &models.Viewport{Width: 800, Height: 600}
	w2 := &models.Viewport{Width: 600, Height: 800}
	a, b := req(), req()
	a.Viewport, b.Viewport = w1, w2
	if Key("alice", a) == Key("alice", b) {
		t.Error("width and height are interchangeable in the key")
	}

	h1, h2 := req(), req()
	h1.Headers = map[string]string{"A": "1", "B": "2"}
	h2.Headers = map[string]string{"B": "2", "A": "1"}
	if Key("alice", h1) != Key("alice", h2) {
		t.Error("header order changes the key")
	}
}

func TestGet_MaxAge(t *testing.T) {
	c, now := newTestCache(t, 10)
	c.Set("k", &models.CaptureResponse{Success: true, Location: "https://example.com/"})

	if _, ok := c.Get("k", 0); ok {
		t.Error("max_age 0 must bypass the cache")
	}
	if _, ok := c.Get("missing", 1000); ok {
		t.Error("unknown key reported as hit")
	}

	*now = now.Add(500 * time.Millisecond)
	got, ok := c.Get("k", 1000)
	if !ok || got.Location != "https://example.com/" {
		t.Fatalf("Get = %+v, %v; want hit", got, ok)
	}

	*now = now.Add(time.Second)
	if _, ok := c.Get("k", 1000); ok {
		t.Error("stale entry reported as hit")
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	c, _ := newTestCache(t, 10)
	c.Set("k", &models.CaptureResponse{Success: true, CacheStatus: "miss", ReportEntry: &models.ReportEntry{Seq: 1}})

	first, _ := c.Get("k", 1000)
	if first.CacheStatus != "" || first.ReportEntry != nil {
		t.Errorf("per-request fields were cached: %+v", first)
	}
	first.CacheStatus = "hit"

	second, _ := c.Get("k", 1000)
	if second.CacheStatus != "" {
		t.Error("mutating a returned response changed the cached one")
	}
}

func TestSet_SkipsFailures(t *testing.T) {
	c, _ := newTestCache(t, 10)
	c.Set("k", &models.CaptureResponse{Success: false})
	c.Set("nil", nil)
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestSet_EvictsAtCapacity(t *testing.T) {
	c, _ := newTestCache(t, 2)
	c.Set("a", &models.CaptureResponse{Success: true})
	c.Set("b", &models.CaptureResponse{Success: true})
	c.Set("b", &models.CaptureResponse{Success: true})
	if c.Len() != 2 {
		t.Fatalf("overwrite evicted an entry: Len() = %d", c.Len())
	}
	c.Set("c", &models.CaptureResponse{Success: true})
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get("c", 1000); !ok {
		t.Error("newest entry missing after eviction")
	}
}

func TestSweep(t *testing.T) {
	c, now := newTestCache(t, 10)
	c.Set("old", &models.CaptureResponse{Success: true})
	*now = now.Add(50 * time.Minute)
	c.Set("new", &models.CaptureResponse{Success: true})
	*now = now.Add(20 * time.Minute)

	c.sweep()

	if _, ok := c.Get("old", int64(24*time.Hour/time.Millisecond)); ok {
		t.Error("entry older than an hour survived the sweep")
	}
	if _, ok := c.Get("new", int64(24*time.Hour/time.Millisecond)); !ok {
		t.Error("fresh entry was swept")
	}
}
