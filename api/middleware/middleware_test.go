package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/gatherer/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(APIKeyContextKey))
	})
	return r
}

func do(r http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"k1", "", "k2"}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"no key", "", "", http.StatusUnauthorized},
		{"x-api-key", "X-API-Key", "k1", http.StatusOK},
		{"bearer", "Authorization", "Bearer k2", http.StatusOK},
		{"wrong key", "X-API-Key", "k3", http.StatusUnauthorized},
		{"prefix of key", "X-API-Key", "k", http.StatusUnauthorized},
		{"basic auth", "Authorization", "Basic azE6", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header, tt.value)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}

	if body := do(r, "X-API-Key", "k1").Body.String(); body != "k1" {
		t.Errorf("authenticated key not stored in context: %q", body)
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	r := newEngine(Auth([]string{""}))
	if w := do(r, "", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := newEngine(Auth([]string{"a", "b"}), RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2}))

	for i := range 2 {
		if w := do(r, "X-API-Key", "a"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	if w := do(r, "X-API-Key", "a"); w.Code != http.StatusTooManyRequests {
		t.Errorf("over burst: status %d, want 429", w.Code)
	}
	if w := do(r, "X-API-Key", "b"); w.Code != http.StatusOK {
		t.Errorf("other identity limited: status %d", w.Code)
	}
}

func TestLimiters_Sweep(t *testing.T) {
	l := newLimiters(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	now := time.Now()
	l.allow("old", now.Add(-2*time.Hour))
	l.allow("new", now)

	l.sweep(now.Add(-time.Hour))

	if _, ok := l.entries["old"]; ok {
		t.Error("idle identity survived the sweep")
	}
	if _, ok := l.entries["new"]; !ok {
		t.Error("active identity was swept")
	}
}
