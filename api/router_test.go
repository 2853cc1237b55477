package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/gatherer/capture"
	"github.com/use-agent/gatherer/config"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/models"
	"github.com/use-agent/gatherer/report"
)

type stubCapturer struct{}

func (stubCapturer) Capture(context.Context, *models.CaptureRequest) (*capture.Result, error) {
	return &capture.Result{
		Location:   gatherer.Result[string]{Value: "https://shop.test/", Status: gatherer.StatusOK},
		Screenshot: gatherer.Result[[]byte]{Status: gatherer.StatusUnavailable},
	}, nil
}

func (stubCapturer) Stats() models.PoolStats { return models.PoolStats{MaxPages: 1} }

func TestRouter(t *testing.T) {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = true
	cfg.Auth.APIKeys = []string{"secret"}

	r := NewRouter(stubCapturer{}, report.NewRecorder(t.TempDir(), nil, report.Options{}), cfg, nil, time.Now())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		key    string
		want   int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{"capture needs a key", http.MethodPost, "/api/v1/capture", `{"url":"https://shop.test","mode":"location"}`, "", http.StatusUnauthorized},
		{"capture with key", http.MethodPost, "/api/v1/capture", `{"url":"https://shop.test","mode":"location"}`, "secret", http.StatusOK},
		{"reports need a key", http.MethodGet, "/api/v1/reports/t", "", "", http.StatusUnauthorized},
		{"unknown report", http.MethodGet, "/api/v1/reports/t", "", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestRouter_ReportNameWithSlash(t *testing.T) {
	cfg := config.Load()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = false

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	rec := report.NewRecorder(t.TempDir(), nil, report.Options{})
	_, err := rec.Add("checkout/guest", report.Step{Name: "cart"}, report.Evidence{
		Location:   gatherer.Result[string]{Value: "https://shop.test/cart", Status: gatherer.StatusOK},
		Screenshot: gatherer.Result[[]byte]{Value: buf.Bytes(), Status: gatherer.StatusOK},
	})
	if err != nil {
		t.Fatal(err)
	}
	r := NewRouter(stubCapturer{}, rec, cfg, nil, time.Now())

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/v1/reports/" + url.PathEscape("checkout/guest"))
	if w.Code != http.StatusOK {
		t.Fatalf("report: status = %d, body %s", w.Code, w.Body)
	}
	var resp models.ReportResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("report is not JSON: %v: %s", err, w.Body)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Test != "checkout_guest" {
		t.Errorf("entries = %+v", resp.Entries)
	}

	if w := get("/api/v1/reports/checkout_guest"); w.Code != http.StatusOK {
		t.Errorf("sanitised name: status = %d", w.Code)
	}
	if w := get("/api/v1/reports/checkout%2Fguest/screenshots/001.png"); w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), buf.Bytes()) {
		t.Errorf("screenshot: status = %d, %d bytes", w.Code, w.Body.Len())
	}
}
