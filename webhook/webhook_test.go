package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_Signed(t *testing.T) {
	var gotSig string
	var gotEvent Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		if want := "sha256=" + Sign("s3cret", body); gotSig != want {
			t.Errorf("signature = %q, want %q", gotSig, want)
		}
		if err := json.Unmarshal(body, &gotEvent); err != nil {
			t.Errorf("body is not an event: %v", err)
		}
	}))
	defer srv.Close()

	s := &Sender{Client: srv.Client()}
	ev := NewEvent(EventCaptureCompleted, "cap-1", map[string]string{"location": "https://example.com/"})
	if err := s.Deliver(context.Background(), srv.URL, "s3cret", ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotEvent.Type != EventCaptureCompleted || gotEvent.CaptureID != "cap-1" {
		t.Errorf("received %+v", gotEvent)
	}
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sig := r.Header.Get(SignatureHeader); sig != "" {
			t.Errorf("unexpected signature %q without secret", sig)
		}
	}))
	defer srv.Close()

	s := &Sender{Client: srv.Client()}
	if err := s.Deliver(context.Background(), srv.URL, "", NewEvent(EventCaptureFailed, "cap-2", nil)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := &Sender{Client: srv.Client()}
	if err := s.Deliver(context.Background(), srv.URL, "", NewEvent(EventCaptureFailed, "x", nil)); err == nil {
		t.Fatal("expected an error for a 503 response")
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := &Sender{Client: srv.Client(), Delays: []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}}
	select {
	case <-s.DeliverAsync(srv.URL, "", NewEvent(EventCaptureCompleted, "cap-3", nil)):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDeliverAsync_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &Sender{Client: srv.Client(), Delays: []time.Duration{0, time.Millisecond}}
	<-s.DeliverAsync(srv.URL, "", NewEvent(EventCaptureFailed, "cap-4", nil))
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}
