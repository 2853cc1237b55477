package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Event types.
const (
	EventCaptureCompleted = "capture.completed"
	EventCaptureFailed    = "capture.failed"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Gatherer-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	CaptureID string `json:"capture_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, captureID string, data any) *Event {
	return &Event{Type: typ, CaptureID: captureID, Timestamp: time.Now().Unix(), Data: data}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Sender delivers events over HTTP.
type Sender struct {
	Client *http.Client
	// Delays precede each delivery attempt; its length is the attempt count.
	Delays []time.Duration
}

// DefaultSender retries after 1s, 5s and 30s.
var DefaultSender = &Sender{
	Client: &http.Client{Timeout: 10 * time.Second},
	Delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func (s *Sender) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Gatherer-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends the event in the background, retrying per Delays.
// The returned channel is closed once delivery succeeded or was given up.
func (s *Sender) DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for attempt, delay := range s.Delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"capture_id", event.CaptureID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"capture_id", event.CaptureID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"capture_id", event.CaptureID,
		)
	}()
	return done
}

// DeliverAsync sends event with DefaultSender.
func DeliverAsync(url, secret string, event *Event) <-chan struct{} {
	return DefaultSender.DeliverAsync(url, secret, event)
}
