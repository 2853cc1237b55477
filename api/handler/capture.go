package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/gatherer/api/middleware"
	"github.com/use-agent/gatherer/cache"
	"github.com/use-agent/gatherer/capture"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/models"
	"github.com/use-agent/gatherer/webhook"
)

// Capturer runs page captures.
type Capturer interface {
	Capture(ctx context.Context, req *models.CaptureRequest) (*capture.Result, error)
	Stats() models.PoolStats
}

// Capture returns a handler for POST /api/v1/capture.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup when max_age is set and nothing is to be recorded.
//  3. Capturer.Capture → location + screenshot.
//  4. Build the response, cache it, fire the webhook, return 200.
//
// A page that was reached but could not be screenshotted still answers 200
// with success=false and the screenshot status.
func Capture(cp Capturer, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.CaptureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.CaptureResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()
		if err := validateCDPURL(req.CDPURL); err != nil {
			respondError(c, &req, err, models.TimingInfo{})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		useCache := cc != nil && req.MaxAge > 0 && req.Record == nil && req.CDPURL == ""
		cacheKey := cache.Key(c.GetString(middleware.APIKeyContextKey), &req)
		if useCache {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Capture ──────────────────────────────────────────────
		captureID := "cap-" + randomID()
		result, err := cp.Capture(c.Request.Context(), &req)
		if err != nil {
			resp := respondError(c, &req, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			notify(&req, captureID, webhook.EventCaptureFailed, resp)
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		resp := toResponse(&req, result)
		resp.Timing = models.TimingInfo{
			TotalMs:      time.Since(totalStart).Milliseconds(),
			NavigationMs: result.Navigation.Milliseconds(),
			CaptureMs:    result.Gathering.Milliseconds(),
		}

		if useCache {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		event := webhook.EventCaptureCompleted
		if !resp.Success {
			event = webhook.EventCaptureFailed
		}
		notify(&req, captureID, event, resp)

		c.JSON(http.StatusOK, resp)
	}
}

func toResponse(req *models.CaptureRequest, r *capture.Result) *models.CaptureResponse {
	resp := &models.CaptureResponse{
		Success:        true,
		URL:            req.URL,
		Mode:           req.Mode,
		Location:       r.Location.Value,
		LocationStatus: r.Location.Status.String(),
		Width:          r.Width,
		Height:         r.Height,
		Hidden:         r.Hidden,
		ReportEntry:    r.ReportEntry,
	}
	if req.Mode == models.ModeLocation {
		return resp
	}

	resp.ScreenshotStatus = r.Screenshot.Status.String()
	if r.Screenshot.OK() {
		resp.Screenshot = base64.StdEncoding.EncodeToString(r.Screenshot.Value)
		return resp
	}

	resp.Success = false
	msg := "screenshot " + r.Screenshot.Status.String()
	if r.Screenshot.Err != nil {
		msg += ": " + r.Screenshot.Err.Error()
	}
	resp.Error = &models.ErrorDetail{Code: models.ErrCodeScreenshot, Message: msg}
	return resp
}

// notify sends the capture outcome to the request's webhook, if any.
// The screenshot is left out of the payload.
func notify(req *models.CaptureRequest, captureID, event string, resp *models.CaptureResponse) {
	if req.WebhookURL == "" {
		return
	}
	payload := *resp
	payload.Screenshot = ""
	webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret, webhook.NewEvent(event, captureID, payload))
}

// validateCDPURL accepts ws(s):// endpoints and http(s):// debugger
// addresses.
func validateCDPURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return models.NewGatherError(models.ErrCodeInvalidInput, "cdp_url is not a valid URL", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
		return nil
	}
	return models.NewGatherError(models.ErrCodeInvalidInput, "cdp_url must use ws, wss, http or https", nil)
}

// respondError maps a GatherError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, req *models.CaptureRequest, err error, timing models.TimingInfo) *models.CaptureResponse {
	var gatherErr *models.GatherError
	if !errors.As(err, &gatherErr) {
		gatherErr = models.NewGatherError(models.ErrCodeInternal, err.Error(), err)
	}
	if gatherErr.Code == models.ErrCodeInternal || gatherErr.Code == models.ErrCodeBrowserCrash {
		slog.Error("capture failed", "url", req.URL, "error", err)
	} else {
		slog.Warn("capture failed", "url", req.URL, "code", gatherErr.Code, "error", err)
	}

	resp := &models.CaptureResponse{
		Success:  false,
		URL:      req.URL,
		Mode:     req.Mode,
		Location: gatherer.NoLocation,
		Error:    gatherErr.ToDetail(),
		Timing:   timing,
	}
	c.JSON(mapErrorToStatus(gatherErr), resp)
	return resp
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.GatherError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput, models.ErrCodeActionFailed:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}

// randomID generates a short random hex string for capture IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
