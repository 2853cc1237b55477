package capture

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/gatherer/driver/rodsession"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/models"
	"github.com/use-agent/gatherer/report"
	"github.com/ysmood/gson"
)

// Capture navigates to req.URL and gathers evidence according to req.Mode.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard       – hard deadline on the entire operation
//  2. Acquire page        – borrow a tab from the pool, or open one on req.CDPURL
//  3. DEFER: cleanup      – about:blank + return to pool, or retire the tab
//  4. Page preparation    – stealth, headers, cookies, hijack, viewport (before navigation!)
//  5. Navigate + settle   – WaitDOMStable
//  6. Actions             – wait, click, scroll, execute_js
//  7. Gather              – location, then screenshot per mode
//  8. Record              – optional report step
//
// Step 3 uses the page without the request context, so cleanup succeeds
// even when the deadline has passed.
func (c *Capturer) Capture(ctx context.Context, req *models.CaptureRequest) (res *Result, err error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, c.timeout(req.Timeout))
	defer cancel()

	if req.CDPURL != "" {
		return c.captureWithCDP(ctx, req)
	}

	// ── 2. Acquire page from pool ─────────────────────────────────────
	c.activePages.Add(1)
	defer c.activePages.Add(-1)

	page, err := c.pagePool.Get(func() (*rod.Page, error) {
		p, err := c.browser.Page(proto.TargetCreateTarget{})
		if err == nil {
			c.health.track(p)
		}
		return p, err
	})
	if err != nil {
		c.pagePool.Put(nil)
		return nil, models.NewGatherError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			err,
		)
	}

	// ── 3. Cleanup: blank the tab and return it to the pool ───────────
	// A tab that keeps failing, or that carries per-request stealth or
	// header state, is closed and its pool slot freed for a fresh one.
	defer func() {
		tainted := req.Stealth || len(req.Headers) > 0
		if c.health.release(page, err == nil, tainted) {
			slog.Debug("capture: retiring page", "tainted", tainted, "error", err)
			if closeErr := page.Close(); closeErr != nil {
				slog.Warn("cleanup: failed to close retired page", "error", closeErr)
			}
			c.pagePool.Put(nil)
			return
		}
		if navErr := page.Navigate("about:blank"); navErr != nil {
			slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		c.pagePool.Put(page)
	}()

	res, err = c.capturePage(ctx, page, req)
	return res, err
}

// captureWithCDP connects to a caller-provided browser, captures in a
// temporary tab and disconnects without killing that browser.
func (c *Capturer) captureWithCDP(ctx context.Context, req *models.CaptureRequest) (*Result, error) {
	controlURL, err := launcher.ResolveURL(req.CDPURL)
	if err != nil {
		return nil, models.NewGatherError(
			models.ErrCodeInvalidInput,
			"failed to resolve CDP URL",
			err,
		)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, models.NewGatherError(
			models.ErrCodeBrowserCrash,
			"failed to connect to CDP URL",
			err,
		)
	}
	// Close on a remote browser only drops the connection.
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewGatherError(
			models.ErrCodeBrowserCrash,
			"failed to create page on CDP browser",
			err,
		)
	}
	defer func() {
		_ = page.Context(context.WithoutCancel(ctx)).Close()
	}()

	return c.capturePage(ctx, page, req)
}

func (c *Capturer) capturePage(ctx context.Context, page *rod.Page, req *models.CaptureRequest) (*Result, error) {
	navStart := time.Now()

	// ── 4. Page preparation ───────────────────────────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}
	setHeaders(page, req)
	setCookies(page, req)

	router := blockRequests(page, c.captureCfg.BlockedResourceTypes, req.BlockAds)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	width, height := c.captureCfg.ViewportWidth, c.captureCfg.ViewportHeight
	if req.Viewport != nil {
		width, height = req.Viewport.Width, req.Viewport.Height
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, models.NewGatherError(models.ErrCodeBrowserCrash, "failed to set viewport", err)
	}

	p := page.Context(ctx)

	// ── 5. Navigate + settle ──────────────────────────────────────────
	if err := p.Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		if ctx.Err() != nil {
			return nil, categorizeError(ctx.Err(), "page did not settle before the deadline")
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", stableErr)
	}

	// ── 6. Actions ────────────────────────────────────────────────────
	if len(req.Actions) > 0 {
		if err := executeActions(ctx, page, req.Actions); err != nil {
			return nil, err
		}
	}

	res := &Result{Navigation: time.Since(navStart)}

	// ── 7. Gather ─────────────────────────────────────────────────────
	gatherStart := time.Now()
	session := rodsession.New(p)
	c.gather(ctx, session, req.Mode, res)
	res.Gathering = time.Since(gatherStart)
	if err := ctx.Err(); err != nil && !res.Screenshot.OK() && req.Mode != models.ModeLocation {
		return nil, categorizeError(err, "capture did not finish before the deadline")
	}

	// ── 8. Record ─────────────────────────────────────────────────────
	if req.Record != nil && c.recorder != nil {
		c.record(ctx, session, req, res)
	}

	return res, nil
}

// record stores the gathered evidence, plus the page source for the
// structure and text fingerprints, as a report step.
func (c *Capturer) record(ctx context.Context, src gatherer.HTMLSource, req *models.CaptureRequest, res *Result) {
	step := report.Step{Name: req.Record.Step, FullPage: req.Mode == models.ModeFullPage}
	ev := report.Evidence{Location: res.Location, Screenshot: res.Screenshot}
	if html, err := src.HTML(ctx); err == nil {
		ev.HTML = html
	} else {
		slog.Debug("capture: page source unavailable for report", "url", req.URL, "error", err)
	}

	entry, err := c.recorder.Add(req.Record.Test, step, ev)
	if err != nil {
		slog.Warn("capture: report step not recorded",
			"test", req.Record.Test,
			"url", req.URL,
			"error", err,
		)
	}
	res.ReportEntry = entry
}

// gather fills res with the location and, unless mode is location-only,
// a screenshot.
func (c *Capturer) gather(ctx context.Context, s *rodsession.Session, mode string, res *Result) {
	res.Location = c.gatherer.Location(ctx, s)

	switch mode {
	case models.ModeLocation:
		res.Screenshot = gatherer.Result[[]byte]{Status: gatherer.StatusUnavailable}
	case models.ModeViewport:
		res.Screenshot = c.gatherer.Screenshot(ctx, s)
		if res.Screenshot.OK() {
			if cfg, err := png.DecodeConfig(bytes.NewReader(res.Screenshot.Value)); err == nil {
				res.Width, res.Height = cfg.Width, cfg.Height
			}
		}
	default:
		shot := c.gatherer.FullPage(ctx, s)
		if !shot.OK() {
			res.Screenshot = gatherer.Result[[]byte]{Status: shot.Status, Err: shot.Err}
			return
		}
		buf, err := shot.Value.PNG()
		if err != nil {
			res.Screenshot = gatherer.Result[[]byte]{Status: gatherer.StatusFailed, Err: err}
			return
		}
		b := shot.Value.Image.Bounds()
		res.Screenshot = gatherer.Result[[]byte]{Value: buf, Status: gatherer.StatusOK}
		res.Width, res.Height = b.Dx(), b.Dy()
		res.Hidden = shot.Value.Hidden
	}
}

// timeout clamps the requested seconds to the configured bounds.
func (c *Capturer) timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return c.captureCfg.DefaultTimeout
	}
	return min(time.Duration(seconds)*time.Second, c.captureCfg.MaxTimeout)
}

// setHeaders sends the request's extra headers with every page request.
func setHeaders(page *rod.Page, req *models.CaptureRequest) {
	headers := make(map[string]string, len(req.Headers)+1)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer && req.Stealth {
		if u, err := url.Parse(req.URL); err == nil {
			headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	if len(headers) == 0 {
		return
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}).Call(page); err != nil {
		slog.Warn("capture: extra headers not set", "error", err)
	}
}

// setCookies installs the request's cookies, scoped to the target host
// unless a domain is given.
func setCookies(page *rod.Page, req *models.CaptureRequest) {
	var host string
	if u, err := url.Parse(req.URL); err == nil {
		host = u.Hostname()
	}
	for _, cookie := range req.Cookies {
		domain := cookie.Domain
		if domain == "" {
			domain = host
		}
		path := cookie.Path
		if path == "" {
			path = "/"
		}
		if _, err := (proto.NetworkSetCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: domain,
			Path:   path,
		}).Call(page); err != nil {
			slog.Warn("capture: cookie not set", "name", cookie.Name, "error", err)
		}
	}
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw errors into typed GatherErrors so the API layer
// can map them to appropriate HTTP status codes.
func categorizeError(err error, msg string) *models.GatherError {
	var ge *models.GatherError
	switch {
	case errors.As(err, &ge):
		return ge
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewGatherError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewGatherError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewGatherError(models.ErrCodeNavigation, msg, err)
	}
}
