// Package capture owns the headless browser and runs page captures: it
// navigates a pooled tab to a URL, prepares the page and gathers the
// location and screenshot through the gatherer package.
package capture

import (
	"log/slog"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/gatherer/config"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/models"
	"github.com/use-agent/gatherer/report"
)

// Recorder stores gathered evidence as a report step.
type Recorder interface {
	Add(test string, step report.Step, ev report.Evidence) (*report.Entry, error)
}

// Capturer manages the global browser lifecycle and the page pool.
// It is safe for concurrent use.
type Capturer struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	browserCfg  config.BrowserConfig
	captureCfg  config.CaptureConfig
	gatherer    *gatherer.Gatherer
	recorder    Recorder
	health      *healthTable
	activePages atomic.Int32
	pid         int
}

// New launches a headless browser and initialises the reusable page pool.
func New(browserCfg config.BrowserConfig, captureCfg config.CaptureConfig, g *gatherer.Gatherer) (*Capturer, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("hide-scrollbars"))
	l.Set(flags.Flag("force-device-scale-factor"), "1")
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewGatherError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "pid", l.PID())

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewGatherError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(browserCfg.MaxPages)
	slog.Info("page pool created", "maxPages", browserCfg.MaxPages)

	return &Capturer{
		browser:    browser,
		pagePool:   pool,
		browserCfg: browserCfg,
		captureCfg: captureCfg,
		gatherer:   g,
		health:     newHealthTable(),
		pid:        l.PID(),
	}, nil
}

// SetRecorder makes captures that name a report step get recorded.
func (c *Capturer) SetRecorder(r Recorder) {
	c.recorder = r
}

// Stats returns a snapshot of the pool's current state.
func (c *Capturer) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    c.browserCfg.MaxPages,
		ActivePages: int(c.activePages.Load()),
		BrowserPID:  c.pid,
	}
}

// Close drains the page pool and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (c *Capturer) Close() {
	slog.Info("capturer shutting down: draining page pool")
	c.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	slog.Info("capturer shutting down: closing browser")
	if err := c.browser.Close(); err != nil {
		slog.Warn("capturer shutdown: close browser", "error", err)
	}
	slog.Info("capturer shutdown complete")
}
