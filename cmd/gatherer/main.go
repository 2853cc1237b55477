package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/gatherer/api"
	"github.com/use-agent/gatherer/cache"
	"github.com/use-agent/gatherer/capture"
	"github.com/use-agent/gatherer/config"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/report"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("gatherer starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"reportDir", cfg.Report.Dir,
	)

	// ── 3. Gatherer with the site's chrome selectors ────────────────
	g := gatherer.New(gatherer.Options{
		Chrome:      cfg.Chrome.Selectors().Elements(),
		HideClass:   cfg.Chrome.HideClass,
		ScrollDelay: cfg.Capture.ScrollDelay,
		Logger:      slog.Default().With("component", "gatherer"),
	})

	// ── 4. Capturer (launches browser) ──────────────────────────────
	cp, err := capture.New(cfg.Browser, cfg.Capture, g)
	if err != nil {
		slog.Error("failed to initialise capturer", "error", err)
		os.Exit(1)
	}
	defer cp.Close()

	// ── 5. Report recorder and cache ────────────────────────────────
	rec := report.NewRecorder(cfg.Report.Dir, g, report.Options{
		Dedup:  cfg.Report.Dedup,
		Logger: slog.Default().With("component", "report"),
	})
	cp.SetRecorder(rec)

	cc := cache.New(cfg.Cache.MaxEntries)
	defer cc.Close()

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(cp, rec, cfg, cc, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Full-page captures can run long; give them the capture timeout.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Capture.DefaultTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// cp.Close() runs via defer: drains the page pool and kills Chrome.
	slog.Info("gatherer stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
