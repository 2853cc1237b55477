package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/gatherer/gatherer"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	Chrome    ChromeConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Report    ReportConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 5

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// CaptureConfig controls navigation and screenshot capture.
type CaptureConfig struct {
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout is the maximum allowed timeout from the client.
	MaxTimeout time.Duration // default: 120s

	// ViewportWidth and ViewportHeight size the emulated window.
	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 800

	// ScrollDelay is the pause after each scroll while stitching.
	ScrollDelay time.Duration // default: 150ms

	// BlockedResourceTypes lists resource types to block. Images and
	// stylesheets are left alone by default since screenshots need them.
	// default: ["Media"]
	BlockedResourceTypes []string
}

// ChromeConfig names the page chrome hidden during full-page capture.
type ChromeConfig struct {
	MerchantHeader string
	MerchantFooter string
	PersonalHeader string
	PersonalFooter string

	// HideClass is appended to a chrome element's classes to hide it.
	HideClass string // default: "hide"
}

// Selectors returns the chrome selectors in the form the gatherer takes.
func (c ChromeConfig) Selectors() gatherer.ChromeSelectors {
	return gatherer.ChromeSelectors{
		MerchantHeader: c.MerchantHeader,
		MerchantFooter: c.MerchantFooter,
		PersonalHeader: c.PersonalHeader,
		PersonalFooter: c.PersonalFooter,
	}
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 2

	// Burst is the maximum burst size per API key.
	Burst int // default: 5
}

// CacheConfig controls the capture response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 200
}

// ReportConfig controls where recorded evidence is stored.
type ReportConfig struct {
	// Dir is the root directory for per-test evidence.
	Dir string // default: "reports"

	// Dedup stores a screenshot identical to the test's previous one by
	// reference only.
	Dedup bool // default: true
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("GATHERER_HOST", "0.0.0.0"),
			Port: envIntOr("GATHERER_PORT", 8080),
			Mode: envOr("GATHERER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:     envBoolOr("GATHERER_HEADLESS", true),
			MaxPages:     envIntOr("GATHERER_MAX_PAGES", 5),
			DefaultProxy: os.Getenv("GATHERER_PROXY"),
			NoSandbox:    envBoolOr("GATHERER_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("GATHERER_BROWSER_BIN"),
		},
		Capture: CaptureConfig{
			DefaultTimeout:       envDurationOr("GATHERER_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:           envDurationOr("GATHERER_MAX_TIMEOUT", 120*time.Second),
			ViewportWidth:        envIntOr("GATHERER_VIEWPORT_WIDTH", 1280),
			ViewportHeight:       envIntOr("GATHERER_VIEWPORT_HEIGHT", 800),
			ScrollDelay:          envDurationOr("GATHERER_SCROLL_DELAY", 150*time.Millisecond),
			BlockedResourceTypes: envSliceOr("GATHERER_BLOCKED_RESOURCES", []string{"Media"}),
		},
		Chrome: ChromeConfig{
			MerchantHeader: os.Getenv("GATHERER_MERCHANT_HEADER"),
			MerchantFooter: os.Getenv("GATHERER_MERCHANT_FOOTER"),
			PersonalHeader: os.Getenv("GATHERER_PERSONAL_HEADER"),
			PersonalFooter: os.Getenv("GATHERER_PERSONAL_FOOTER"),
			HideClass:      envOr("GATHERER_HIDE_CLASS", gatherer.DefaultHideClass),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("GATHERER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("GATHERER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("GATHERER_RATE_RPS", 2.0),
			Burst:             envIntOr("GATHERER_RATE_BURST", 5),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("GATHERER_CACHE_MAX_ENTRIES", 200),
		},
		Report: ReportConfig{
			Dir:   envOr("GATHERER_REPORT_DIR", "reports"),
			Dedup: envBoolOr("GATHERER_REPORT_DEDUP", true),
		},
		Log: LogConfig{
			Level:  envOr("GATHERER_LOG_LEVEL", "info"),
			Format: envOr("GATHERER_LOG_FORMAT", "json"),
		},
	}
}

// SelectorWarnings lints the chrome selectors with cascadia. The browser
// evaluates them, and it accepts syntax cascadia rejects, such as :is(),
// :where() or :focus-visible, so a finding here is advisory. A selector
// the browser also rejects fails the chrome lookup at capture time.
func (c *Config) SelectorWarnings() []string {
	selectors := []struct{ key, sel string }{
		{"GATHERER_MERCHANT_HEADER", c.Chrome.MerchantHeader},
		{"GATHERER_MERCHANT_FOOTER", c.Chrome.MerchantFooter},
		{"GATHERER_PERSONAL_HEADER", c.Chrome.PersonalHeader},
		{"GATHERER_PERSONAL_FOOTER", c.Chrome.PersonalFooter},
	}
	var warnings []string
	for _, s := range selectors {
		if s.sel == "" {
			continue
		}
		if _, err := cascadia.Compile(s.sel); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %q: %v", s.key, s.sel, err))
		}
	}
	return warnings
}

// Validate checks values that would otherwise only fail mid-capture.
// Chrome selectors are only linted: see SelectorWarnings.
func (c *Config) Validate() error {
	for _, w := range c.SelectorWarnings() {
		slog.Warn("config: chrome selector not understood by the linter", "detail", w)
	}
	if strings.ContainsAny(c.Chrome.HideClass, " \t\n") || c.Chrome.HideClass == "" {
		return fmt.Errorf("config: GATHERER_HIDE_CLASS must be a single class name, got %q", c.Chrome.HideClass)
	}
	if c.Capture.ViewportWidth <= 0 || c.Capture.ViewportHeight <= 0 {
		return fmt.Errorf("config: viewport must be positive, got %dx%d",
			c.Capture.ViewportWidth, c.Capture.ViewportHeight)
	}
	if c.Browser.MaxPages < 1 {
		return fmt.Errorf("config: GATHERER_MAX_PAGES must be at least 1, got %d", c.Browser.MaxPages)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
