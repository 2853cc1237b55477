package models

// CaptureResponse is the response for POST /api/v1/capture.
type CaptureResponse struct {
	// Success indicates whether the page was reached and the requested
	// evidence gathered.
	Success bool `json:"success"`

	// URL is the requested URL.
	URL string `json:"url"`

	// Mode echoes the capture mode.
	Mode string `json:"mode"`

	// Location is the page address after redirects and actions, or "n/a".
	Location       string `json:"location"`
	LocationStatus string `json:"location_status"`

	// Screenshot is the base64-encoded PNG. Empty in "location" mode or
	// when the screenshot could not be taken.
	Screenshot       string `json:"screenshot,omitempty"`
	ScreenshotStatus string `json:"screenshot_status,omitempty"`

	// Width and Height are the screenshot dimensions in pixels.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Hidden lists the page chrome hidden for a full-page capture.
	Hidden []string `json:"hidden,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// ReportEntry is set when the capture was recorded into a test report.
	ReportEntry *ReportEntry `json:"report_entry,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// NavigationMs covers navigation, settling and actions.
	NavigationMs int64 `json:"navigation_ms"`

	// CaptureMs covers location and screenshot gathering.
	CaptureMs int64 `json:"capture_ms"`
}

// ReportEntry is one recorded step of a test report.
type ReportEntry struct {
	Seq              int      `json:"seq"`
	Test             string   `json:"test"`
	Step             string   `json:"step,omitempty"`
	Time             string   `json:"time"`
	Location         string   `json:"location"`
	LocationStatus   string   `json:"location_status"`
	Screenshot       string   `json:"screenshot,omitempty"` // path relative to the test directory
	ScreenshotStatus string   `json:"screenshot_status"`
	Fingerprint      string   `json:"fingerprint,omitempty"`      // dHash of the screenshot, hex
	DOMFingerprint   string   `json:"dom_fingerprint,omitempty"`  // SimHash of the page structure, hex
	TextFingerprint  string   `json:"text_fingerprint,omitempty"` // SimHash of the visible text, hex
	TextUnchanged    bool     `json:"text_unchanged,omitempty"`   // visible text matches the previous step's
	Duplicate        bool     `json:"duplicate,omitempty"`        // screenshot matched the previous one
	Palette          []string `json:"palette,omitempty"`          // prominent colours, RRGGBB, most common first
	Blank            bool     `json:"blank,omitempty"`            // one colour covers the whole screenshot
	Error            string   `json:"error,omitempty"`
}

// ReportResponse is the response for GET /api/v1/reports/:test.
type ReportResponse struct {
	Test    string        `json:"test"`
	Entries []ReportEntry `json:"entries"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
	BrowserPID  int `json:"browser_pid"`
}
