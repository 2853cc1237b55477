package models

// Capture modes.
const (
	ModeViewport = "viewport"
	ModeFullPage = "full_page"
	ModeLocation = "location"
)

// CaptureRequest is the payload for POST /api/v1/capture.
type CaptureRequest struct {
	// URL is the page to capture. Required.
	URL string `json:"url" binding:"required,url"`

	// Mode selects what is gathered besides the location.
	// "viewport": the visible viewport only.
	// "full_page" (default): the whole document, chrome hidden, stitched.
	// "location": the final URL only, no screenshot.
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=viewport full_page location"`

	// Timeout is the maximum duration in seconds for navigation, actions
	// and capture together. Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Stealth enables anti-bot-detection evasions before navigation.
	Stealth bool `json:"stealth,omitempty"`

	// BlockAds drops requests to well-known ad and tracking domains so
	// banners do not end up in the screenshot.
	BlockAds bool `json:"block_ads,omitempty"`

	// Viewport overrides the configured window size.
	Viewport *Viewport `json:"viewport,omitempty"`

	// Headers are extra HTTP headers sent with every page request.
	Headers map[string]string `json:"headers,omitempty"`

	// Cookies are set on the page before navigation.
	Cookies []Cookie `json:"cookies,omitempty"`

	// Actions run in order after the page has settled and before capture.
	Actions []Action `json:"actions,omitempty" binding:"omitempty,max=50,dive"`

	// CDPURL captures in the caller's own browser instead of the pool.
	CDPURL string `json:"cdp_url,omitempty"`

	// MaxAge allows a cached capture no older than this many milliseconds.
	// Zero disables the cache for this request.
	MaxAge int64 `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// Record stores the capture as a step of a test report.
	Record *RecordOptions `json:"record,omitempty"`

	// WebhookURL receives capture.completed or capture.failed.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" binding:"min=100,max=3840"`
	Height int `json:"height" binding:"min=100,max=2160"`
}

// Cookie is a cookie set before navigation. Domain defaults to the
// target host and Path to "/".
type Cookie struct {
	Name   string `json:"name" binding:"required"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Action is a browser interaction performed before capture.
type Action struct {
	// Type is one of "wait", "click", "scroll", "execute_js".
	Type string `json:"type" binding:"required,oneof=wait click scroll execute_js"`

	// Selector targets "click", or makes "wait" wait for an element.
	Selector string `json:"selector,omitempty"`

	// Milliseconds is the sleep for a "wait" without selector.
	Milliseconds int `json:"milliseconds,omitempty" binding:"omitempty,min=0,max=30000"`

	// Direction is "up" or "down" (default) for "scroll".
	Direction string `json:"direction,omitempty" binding:"omitempty,oneof=up down"`

	// Amount is the number of viewports to scroll. Default: 1.
	Amount int `json:"amount,omitempty" binding:"omitempty,min=0,max=50"`

	// Code is the JavaScript function evaluated by "execute_js".
	Code string `json:"code,omitempty"`
}

// RecordOptions names the report step a capture belongs to.
type RecordOptions struct {
	Test string `json:"test" binding:"required"`
	Step string `json:"step,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *CaptureRequest) Defaults() {
	if r.Mode == "" {
		r.Mode = ModeFullPage
	}
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}
