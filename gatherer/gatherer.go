// Package gatherer collects report evidence from a browser session: the
// current location, a viewport screenshot and a full-page screenshot with the
// site's header and footer chrome hidden.
//
// Every operation is best-effort. Failures never propagate as errors; they
// come back as a Result whose Status says whether the value was unavailable,
// unsupported by the session, or lost to a driver failure.
package gatherer

import (
	"log/slog"
	"time"
)

// DefaultHideClass is appended to a chrome element's class list to hide it.
const DefaultHideClass = "hide"

// ChromeRole says which crop band a chrome element belongs to.
type ChromeRole int

const (
	// RoleHeader elements are measured from the top of the viewport and
	// cropped from every frame after the first.
	RoleHeader ChromeRole = iota
	// RoleFooter elements are measured from the bottom of the viewport and
	// cropped from every frame before the last.
	RoleFooter
)

func (r ChromeRole) String() string {
	if r == RoleFooter {
		return "footer"
	}
	return "header"
}

// ChromeElement is a page header or footer hidden during full-page capture.
type ChromeElement struct {
	Name     string
	Selector string
	Role     ChromeRole
}

// ChromeSelectors names the four fixed chrome elements of the site.
// An empty selector disables that element.
type ChromeSelectors struct {
	MerchantHeader string
	MerchantFooter string
	PersonalHeader string
	PersonalFooter string
}

// Elements expands the selectors into the ordered list used for hiding.
func (c ChromeSelectors) Elements() []ChromeElement {
	return []ChromeElement{
		{Name: "merchant_header", Selector: c.MerchantHeader, Role: RoleHeader},
		{Name: "merchant_footer", Selector: c.MerchantFooter, Role: RoleFooter},
		{Name: "personal_header", Selector: c.PersonalHeader, Role: RoleHeader},
		{Name: "personal_footer", Selector: c.PersonalFooter, Role: RoleFooter},
	}
}

// Options configures a Gatherer.
type Options struct {
	// Chrome lists the elements hidden during full-page capture.
	Chrome []ChromeElement

	// HideClass is the CSS class that hides an element. Default: "hide".
	HideClass string

	// ScrollDelay is the pause after each scroll while stitching.
	ScrollDelay time.Duration

	Logger *slog.Logger
}

// Gatherer runs the gathering operations. The zero value is usable: it logs
// to slog.Default() and hides no chrome.
type Gatherer struct {
	chrome      []ChromeElement
	hideClass   string
	scrollDelay time.Duration
	logger      *slog.Logger
}

// New creates a Gatherer from opts.
func New(opts Options) *Gatherer {
	return &Gatherer{
		chrome:      opts.Chrome,
		hideClass:   opts.HideClass,
		scrollDelay: opts.ScrollDelay,
		logger:      opts.Logger,
	}
}

func (g *Gatherer) log() *slog.Logger {
	if g == nil || g.logger == nil {
		return slog.Default()
	}
	return g.logger
}

func (g *Gatherer) class() string {
	if g == nil || g.hideClass == "" {
		return DefaultHideClass
	}
	return g.hideClass
}
