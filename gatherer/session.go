package gatherer

import (
	"context"
	"errors"
)

// Sentinel errors shared by the session adapters.
var (
	// ErrNoSuchElement is returned by FindElement when no element matches.
	ErrNoSuchElement = errors.New("gatherer: no such element")

	// ErrUnsupported is returned when the session cannot serve a request at
	// all, e.g. a native-app context with no addressable URL.
	ErrUnsupported = errors.New("gatherer: operation not supported by session")

	// ErrNoSession is the error attached to results produced for a nil session.
	ErrNoSession = errors.New("gatherer: no session")
)

// OutputType selects the encoding of a screenshot returned by ScreenshotAs.
type OutputType string

const (
	// OutputBase64 is a base64-encoded PNG.
	OutputBase64 OutputType = "base64"
)

// Size is a width/height pair in CSS pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Session is a live connection to a browser under automated control.
type Session interface {
	// CurrentURL returns the address of the current page.
	CurrentURL(ctx context.Context) (string, error)

	// FindElement returns the first element matching the CSS selector, or
	// ErrNoSuchElement.
	FindElement(ctx context.Context, selector string) (Element, error)

	// ViewportSize returns the size of the visible rendering area.
	ViewportSize(ctx context.Context) (Size, error)
}

// Element is a handle to a DOM element inside a Session.
type Element interface {
	Displayed(ctx context.Context) (bool, error)
	Attribute(ctx context.Context, name string) (string, error)
	Size(ctx context.Context) (Size, error)

	// Exec runs the JavaScript function fn with `this` bound to the element.
	Exec(ctx context.Context, fn string, args ...any) error
}

// ScreenshotTaker is implemented by sessions that can capture the viewport.
type ScreenshotTaker interface {
	ScreenshotAs(ctx context.Context, out OutputType) (string, error)
}

// Scroller is implemented by sessions whose document can be scrolled
// vertically. ScrollTo returns the scroll offset actually reached.
type Scroller interface {
	PageHeight(ctx context.Context) (int, error)
	ScrollTo(ctx context.Context, y int) (int, error)
}

// HTMLSource is implemented by sessions that can serialise the current DOM.
type HTMLSource interface {
	HTML(ctx context.Context) (string, error)
}
