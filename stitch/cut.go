// Package stitch builds a full-page image out of viewport captures.
package stitch

import (
	"errors"
	"fmt"
)

// ErrEmptyWindow is returned when the header and footer bands leave no rows
// of the viewport to paste.
var ErrEmptyWindow = errors.New("stitch: header and footer cover the whole viewport")

// CutStrategy describes which rows of each viewport capture are kept.
//
// Top and Bottom are the bands covered by fixed header and footer chrome.
// They are cut from every frame except where the frame sits at the very top
// (Top kept) or bottom (Bottom kept) of the document. Window is the number of
// rows between the bands, which is also the scroll step.
type CutStrategy struct {
	Top    int
	Bottom int
	Window int
}

// NewCutStrategy returns the strategy for a viewport of the given height.
func NewCutStrategy(viewportHeight, top, bottom int) (CutStrategy, error) {
	if top < 0 || bottom < 0 {
		return CutStrategy{}, fmt.Errorf("stitch: negative cut band (top=%d, bottom=%d)", top, bottom)
	}
	window := viewportHeight - top - bottom
	if window <= 0 {
		return CutStrategy{}, fmt.Errorf("%w (viewport=%d, top=%d, bottom=%d)",
			ErrEmptyWindow, viewportHeight, top, bottom)
	}
	return CutStrategy{Top: top, Bottom: bottom, Window: window}, nil
}

// Viewport is the viewport height the strategy was built for.
func (c CutStrategy) Viewport() int {
	return c.Top + c.Window + c.Bottom
}

// band returns the usable frame rows [from, to) for a frame scrolled to y on
// a document of the given height.
func (c CutStrategy) band(y, docHeight int) (from, to int) {
	viewport := c.Viewport()
	from, to = c.Top, viewport-c.Bottom
	if y <= 0 {
		from = 0
	}
	if y+viewport >= docHeight {
		to = viewport
	}
	return from, to
}
