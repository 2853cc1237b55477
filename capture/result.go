package capture

import (
	"time"

	"github.com/use-agent/gatherer/gatherer"
	"github.com/use-agent/gatherer/report"
)

// Result is what one capture gathered. Location and Screenshot carry their
// own status; a missing screenshot is not an error of the capture.
type Result struct {
	Location gatherer.Result[string]

	// Screenshot is a PNG. Its status is StatusUnavailable in location mode.
	Screenshot gatherer.Result[[]byte]

	// Width and Height are the screenshot dimensions in pixels.
	Width  int
	Height int

	// Hidden names the chrome hidden for a full-page screenshot.
	Hidden []string

	Navigation time.Duration
	Gathering  time.Duration

	// ReportEntry is set when the capture was recorded.
	ReportEntry *report.Entry
}
