package stitch

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"
	"time"

	"github.com/nfnt/resize"
	"github.com/oliamb/cutter"
)

// DefaultMaxHeight caps the stitched image height in CSS pixels.
const DefaultMaxHeight = 30000

// Page is a scrollable document that can capture its viewport.
type Page interface {
	// PageHeight returns the document height in CSS pixels.
	PageHeight(ctx context.Context) (int, error)

	// ScrollTo scrolls vertically and returns the offset actually reached,
	// which is smaller than y near the end of the document.
	ScrollTo(ctx context.Context, y int) (int, error)

	// Capture returns the current viewport as an image. Its height may be a
	// multiple of the CSS viewport height on high-density displays.
	Capture(ctx context.Context) (image.Image, error)
}

// ViewportPaster scrolls through a page one window at a time and pastes the
// uncovered rows of every frame into one image.
type ViewportPaster struct {
	Cut CutStrategy

	// ScrollDelay is the pause between scrolling and capturing, giving
	// lazy content and scroll-linked styles time to settle.
	ScrollDelay time.Duration

	// MaxHeight caps the output height. Zero means DefaultMaxHeight.
	MaxHeight int

	// Logger receives progress and truncation messages. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Stitch captures the whole document of page. The page is scrolled back to
// the top afterwards, even on failure.
func (p *ViewportPaster) Stitch(ctx context.Context, page Page) (image.Image, error) {
	log := p.logger()
	docHeight, err := page.PageHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("stitch: page height: %w", err)
	}
	if docHeight <= 0 {
		return nil, fmt.Errorf("stitch: empty document (height=%d)", docHeight)
	}
	if limit := p.maxHeight(); docHeight > limit {
		log.Warn("stitch: document taller than limit, truncating",
			"height", docHeight,
			"limit", limit,
		)
		docHeight = limit
	}

	defer func() {
		if _, scrollErr := page.ScrollTo(context.WithoutCancel(ctx), 0); scrollErr != nil {
			log.Debug("stitch: failed to restore scroll position", "error", scrollErr)
		}
	}()

	var out *image.RGBA
	covered := 0
	for covered < docHeight {
		target := max(covered-p.Cut.Top, 0)
		y, err := page.ScrollTo(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("stitch: scroll to %d: %w", target, err)
		}
		if err := p.settle(ctx); err != nil {
			return nil, err
		}

		frame, err := p.capture(ctx, page)
		if err != nil {
			return nil, err
		}
		fb := frame.Bounds()
		if out == nil {
			out = image.NewRGBA(image.Rect(0, 0, fb.Dx(), docHeight))
		}

		from, to := p.Cut.band(y, docHeight)
		if y+from > covered {
			return nil, fmt.Errorf("stitch: rows %d..%d lost, scrolled to %d", covered, y+from, y)
		}
		from = covered - y
		to = min(to, docHeight-y, fb.Dy())
		if to <= from {
			return nil, fmt.Errorf("stitch: no progress at row %d (scrolled to %d)", covered, y)
		}

		width := min(fb.Dx(), out.Bounds().Dx())
		band, err := cutter.Crop(frame, cutter.Config{
			Width:  width,
			Height: to - from,
			Anchor: image.Point{X: fb.Min.X, Y: fb.Min.Y + from},
			Mode:   cutter.TopLeft,
		})
		if err != nil {
			return nil, fmt.Errorf("stitch: crop frame at %d: %w", y, err)
		}
		draw.Draw(out, image.Rect(0, y+from, width, y+to), band, band.Bounds().Min, draw.Src)

		log.Debug("stitch: pasted frame", "scrollY", y, "rows", to-from)
		covered = y + to
	}

	return out, nil
}

// capture grabs a frame and scales it to CSS pixels.
func (p *ViewportPaster) capture(ctx context.Context, page Page) (image.Image, error) {
	frame, err := page.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("stitch: capture viewport: %w", err)
	}

	viewport := p.Cut.Viewport()
	b := frame.Bounds()
	if b.Dy() == viewport || b.Dy() == 0 {
		return frame, nil
	}
	width := int(math.Round(float64(b.Dx()) * float64(viewport) / float64(b.Dy())))
	return resize.Resize(uint(width), uint(viewport), frame, resize.Bilinear), nil
}

func (p *ViewportPaster) settle(ctx context.Context) error {
	if p.ScrollDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.ScrollDelay):
		return nil
	}
}

func (p *ViewportPaster) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *ViewportPaster) maxHeight() int {
	if p.MaxHeight > 0 {
		return p.MaxHeight
	}
	return DefaultMaxHeight
}
