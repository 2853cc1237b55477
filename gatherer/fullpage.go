package gatherer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/use-agent/gatherer/stitch"
)

// Shot is a stitched full-page screenshot.
type Shot struct {
	Image image.Image

	// Cut is the crop strategy the frames were stitched with.
	Cut stitch.CutStrategy

	// Hidden names the chrome elements hidden during capture.
	Hidden []string
}

// PNG encodes the screenshot.
func (s *Shot) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.Image); err != nil {
		return nil, fmt.Errorf("gatherer: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// FullPage captures the whole document of s with the configured header and
// footer chrome hidden. The session must support ScreenshotTaker and Scroller.
//
// Hidden elements are always restored before FullPage returns, whether the
// capture succeeded or not.
func (g *Gatherer) FullPage(ctx context.Context, s Session) Result[*Shot] {
	log := g.log()
	log.Debug("gatherer: full page: entering", "session", s != nil)

	if s == nil {
		return Result[*Shot]{Status: StatusUnavailable, Err: ErrNoSession}
	}
	taker, canShoot := s.(ScreenshotTaker)
	scroller, canScroll := s.(Scroller)
	if !canShoot || !canScroll {
		log.Debug("gatherer: session cannot take full-page screenshots",
			"screenshot", canShoot,
			"scroll", canScroll,
		)
		return Result[*Shot]{Status: StatusUnsupported, Err: ErrUnsupported}
	}

	var guards []*chromeGuard
	defer func() {
		g.restoreChrome(context.WithoutCancel(ctx), guards)
	}()

	shot, err := g.fullPage(ctx, s, sessionPage{Scroller: scroller, taker: taker}, &guards)
	if err != nil {
		log.Warn("gatherer: full-page screenshot could not be retrieved", "error", err)
		return failed[*Shot](nil, err)
	}

	log.Debug("gatherer: full page: exiting",
		"height", shot.Image.Bounds().Dy(),
		"hidden", shot.Hidden,
	)
	return ok(shot)
}

func (g *Gatherer) fullPage(ctx context.Context, s Session, page stitch.Page, guards *[]*chromeGuard) (*Shot, error) {
	viewport, err := s.ViewportSize(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewport size: %w", err)
	}

	var hidden []string
	if g != nil {
		for _, ce := range g.chrome {
			guard, err := g.hideChrome(ctx, s, ce)
			if err != nil {
				return nil, err
			}
			if guard != nil {
				*guards = append(*guards, guard)
				hidden = append(hidden, ce.Name)
			}
		}
	}

	top, bottom := chromeBands(*guards)
	cut, err := stitch.NewCutStrategy(viewport.Height, top, bottom)
	if err != nil {
		return nil, err
	}

	paster := &stitch.ViewportPaster{Cut: cut, Logger: g.log()}
	if g != nil {
		paster.ScrollDelay = g.scrollDelay
	}
	img, err := paster.Stitch(ctx, page)
	if err != nil {
		return nil, err
	}

	return &Shot{Image: img, Cut: cut, Hidden: hidden}, nil
}

// sessionPage adapts a session to the stitcher.
type sessionPage struct {
	Scroller
	taker ScreenshotTaker
}

func (p sessionPage) Capture(ctx context.Context) (image.Image, error) {
	buf, err := takeScreenshot(ctx, p.taker)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("gatherer: decode png: %w", err)
	}
	return img, nil
}

// FullPage is Gatherer.FullPage without any chrome to hide.
func FullPage(ctx context.Context, s Session) Result[*Shot] {
	return (*Gatherer)(nil).FullPage(ctx, s)
}

// FullPagePNG is FullPage with the stitched image encoded as PNG.
func (g *Gatherer) FullPagePNG(ctx context.Context, s Session) Result[[]byte] {
	res := g.FullPage(ctx, s)
	if !res.OK() {
		return Result[[]byte]{Status: res.Status, Err: res.Err}
	}
	buf, err := res.Value.PNG()
	if err != nil {
		return failed[[]byte](nil, err)
	}
	return ok(buf)
}
