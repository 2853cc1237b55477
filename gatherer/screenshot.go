package gatherer

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Screenshot captures the viewport of s as PNG bytes.
func (g *Gatherer) Screenshot(ctx context.Context, s Session) Result[[]byte] {
	log := g.log()
	log.Debug("gatherer: screenshot: entering", "session", s != nil)

	if s == nil {
		return Result[[]byte]{Status: StatusUnavailable, Err: ErrNoSession}
	}
	taker, supported := s.(ScreenshotTaker)
	if !supported {
		log.Debug("gatherer: session cannot take screenshots")
		return Result[[]byte]{Status: StatusUnsupported, Err: ErrUnsupported}
	}

	buf, err := takeScreenshot(ctx, taker)
	if err != nil {
		log.Warn("gatherer: screenshot could not be retrieved", "error", err)
		return failed[[]byte](nil, err)
	}

	log.Debug("gatherer: screenshot: exiting", "bytes", len(buf))
	return ok(buf)
}

func takeScreenshot(ctx context.Context, t ScreenshotTaker) ([]byte, error) {
	encoded, err := t.ScreenshotAs(ctx, OutputBase64)
	if err != nil {
		return nil, err
	}
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("gatherer: decode screenshot: %w", err)
	}
	return buf, nil
}

// Screenshot is Gatherer.Screenshot with default options.
func Screenshot(ctx context.Context, s Session) Result[[]byte] {
	return (*Gatherer)(nil).Screenshot(ctx, s)
}
