// Package cdpsession adapts a chromedp browser context to gatherer.Session.
//
// Elements are addressed by their selector and resolved in page JavaScript
// on every call, so a handle never goes stale across navigations of the same
// document shape.
package cdpsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/use-agent/gatherer/gatherer"
)

// Session runs every operation on the chromedp context it was created with.
// The context passed to each method only bounds that call.
type Session struct {
	tab context.Context
}

var (
	_ gatherer.Session         = (*Session)(nil)
	_ gatherer.ScreenshotTaker = (*Session)(nil)
	_ gatherer.Scroller        = (*Session)(nil)
	_ gatherer.HTMLSource      = (*Session)(nil)
)

// New wraps a context obtained from chromedp.NewContext.
func New(tab context.Context) *Session {
	return &Session{tab: tab}
}

// run executes actions on the tab, aborting when either ctx or the tab
// context is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tab, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("cdpsession: location: %w", err)
	}
	if loc == "" {
		return "", gatherer.ErrUnsupported
	}
	return loc, nil
}

func (s *Session) FindElement(ctx context.Context, selector string) (gatherer.Element, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var found bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, sel)
	if err := s.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return nil, fmt.Errorf("cdpsession: query %q: %w", selector, err)
	}
	if !found {
		return nil, gatherer.ErrNoSuchElement
	}
	return &Element{s: s, selector: string(sel)}, nil
}

func (s *Session) ViewportSize(ctx context.Context) (gatherer.Size, error) {
	var size gatherer.Size
	err := s.run(ctx, chromedp.Evaluate(`({width: window.innerWidth, height: window.innerHeight})`, &size))
	if err != nil {
		return gatherer.Size{}, fmt.Errorf("cdpsession: viewport size: %w", err)
	}
	return size, nil
}

func (s *Session) ScreenshotAs(ctx context.Context, out gatherer.OutputType) (string, error) {
	if out != gatherer.OutputBase64 {
		return "", fmt.Errorf("cdpsession: output type %q: %w", out, gatherer.ErrUnsupported)
	}
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return "", fmt.Errorf("cdpsession: capture screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func (s *Session) PageHeight(ctx context.Context) (int, error) {
	var height int
	expr := `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`
	if err := s.run(ctx, chromedp.Evaluate(expr, &height)); err != nil {
		return 0, fmt.Errorf("cdpsession: page height: %w", err)
	}
	return height, nil
}

func (s *Session) ScrollTo(ctx context.Context, y int) (int, error) {
	var reached int
	expr := fmt.Sprintf(`(() => { window.scrollTo(0, %d); return Math.round(window.scrollY); })()`, y)
	if err := s.run(ctx, chromedp.Evaluate(expr, &reached)); err != nil {
		return 0, fmt.Errorf("cdpsession: scroll to %d: %w", y, err)
	}
	return reached, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("cdpsession: html: %w", err)
	}
	return html, nil
}

// Element is the first match of a selector.
type Element struct {
	s        *Session
	selector string // JSON-quoted
}

// call evaluates fn with `this` bound to the element and decodes the result
// into res, which may be nil.
func (e *Element) call(ctx context.Context, fn string, res any, args ...any) error {
	argv, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("cdpsession: marshal args: %w", err)
	}
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (el === null) throw new Error("element detached");
		return (%s).apply(el, %s);
	})()`, e.selector, fn, argv)
	return e.s.run(ctx, chromedp.Evaluate(expr, res))
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	var visible bool
	err := e.call(ctx, `function () {
		const style = window.getComputedStyle(this);
		if (style.display === "none" || style.visibility === "hidden") return false;
		const rect = this.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	}`, &visible)
	return visible, err
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	var v string
	err := e.call(ctx, `function (name) { return this.getAttribute(name) || ""; }`, &v, name)
	return v, err
}

func (e *Element) Size(ctx context.Context) (gatherer.Size, error) {
	var size gatherer.Size
	err := e.call(ctx, `function () { return {width: this.offsetWidth, height: this.offsetHeight}; }`, &size)
	return size, err
}

func (e *Element) Exec(ctx context.Context, fn string, args ...any) error {
	return e.call(ctx, fn, nil, args...)
}
