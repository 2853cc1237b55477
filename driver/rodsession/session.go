// Package rodsession adapts a go-rod page to gatherer.Session.
package rodsession

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/gatherer/gatherer"
	"github.com/ysmood/gson"
)

// Session wraps a rod page. Every call is bound to the context it is given.
type Session struct {
	page *rod.Page
}

var (
	_ gatherer.Session         = (*Session)(nil)
	_ gatherer.ScreenshotTaker = (*Session)(nil)
	_ gatherer.Scroller        = (*Session)(nil)
	_ gatherer.HTMLSource      = (*Session)(nil)
)

// New wraps page.
func New(page *rod.Page) *Session {
	return &Session{page: page}
}

// Page returns the wrapped page.
func (s *Session) Page() *rod.Page {
	return s.page
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("rodsession: target info: %w", err)
	}
	if info.URL == "" {
		return "", gatherer.ErrUnsupported
	}
	return info.URL, nil
}

// FindElement returns the first match without waiting for one to appear.
func (s *Session) FindElement(ctx context.Context, selector string) (gatherer.Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("rodsession: query %q: %w", selector, err)
	}
	if len(els) == 0 {
		return nil, gatherer.ErrNoSuchElement
	}
	return &Element{el: els[0]}, nil
}

func (s *Session) ViewportSize(ctx context.Context) (gatherer.Size, error) {
	res, err := s.page.Context(ctx).Eval(`() => ({width: window.innerWidth, height: window.innerHeight})`)
	if err != nil {
		return gatherer.Size{}, fmt.Errorf("rodsession: viewport size: %w", err)
	}
	return sizeOf(res.Value), nil
}

// ScreenshotAs captures the viewport through a raw Page.captureScreenshot
// call so the base64 payload reaches the caller untouched.
func (s *Session) ScreenshotAs(ctx context.Context, out gatherer.OutputType) (string, error) {
	if out != gatherer.OutputBase64 {
		return "", fmt.Errorf("rodsession: output type %q: %w", out, gatherer.ErrUnsupported)
	}
	params := proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	raw, err := s.page.Call(ctx, string(s.page.SessionID), params.ProtoReq(), params)
	if err != nil {
		return "", fmt.Errorf("rodsession: capture screenshot: %w", err)
	}
	data := gson.NewFrom(string(raw)).Get("data").Str()
	if data == "" {
		return "", fmt.Errorf("rodsession: capture screenshot: empty payload")
	}
	return data, nil
}

func (s *Session) PageHeight(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => Math.max(
		document.body ? document.body.scrollHeight : 0,
		document.documentElement.scrollHeight
	)`)
	if err != nil {
		return 0, fmt.Errorf("rodsession: page height: %w", err)
	}
	return res.Value.Int(), nil
}

func (s *Session) ScrollTo(ctx context.Context, y int) (int, error) {
	res, err := s.page.Context(ctx).Eval(`(y) => { window.scrollTo(0, y); return Math.round(window.scrollY); }`, y)
	if err != nil {
		return 0, fmt.Errorf("rodsession: scroll to %d: %w", y, err)
	}
	return res.Value.Int(), nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("rodsession: html: %w", err)
	}
	return html, nil
}

// Element wraps a rod element.
type Element struct {
	el *rod.Element
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}

// Attribute returns "" for a missing attribute.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *Element) Size(ctx context.Context) (gatherer.Size, error) {
	res, err := e.el.Context(ctx).Eval(`function () { return {width: this.offsetWidth, height: this.offsetHeight}; }`)
	if err != nil {
		return gatherer.Size{}, err
	}
	return sizeOf(res.Value), nil
}

func (e *Element) Exec(ctx context.Context, fn string, args ...any) error {
	_, err := e.el.Context(ctx).Eval(fn, args...)
	return err
}

func sizeOf(v gson.JSON) gatherer.Size {
	return gatherer.Size{
		Width:  v.Get("width").Int(),
		Height: v.Get("height").Int(),
	}
}
