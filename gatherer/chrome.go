package gatherer

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// setClassJS replaces the class list of the element it is called on.
const setClassJS = `function (cls) { this.className = cls; }`

// chromeGuard holds one hidden chrome element. Releasing it restores the
// element's original class attribute.
type chromeGuard struct {
	chrome ChromeElement
	el     Element
	class  string
	height int
}

// hideChrome hides ce if it is present and displayed. A nil guard with a nil
// error means there was nothing to hide.
func (g *Gatherer) hideChrome(ctx context.Context, s Session, ce ChromeElement) (*chromeGuard, error) {
	if ce.Selector == "" {
		return nil, nil
	}

	el, err := s.FindElement(ctx, ce.Selector)
	if errors.Is(err, ErrNoSuchElement) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", ce.Name, ce.Selector, err)
	}

	displayed, err := el.Displayed(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s visibility: %w", ce.Name, err)
	}
	if !displayed {
		return nil, nil
	}

	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return nil, fmt.Errorf("%s class attribute: %w", ce.Name, err)
	}
	size, err := el.Size(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s size: %w", ce.Name, err)
	}

	hidden := strings.TrimSpace(class + " " + g.class())
	if err := el.Exec(ctx, setClassJS, hidden); err != nil {
		return nil, fmt.Errorf("hide %s: %w", ce.Name, err)
	}

	g.log().Debug("gatherer: chrome hidden",
		"element", ce.Name,
		"selector", ce.Selector,
		"height", size.Height,
	)
	return &chromeGuard{chrome: ce, el: el, class: class, height: size.Height}, nil
}

func (c *chromeGuard) release(ctx context.Context) error {
	if err := c.el.Exec(ctx, setClassJS, c.class); err != nil {
		return fmt.Errorf("restore %s: %w", c.chrome.Name, err)
	}
	return nil
}

// restoreChrome releases every guard in order. A failed release is logged and
// does not stop the others.
func (g *Gatherer) restoreChrome(ctx context.Context, guards []*chromeGuard) {
	for _, guard := range guards {
		if err := guard.release(ctx); err != nil {
			g.log().Warn("gatherer: chrome element could not be restored",
				"element", guard.chrome.Name,
				"error", err,
			)
		}
	}
}

// chromeBands sums the heights of the hidden headers and footers.
func chromeBands(guards []*chromeGuard) (top, bottom int) {
	for _, guard := range guards {
		if guard.chrome.Role == RoleFooter {
			bottom += guard.height
		} else {
			top += guard.height
		}
	}
	return top, bottom
}
