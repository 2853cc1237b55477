package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/gatherer/models"
)

// actionTimeout is the per-action deadline.
const actionTimeout = 10 * time.Second

// scrollPause lets lazy-loaded content react between scroll steps.
const scrollPause = 100 * time.Millisecond

// executeActions runs the actions in order. The first failure stops the run
// and is reported with its index and the number of completed actions.
func executeActions(ctx context.Context, page *rod.Page, actions []models.Action) error {
	for i, action := range actions {
		if err := executeAction(ctx, page, action); err != nil {
			if ctx.Err() != nil {
				return categorizeError(ctx.Err(), fmt.Sprintf("deadline reached during action %d (%s)", i, action.Type))
			}
			return models.NewGatherError(
				models.ErrCodeActionFailed,
				fmt.Sprintf("action %d (%s) failed after %d completed: %v", i, action.Type, i, err),
				err,
			)
		}
	}
	return nil
}

func executeAction(ctx context.Context, page *rod.Page, action models.Action) error {
	actionCtx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	p := page.Context(actionCtx)

	switch action.Type {
	case "wait":
		return execWait(actionCtx, p, action)
	case "click":
		return execClick(p, action)
	case "scroll":
		return execScroll(actionCtx, p, action)
	case "execute_js":
		return execJS(p, action)
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}

// execWait waits for a selector to match, or sleeps.
func execWait(ctx context.Context, p *rod.Page, action models.Action) error {
	if action.Selector != "" {
		return p.WaitElementsMoreThan(action.Selector, 0)
	}
	if action.Milliseconds > 0 {
		return sleep(ctx, time.Duration(action.Milliseconds)*time.Millisecond)
	}
	return nil
}

func execClick(p *rod.Page, action models.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click action requires a selector")
	}
	el, err := p.Element(action.Selector)
	if err != nil {
		return fmt.Errorf("element %q not found: %w", action.Selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// execScroll scrolls by whole viewports.
func execScroll(ctx context.Context, p *rod.Page, action models.Action) error {
	amount := max(action.Amount, 1)

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	delta := float64(res.Value.Int())
	if action.Direction == "up" {
		delta = -delta
	}

	for i := range amount {
		if err := p.Mouse.Scroll(0, delta, 0); err != nil {
			return fmt.Errorf("scroll step %d failed: %w", i, err)
		}
		if err := sleep(ctx, scrollPause); err != nil {
			return err
		}
	}
	return nil
}

func execJS(p *rod.Page, action models.Action) error {
	if action.Code == "" {
		return fmt.Errorf("execute_js action requires code")
	}
	_, err := p.Eval(action.Code)
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
