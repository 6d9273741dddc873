// internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

const (
	historyLimit = 200
	maxWait      = 30 * time.Second
)

// Executor translates oracle-issued actions into page driver calls. It is
// stateless with respect to the page; the caller supplies the page handle so
// one executor can serve many concurrent tasks.
type Executor struct {
	cfg    config.BrowserConfig
	safety *SafetyPolicy
	logger *zap.Logger

	mu      sync.Mutex
	history []schemas.ActionResult
}

// New creates an executor guarded by the given safety policy.
func New(cfg config.BrowserConfig, safety *SafetyPolicy, logger *zap.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		safety: safety,
		logger: logger.Named("executor"),
	}
}

// Execute runs a single action against the page. The returned result is
// always populated; err is non-nil exactly when the result reports failure.
func (e *Executor) Execute(ctx context.Context, page schemas.PageDriver, action schemas.Action) (schemas.ActionResult, error) {
	start := time.Now()
	result := schemas.ActionResult{
		ActionID:  action.ID,
		Timestamp: start.UTC(),
	}

	err := e.dispatch(ctx, page, action)
	result.Duration = time.Since(start)

	if err != nil {
		result.Success = false
		result.Error = err.Error()
		result.ErrorCode = codeFor(err)
		e.logger.Warn("Action failed.",
			zap.String("action_id", action.ID),
			zap.String("type", string(action.Type)),
			zap.String("error_code", string(result.ErrorCode)),
			zap.Error(err))
	} else {
		result.Success = true
		result.Detail = detailFor(action)
		e.logger.Debug("Action executed.",
			zap.String("action_id", action.ID),
			zap.String("type", string(action.Type)),
			zap.Duration("duration", result.Duration))
	}

	e.record(result)
	return result, err
}

func (e *Executor) dispatch(ctx context.Context, page schemas.PageDriver, action schemas.Action) error {
	if page == nil {
		return ErrNoActivePage
	}
	if err := e.safety.CheckAction(action); err != nil {
		return err
	}
	// Navigation targets are vetted above; everything else runs against the
	// page the browser is currently on, which may have drifted off the
	// allow-list through a redirect.
	if action.Type != schemas.ActionNavigate && e.safety.Restricted() {
		current, urlErr := page.URL(ctx)
		if urlErr != nil {
			return fmt.Errorf("%w: cannot determine current page URL: %v", ErrSafetyViolation, urlErr)
		}
		if err := e.safety.CheckURL(current); err != nil {
			return err
		}
	}

	switch action.Type {
	case schemas.ActionNavigate:
		if err := page.Navigate(ctx, action.URL); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNavigationFailed, action.URL, err)
		}
		return nil

	case schemas.ActionClick:
		if action.Method == schemas.LocatorPosition {
			return page.ClickAt(ctx, action.X, action.Y)
		}
		selector, err := resolveSelector(action.Method, action.Selector)
		if err != nil {
			return err
		}
		if err := page.Click(ctx, selector); err != nil {
			return fmt.Errorf("%w: click %q: %v", ErrElementNotFound, selector, err)
		}
		return nil

	case schemas.ActionInput:
		selector, err := resolveSelector(action.Method, action.Selector)
		if err != nil {
			return err
		}
		return e.fillWithFallback(ctx, page, selector, action.Text)

	case schemas.ActionScroll:
		direction := action.Direction
		if direction == "" {
			direction = "down"
		}
		return page.Scroll(ctx, direction, action.Amount)

	case schemas.ActionWait:
		return e.wait(ctx, page, action)

	case schemas.ActionCheck, schemas.ActionUncheck:
		selector, err := resolveSelector(action.Method, action.Selector)
		if err != nil {
			return err
		}
		checked := action.Type == schemas.ActionCheck
		if err := page.SetChecked(ctx, selector, checked); err != nil {
			return fmt.Errorf("%w: set checked %q: %v", ErrElementNotFound, selector, err)
		}
		return nil

	case schemas.ActionSelect:
		selector, err := resolveSelector(action.Method, action.Selector)
		if err != nil {
			return err
		}
		if err := page.SelectOption(ctx, selector, action.Value); err != nil {
			return fmt.Errorf("%w: select option on %q: %v", ErrElementNotFound, selector, err)
		}
		return nil

	case schemas.ActionHover:
		selector, err := resolveSelector(action.Method, action.Selector)
		if err != nil {
			return err
		}
		if err := page.Hover(ctx, selector); err != nil {
			return fmt.Errorf("%w: hover %q: %v", ErrElementNotFound, selector, err)
		}
		return nil

	case schemas.ActionPress:
		return page.Press(ctx, action.Key)

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedActionType, action.Type)
	}
}

// fillWithFallback tries increasingly forceful input strategies. Tier 1 is
// the driver's native fill; tier 2 focuses, selects existing content and
// retypes via keystrokes; tier 3 sets the value through script and fires
// synthetic input events. The first success wins and the action reports
// success regardless of which tier delivered it.
func (e *Executor) fillWithFallback(ctx context.Context, page schemas.PageDriver, selector, text string) error {
	fillErr := page.Fill(ctx, selector, text)
	if fillErr == nil {
		return nil
	}
	e.logger.Debug("Native fill failed; retrying with keystrokes.",
		zap.String("selector", selector), zap.Error(fillErr))

	typeErr := page.TypeKeys(ctx, selector, text)
	if typeErr == nil {
		return nil
	}
	e.logger.Debug("Keystroke input failed; retrying with scripted value.",
		zap.String("selector", selector), zap.Error(typeErr))

	if jsErr := page.SetValueJS(ctx, selector, text); jsErr != nil {
		return fmt.Errorf("%w: all input strategies failed for %q: fill: %v; type: %v; script: %v",
			ErrElementNotFound, selector, fillErr, typeErr, jsErr)
	}
	return nil
}

func (e *Executor) wait(ctx context.Context, page schemas.PageDriver, action schemas.Action) error {
	// An explicit selector means wait for visibility, otherwise a fixed delay.
	if action.Selector != "" {
		selector, err := resolveSelector(action.Method, action.Selector)
		if err != nil {
			return err
		}
		timeout := e.cfg.VisibilityTimeout
		if action.DurationMs > 0 {
			timeout = time.Duration(action.DurationMs) * time.Millisecond
		}
		if timeout > maxWait {
			timeout = maxWait
		}
		if werr := page.WaitVisible(ctx, selector, timeout); werr != nil {
			return fmt.Errorf("%w: wait for %q: %v", ErrElementNotFound, selector, werr)
		}
		return nil
	}

	delay := time.Duration(action.DurationMs) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}
	if delay > maxWait {
		delay = maxWait
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// record appends the result to the bounded in-memory history ring.
func (e *Executor) record(result schemas.ActionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, result)
	if len(e.history) > historyLimit {
		e.history = e.history[len(e.history)-historyLimit:]
	}
}

// History returns a copy of the most recent action results, oldest first.
func (e *Executor) History() []schemas.ActionResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]schemas.ActionResult, len(e.history))
	copy(out, e.history)
	return out
}

func detailFor(action schemas.Action) string {
	switch action.Type {
	case schemas.ActionNavigate:
		return "navigated to " + action.URL
	case schemas.ActionClick:
		if action.Method == schemas.LocatorPosition {
			return fmt.Sprintf("clicked at (%.0f, %.0f)", action.X, action.Y)
		}
		return "clicked " + action.Selector
	case schemas.ActionInput:
		return fmt.Sprintf("typed %d characters into %s", len(action.Text), action.Selector)
	case schemas.ActionScroll:
		return "scrolled " + action.Direction
	case schemas.ActionWait:
		return "waited"
	case schemas.ActionCheck:
		return "checked " + action.Selector
	case schemas.ActionUncheck:
		return "unchecked " + action.Selector
	case schemas.ActionSelect:
		return fmt.Sprintf("selected %q in %s", action.Value, action.Selector)
	case schemas.ActionHover:
		return "hovered over " + action.Selector
	case schemas.ActionPress:
		return "pressed " + action.Key
	default:
		return string(action.Type)
	}
}
