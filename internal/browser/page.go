// internal/browser/page.go
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// Page wraps a single browser tab and implements schemas.PageDriver. All
// methods respect both the tab's lifetime and the caller's context.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.PageDriver = (*Page)(nil)

func newPage(allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	// Ensure the target (tab) is created and CDP is connected.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to browser target: %w", err)
	}

	id := uuid.New().String()
	return &Page{
		id:     id,
		ctx:    tabCtx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("page_id", id)),
	}, nil
}

// ID returns the unique identifier of this tab.
func (p *Page) ID() string { return p.id }

// Close tears the tab down. Safe to call more than once.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return nil
	}
	p.isClosed = true
	p.mu.Unlock()

	p.logger.Debug("Closing page.")
	if p.cancel != nil {
		p.cancel()
	}
	if p.onClose != nil {
		p.onClose()
	}
	return nil
}

// run executes chromedp actions, respecting both the tab lifetime (p.ctx)
// and the incoming request context.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// isXPath reports whether the selector is an XPath expression. Non-direct
// locators resolve to XPath; everything else is treated as CSS.
func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(") || strings.HasPrefix(selector, "./")
}

// queryOpt picks the chromedp query strategy for a selector.
func queryOpt(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// jsFind returns a JS expression resolving the selector to an element,
// usable inside injected scripts for both CSS and XPath selectors.
func jsFind(selector string) string {
	if isXPath(selector) {
		return fmt.Sprintf(
			`document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
			strconv.Quote(selector))
	}
	return fmt.Sprintf(`document.querySelector(%s)`, strconv.Quote(selector))
}

// Navigate loads the URL and waits for the document body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))

	navTimeout := p.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	// Best-effort settle; a page that never reports ready is still usable.
	settleCtx, settleCancel := context.WithTimeout(ctx, 10*time.Second)
	defer settleCancel()
	if err := p.run(settleCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		p.logger.Debug("WaitReady failed after navigation.", zap.Error(err))
	}
	return nil
}

// Click scrolls the element into view, waits for visibility up to the
// configured timeout, then clicks. The visibility wait is best-effort: the
// oracle's view of the page may lag reality by one iteration, so a stale
// selector still gets its click attempt.
func (p *Page) Click(ctx context.Context, selector string) error {
	p.logger.Debug("Clicking element.", zap.String("selector", selector))

	visTimeout := p.cfg.VisibilityTimeout
	if visTimeout <= 0 {
		visTimeout = 30 * time.Second
	}
	visCtx, visCancel := context.WithTimeout(ctx, visTimeout)
	err := p.run(visCtx,
		chromedp.ScrollIntoView(selector, queryOpt(selector)),
		chromedp.WaitVisible(selector, queryOpt(selector)),
	)
	visCancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Debug("Visibility wait failed; attempting click anyway.", zap.String("selector", selector), zap.Error(err))
	}

	if err := p.run(ctx, chromedp.Click(selector, queryOpt(selector))); err != nil {
		return fmt.Errorf("click failed for selector %q: %w", selector, err)
	}
	return nil
}

// ClickAt dispatches a raw left click at viewport coordinates.
func (p *Page) ClickAt(ctx context.Context, x, y float64) error {
	p.logger.Debug("Clicking at coordinates.", zap.Float64("x", x), zap.Float64("y", y))
	if err := p.run(ctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("click at (%.0f, %.0f) failed: %w", x, y, err)
	}
	return nil
}

// Fill clears the element and sends the value as keystrokes. This is the
// first fill tier; the executor escalates to TypeKeys and SetValueJS.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	p.logger.Debug("Filling element.", zap.String("selector", selector), zap.Int("len", len(value)))
	err := p.run(ctx,
		chromedp.WaitVisible(selector, queryOpt(selector)),
		chromedp.Clear(selector, queryOpt(selector)),
		chromedp.SendKeys(selector, value, queryOpt(selector)),
	)
	if err != nil {
		return fmt.Errorf("fill failed for selector %q: %w", selector, err)
	}
	return nil
}

// TypeKeys focuses the element, selects and deletes existing content, then
// types the text key by key.
func (p *Page) TypeKeys(ctx context.Context, selector, text string) error {
	p.logger.Debug("Typing into element.", zap.String("selector", selector), zap.Int("len", len(text)))
	selectAll := fmt.Sprintf(
		`(() => { const el = %s; if (el && el.select) { el.select(); } })()`,
		jsFind(selector))
	err := p.run(ctx,
		chromedp.Focus(selector, queryOpt(selector)),
		chromedp.Evaluate(selectAll, nil),
		chromedp.KeyEvent(kb.Delete),
		chromedp.SendKeys(selector, text, queryOpt(selector)),
	)
	if err != nil {
		return fmt.Errorf("keystroke typing failed for selector %q: %w", selector, err)
	}
	return nil
}

// SetValueJS assigns the value directly on the DOM node and dispatches
// synthetic input and change events so framework listeners notice. Last
// resort of the fill chain.
func (p *Page) SetValueJS(ctx context.Context, selector, value string) error {
	p.logger.Debug("Setting value via DOM assignment.", zap.String("selector", selector))
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) { throw new Error('element not found'); }
		el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
	})()`, jsFind(selector), strconv.Quote(value))
	if err := p.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("dom value assignment failed for selector %q: %w", selector, err)
	}
	return nil
}

// SetChecked drives a checkbox or radio to the desired state.
func (p *Page) SetChecked(ctx context.Context, selector string, checked bool) error {
	p.logger.Debug("Setting checked state.", zap.String("selector", selector), zap.Bool("checked", checked))
	script := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) { throw new Error('element not found'); }
		if (el.checked !== %t) {
			el.click();
		}
		if (el.checked !== %t) {
			el.checked = %t;
			el.dispatchEvent(new Event('change', { bubbles: true }));
		}
	})()`, jsFind(selector), checked, checked, checked)
	if err := p.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("set checked failed for selector %q: %w", selector, err)
	}
	return nil
}

// SelectOption picks the option with the given value in a <select>.
func (p *Page) SelectOption(ctx context.Context, selector, value string) error {
	p.logger.Debug("Selecting option.", zap.String("selector", selector), zap.String("value", value))
	err := p.run(ctx,
		chromedp.WaitVisible(selector, queryOpt(selector)),
		chromedp.SetValue(selector, value, queryOpt(selector)),
	)
	if err != nil {
		return fmt.Errorf("select failed for selector %q: %w", selector, err)
	}
	return nil
}

// Hover moves the mouse to the element's center via a CDP mouse event.
func (p *Page) Hover(ctx context.Context, selector string) error {
	p.logger.Debug("Hovering element.", zap.String("selector", selector))
	err := p.run(ctx,
		chromedp.ScrollIntoView(selector, queryOpt(selector)),
		chromedp.ActionFunc(func(c context.Context) error {
			var rect struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			}
			script := fmt.Sprintf(`(() => {
				const el = %s;
				if (!el) { throw new Error('element not found'); }
				const r = el.getBoundingClientRect();
				return { x: r.left + r.width / 2, y: r.top + r.height / 2 };
			})()`, jsFind(selector))
			if err := chromedp.Evaluate(script, &rect).Do(c); err != nil {
				return err
			}
			return input.DispatchMouseEvent(input.MouseMoved, rect.X, rect.Y).Do(c)
		}),
	)
	if err != nil {
		return fmt.Errorf("hover failed for selector %q: %w", selector, err)
	}
	return nil
}

// Press sends a single key chord (e.g. "Enter", "Tab", "Escape").
func (p *Page) Press(ctx context.Context, key string) error {
	p.logger.Debug("Pressing key.", zap.String("key", key))
	if err := p.run(ctx, chromedp.KeyEvent(mapKey(key))); err != nil {
		return fmt.Errorf("key press %q failed: %w", key, err)
	}
	return nil
}

// mapKey translates a key name from the oracle into a chromedp key code.
func mapKey(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return kb.Enter
	case "tab":
		return kb.Tab
	case "escape", "esc":
		return kb.Escape
	case "backspace":
		return kb.Backspace
	case "delete":
		return kb.Delete
	case "arrowup", "up":
		return kb.ArrowUp
	case "arrowdown", "down":
		return kb.ArrowDown
	case "arrowleft", "left":
		return kb.ArrowLeft
	case "arrowright", "right":
		return kb.ArrowRight
	case "pageup":
		return kb.PageUp
	case "pagedown":
		return kb.PageDown
	case "home":
		return kb.Home
	case "end":
		return kb.End
	default:
		return key
	}
}

// Scroll moves the viewport. Direction is one of up, down, top, bottom;
// amountPx of 0 scrolls by 80% of a viewport.
func (p *Page) Scroll(ctx context.Context, direction string, amountPx int) error {
	p.logger.Debug("Scrolling.", zap.String("direction", direction), zap.Int("amount_px", amountPx))

	amount := "window.innerHeight * 0.8"
	if amountPx > 0 {
		amount = strconv.Itoa(amountPx)
	}

	var script string
	switch direction {
	case "down":
		script = fmt.Sprintf(`window.scrollBy({top: %s, behavior: 'smooth'});`, amount)
	case "up":
		script = fmt.Sprintf(`window.scrollBy({top: -(%s), behavior: 'smooth'});`, amount)
	case "bottom":
		script = `window.scrollTo({top: document.body.scrollHeight, behavior: 'smooth'});`
	case "top":
		script = `window.scrollTo({top: 0, behavior: 'smooth'});`
	default:
		return fmt.Errorf("invalid scroll direction: %s (supported: up, down, top, bottom)", direction)
	}

	err := p.run(ctx,
		chromedp.Evaluate(script, nil),
		chromedp.Sleep(300*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// WaitVisible blocks until the selector is visible or the timeout elapses.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.run(waitCtx, chromedp.WaitVisible(selector, queryOpt(selector))); err != nil {
		return fmt.Errorf("element %q not visible within %s: %w", selector, timeout, err)
	}
	return nil
}

// URL returns the current page location.
func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return loc, nil
}

// Title returns the current document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("failed to read page title: %w", err)
	}
	return title, nil
}

// ViewportSize reports the inner viewport dimensions.
func (p *Page) ViewportSize(ctx context.Context) (int64, int64, error) {
	var size struct {
		W int64 `json:"w"`
		H int64 `json:"h"`
	}
	if err := p.run(ctx, chromedp.Evaluate(`({w: window.innerWidth, h: window.innerHeight})`, &size)); err != nil {
		return 0, 0, fmt.Errorf("failed to read viewport size: %w", err)
	}
	return size.W, size.H, nil
}

// CaptureScreenshot takes a PNG snapshot of the visible viewport.
func (p *Page) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// summaryScript extracts a compact textual description of the interactive
// elements on the page for the reasoning oracle.
const summaryScript = `(() => {
	const lines = [];
	const max = 80;
	const trunc = (s) => {
		s = (s || '').trim().replace(/\s+/g, ' ');
		return s.length > 64 ? s.substring(0, 64) + '…' : s;
	};
	const visible = (el) => {
		const style = window.getComputedStyle(el);
		if (style.visibility === 'hidden' || style.display === 'none') return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	document.querySelectorAll('a[href], button, input, textarea, select, [role=button], [role=link]').forEach(el => {
		if (lines.length >= max || !visible(el)) return;
		const tag = el.tagName.toLowerCase();
		const parts = [tag];
		if (el.id) parts.push('#' + el.id);
		if (el.name) parts.push('name=' + el.name);
		if (el.type) parts.push('type=' + el.type);
		if (el.placeholder) parts.push('placeholder="' + trunc(el.placeholder) + '"');
		const text = trunc(el.textContent || el.value);
		if (text) parts.push('"' + text + '"');
		lines.push(parts.join(' '));
	});
	return lines.join('\n');
})()`

// PageSummary returns a textual/structural digest of the page's interactive
// elements, sent alongside the screenshot in every decision request.
func (p *Page) PageSummary(ctx context.Context) (string, error) {
	var summary string
	sumCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.run(sumCtx, chromedp.Evaluate(summaryScript, &summary)); err != nil {
		return "", fmt.Errorf("failed to build page summary: %w", err)
	}
	return summary, nil
}

// combineContext derives a context that is cancelled when either parent is.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	if secondary == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
