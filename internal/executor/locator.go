// internal/executor/locator.go
package executor

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// resolveSelector turns a (method, selector) pair into a query the page
// driver understands: a CSS selector, or an XPath expression prefixed with
// "//". Resolution is deterministic; no per-site heuristics.
func resolveSelector(method schemas.LocatorMethod, selector string) (string, error) {
	switch method {
	case schemas.LocatorDirect, "":
		if selector == "" {
			return "", fmt.Errorf("%w: empty selector", ErrElementNotFound)
		}
		return selector, nil

	case schemas.LocatorTestID:
		return fmt.Sprintf(`[data-testid=%q]`, selector), nil

	case schemas.LocatorPlaceholder:
		return fmt.Sprintf(`[placeholder=%q]`, selector), nil

	case schemas.LocatorText:
		return textXPath(selector), nil

	case schemas.LocatorRole:
		return roleXPath(selector), nil

	case schemas.LocatorLabel:
		return labelXPath(selector), nil

	case schemas.LocatorPosition:
		// Positional actions carry coordinates, not a selector.
		return "", nil

	default:
		return "", fmt.Errorf("%w: unknown locator method %q", ErrElementNotFound, method)
	}
}

// textXPath matches any visible element whose own text contains the value.
func textXPath(text string) string {
	lit := xpathLiteral(text)
	return fmt.Sprintf(
		`//*[not(self::script or self::style) and contains(normalize-space(text()), %s)]`, lit)
}

// roleXPath handles selectors of the form "role=name" (or "role:name").
// Link-like roles resolve to anchors and buttons containing the name; other
// roles fall back to an explicit ARIA role match.
func roleXPath(selector string) string {
	role, name := selector, ""
	for _, sep := range []string{"=", ":"} {
		if idx := strings.Index(selector, sep); idx >= 0 {
			role = strings.TrimSpace(selector[:idx])
			name = strings.TrimSpace(selector[idx+1:])
			break
		}
	}
	role = strings.ToLower(role)

	if name != "" {
		lit := xpathLiteral(name)
		switch role {
		case "link":
			return fmt.Sprintf(`//a[contains(normalize-space(.), %s)]`, lit)
		case "button":
			return fmt.Sprintf(
				`//*[self::button or @role='button' or (self::input and (@type='button' or @type='submit'))][contains(normalize-space(.), %s) or contains(@value, %s)]`,
				lit, lit)
		default:
			return fmt.Sprintf(`//*[@role=%s][contains(normalize-space(.), %s)]`,
				xpathLiteral(role), lit)
		}
	}
	return fmt.Sprintf(`//*[@role=%s]`, xpathLiteral(role))
}

// labelXPath finds a form control associated with a <label> whose text
// contains the value, either via the for attribute or by nesting.
func labelXPath(label string) string {
	lit := xpathLiteral(label)
	return fmt.Sprintf(
		`//*[@id=//label[contains(normalize-space(.), %s)]/@for] | //label[contains(normalize-space(.), %s)]//input | //label[contains(normalize-space(.), %s)]//select | //label[contains(normalize-space(.), %s)]//textarea`,
		lit, lit, lit, lit)
}

// xpathLiteral quotes an arbitrary string as an XPath string literal. XPath
// 1.0 has no escape syntax, so values containing both quote kinds are built
// with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `'`) {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range strings.Split(s, `'`) {
		if i > 0 {
			b.WriteString(`, "'", `)
		}
		b.WriteString("'" + part + "'")
	}
	b.WriteString(")")
	return b.String()
}
