// internal/executor/safety.go
package executor

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

// SafetyPolicy vets actions before they touch the page. Violations are
// reported as ErrSafetyViolation; an empty allow-list means navigation is
// unrestricted.
type SafetyPolicy struct {
	allowedDomains     []string
	forbiddenSelectors []string
	maxTypeLength      int
}

// NewSafetyPolicy builds a policy from configuration. Domain entries are
// normalized to lowercase without a leading dot.
func NewSafetyPolicy(cfg config.SafetyConfig) *SafetyPolicy {
	domains := make([]string, 0, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if d != "" {
			domains = append(domains, d)
		}
	}
	patterns := make([]string, 0, len(cfg.ForbiddenSelectorPatterns))
	for _, p := range cfg.ForbiddenSelectorPatterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &SafetyPolicy{
		allowedDomains:     domains,
		forbiddenSelectors: patterns,
		maxTypeLength:      cfg.MaxTypeLength,
	}
}

// Restricted reports whether a domain allow-list is in force.
func (p *SafetyPolicy) Restricted() bool {
	return len(p.allowedDomains) > 0
}

// CheckAction applies policy rules that do not depend on the live page.
func (p *SafetyPolicy) CheckAction(action schemas.Action) error {
	if action.Type == schemas.ActionNavigate {
		if err := p.CheckURL(action.URL); err != nil {
			return err
		}
	}
	if action.Selector != "" {
		if err := p.checkSelector(action.Selector); err != nil {
			return err
		}
	}
	if action.Type == schemas.ActionInput && p.maxTypeLength > 0 && len(action.Text) > p.maxTypeLength {
		return fmt.Errorf("%w: text length %d exceeds limit %d", ErrSafetyViolation, len(action.Text), p.maxTypeLength)
	}
	return nil
}

// CheckURL verifies the target host against the domain allow-list. A host
// matches when it equals an allowed domain, is a subdomain of one, or shares
// its registrable domain (eTLD+1) with one.
func (p *SafetyPolicy) CheckURL(rawURL string) error {
	if len(p.allowedDomains) == 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("%w: cannot determine host of %q", ErrSafetyViolation, rawURL)
	}
	host := strings.ToLower(parsed.Hostname())

	for _, allowed := range p.allowedDomains {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
		if reg, rerr := publicsuffix.EffectiveTLDPlusOne(host); rerr == nil && reg == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not in the allowed domain list", ErrSafetyViolation, host)
}

func (p *SafetyPolicy) checkSelector(selector string) error {
	lowered := strings.ToLower(selector)
	for _, pattern := range p.forbiddenSelectors {
		if strings.Contains(lowered, pattern) {
			return fmt.Errorf("%w: selector matches forbidden pattern %q", ErrSafetyViolation, pattern)
		}
	}
	return nil
}
