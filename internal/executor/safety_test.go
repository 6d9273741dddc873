// internal/executor/safety_test.go
package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

func TestCheckURLAllowList(t *testing.T) {
	policy := NewSafetyPolicy(config.SafetyConfig{
		AllowedDomains: []string{"example.com", "shop.co.uk"},
	})

	testCases := []struct {
		name    string
		url     string
		allowed bool
	}{
		{"exact match", "https://example.com/page", true},
		{"subdomain", "https://login.example.com/", true},
		{"deep subdomain", "https://a.b.example.com/x", true},
		{"registrable domain entry", "https://www.shop.co.uk/cart", true},
		{"different domain", "https://evil.test/", false},
		{"suffix trick", "https://notexample.com/", false},
		{"no host", "not a url", false},
		{"case insensitive", "https://EXAMPLE.COM/", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := policy.CheckURL(tc.url)
			if tc.allowed {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrSafetyViolation)
			}
		})
	}
}

func TestCheckURLEmptyAllowListPermitsEverything(t *testing.T) {
	policy := NewSafetyPolicy(config.SafetyConfig{})
	require.NoError(t, policy.CheckURL("https://anywhere.test/"))
}

func TestForbiddenSelectorPatterns(t *testing.T) {
	policy := NewSafetyPolicy(config.SafetyConfig{
		ForbiddenSelectorPatterns: []string{"delete-account", "[type=password]"},
	})

	err := policy.CheckAction(schemas.Action{Type: schemas.ActionClick, Selector: "#delete-account-button"})
	require.ErrorIs(t, err, ErrSafetyViolation)

	err = policy.CheckAction(schemas.Action{Type: schemas.ActionClick, Selector: "input[TYPE=PASSWORD]"})
	require.ErrorIs(t, err, ErrSafetyViolation)

	err = policy.CheckAction(schemas.Action{Type: schemas.ActionClick, Selector: "#save"})
	require.NoError(t, err)
}

func TestMaxTypeLength(t *testing.T) {
	policy := NewSafetyPolicy(config.SafetyConfig{MaxTypeLength: 10})

	err := policy.CheckAction(schemas.Action{Type: schemas.ActionInput, Selector: "#f", Text: "short"})
	require.NoError(t, err)

	err = policy.CheckAction(schemas.Action{Type: schemas.ActionInput, Selector: "#f", Text: "this text is far too long"})
	require.ErrorIs(t, err, ErrSafetyViolation)
}
