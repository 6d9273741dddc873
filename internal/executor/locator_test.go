// internal/executor/locator_test.go
package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

func TestResolveSelector(t *testing.T) {
	testCases := []struct {
		name     string
		method   schemas.LocatorMethod
		selector string
		want     string
		wantErr  bool
	}{
		{"direct passthrough", schemas.LocatorDirect, "#login > button", "#login > button", false},
		{"empty method defaults to direct", "", ".cta", ".cta", false},
		{"direct empty selector", schemas.LocatorDirect, "", "", true},
		{"testid", schemas.LocatorTestID, "submit-btn", `[data-testid="submit-btn"]`, false},
		{"placeholder", schemas.LocatorPlaceholder, "Search…", `[placeholder="Search…"]`, false},
		{"unknown method", "vibes", "x", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveSelector(tc.method, tc.selector)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveTextProducesXPath(t *testing.T) {
	got, err := resolveSelector(schemas.LocatorText, "Sign in")
	require.NoError(t, err)
	require.Contains(t, got, "//")
	require.Contains(t, got, "'Sign in'")
}

func TestResolveRole(t *testing.T) {
	link, err := resolveSelector(schemas.LocatorRole, "link=Pricing")
	require.NoError(t, err)
	require.Contains(t, link, "//a[")
	require.Contains(t, link, "'Pricing'")

	button, err := resolveSelector(schemas.LocatorRole, "button=Save")
	require.NoError(t, err)
	require.Contains(t, button, "self::button")

	bare, err := resolveSelector(schemas.LocatorRole, "tab")
	require.NoError(t, err)
	require.Equal(t, `//*[@role='tab']`, bare)

	custom, err := resolveSelector(schemas.LocatorRole, "menuitem:Export")
	require.NoError(t, err)
	require.Contains(t, custom, "@role='menuitem'")
	require.Contains(t, custom, "'Export'")
}

func TestResolveLabel(t *testing.T) {
	got, err := resolveSelector(schemas.LocatorLabel, "Email address")
	require.NoError(t, err)
	require.Contains(t, got, "//label[")
	require.Contains(t, got, "@for")
}

func TestXPathLiteral(t *testing.T) {
	require.Equal(t, `'plain'`, xpathLiteral("plain"))
	require.Equal(t, `"it's"`, xpathLiteral("it's"))
	require.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	// Both quote kinds force concat().
	mixed := xpathLiteral(`it's "fine"`)
	require.Contains(t, mixed, "concat(")
	require.Contains(t, mixed, `"'"`)
}
