// internal/executor/executor_test.go
package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/mocks"
)

func newTestExecutor(safetyCfg config.SafetyConfig) *Executor {
	return New(config.BrowserConfig{}, NewSafetyPolicy(safetyCfg), zap.NewNop())
}

func TestExecuteNavigate(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("Navigate", mock.Anything, "https://example.com/login").Return(nil)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		ID:   "a1",
		Type: schemas.ActionNavigate,
		URL:  "https://example.com/login",
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "a1", result.ActionID)
	require.Contains(t, result.Detail, "example.com/login")
	page.AssertExpectations(t)
}

func TestExecuteNavigateBlockedByAllowList(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{AllowedDomains: []string{"example.com"}})
	page := new(mocks.MockPageDriver)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type: schemas.ActionNavigate,
		URL:  "https://evil.test/phish",
	})

	require.Error(t, err)
	require.ErrorIs(t, err, ErrSafetyViolation)
	require.False(t, result.Success)
	require.Equal(t, schemas.CodeSafetyViolation, result.ErrorCode)
	// The driver must never see a blocked action.
	page.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
}

func TestExecuteClickOffAllowListPageBlocked(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{AllowedDomains: []string{"example.com"}})
	page := new(mocks.MockPageDriver)
	page.On("URL", mock.Anything).Return("https://malicious.test/login", nil)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionClick,
		Selector: "#login",
	})

	// A redirect can land the page outside the allow-list; actions on that
	// page must be refused, not just navigations to it.
	require.ErrorIs(t, err, ErrSafetyViolation)
	require.Equal(t, schemas.CodeSafetyViolation, result.ErrorCode)
	page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestExecuteClickOnAllowListPagePermitted(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{AllowedDomains: []string{"example.com"}})
	page := new(mocks.MockPageDriver)
	page.On("URL", mock.Anything).Return("https://app.example.com/dashboard", nil)
	page.On("Click", mock.Anything, "#save").Return(nil)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionClick,
		Selector: "#save",
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	page.AssertExpectations(t)
}

func TestExecuteUnknownPageURLBlockedUnderAllowList(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{AllowedDomains: []string{"example.com"}})
	page := new(mocks.MockPageDriver)
	page.On("URL", mock.Anything).Return("", errors.New("target crashed"))

	_, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionInput,
		Selector: "#q",
		Text:     "hello",
	})

	require.ErrorIs(t, err, ErrSafetyViolation)
	page.AssertNotCalled(t, "Fill", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteNilPage(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})

	result, err := exec.Execute(context.Background(), nil, schemas.Action{Type: schemas.ActionClick, Selector: "#btn"})

	require.ErrorIs(t, err, ErrNoActivePage)
	require.Equal(t, schemas.CodeNoActivePage, result.ErrorCode)
}

func TestExecuteUnsupportedActionType(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)

	result, err := exec.Execute(context.Background(), page, schemas.Action{Type: "teleport"})

	require.ErrorIs(t, err, ErrUnsupportedActionType)
	require.Equal(t, schemas.CodeUnsupportedAction, result.ErrorCode)
}

func TestExecuteClickBySelector(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("Click", mock.Anything, "#submit").Return(nil)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionClick,
		Selector: "#submit",
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	page.AssertExpectations(t)
}

func TestExecuteClickAtPosition(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("ClickAt", mock.Anything, 120.0, 240.0).Return(nil)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:   schemas.ActionClick,
		Method: schemas.LocatorPosition,
		X:      120,
		Y:      240,
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	page.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
	page.AssertExpectations(t)
}

func TestFillFallbackThirdTierSucceeds(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("Fill", mock.Anything, "#name", "Ada").Return(errors.New("not interactable"))
	page.On("TypeKeys", mock.Anything, "#name", "Ada").Return(errors.New("focus failed"))
	page.On("SetValueJS", mock.Anything, "#name", "Ada").Return(nil)

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionInput,
		Selector: "#name",
		Text:     "Ada",
	})

	// A fallback tier succeeding means the action succeeded, full stop.
	require.NoError(t, err)
	require.True(t, result.Success)
	page.AssertExpectations(t)
}

func TestFillFallbackExhausted(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("Fill", mock.Anything, "#name", "Ada").Return(errors.New("fill failed"))
	page.On("TypeKeys", mock.Anything, "#name", "Ada").Return(errors.New("type failed"))
	page.On("SetValueJS", mock.Anything, "#name", "Ada").Return(errors.New("js failed"))

	result, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionInput,
		Selector: "#name",
		Text:     "Ada",
	})

	require.ErrorIs(t, err, ErrElementNotFound)
	require.Equal(t, schemas.CodeElementNotFound, result.ErrorCode)
	require.Contains(t, result.Error, "fill failed")
	require.Contains(t, result.Error, "js failed")
	page.AssertExpectations(t)
}

func TestExecuteTypeOverLengthLimit(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{MaxTypeLength: 4})
	page := new(mocks.MockPageDriver)

	_, err := exec.Execute(context.Background(), page, schemas.Action{
		Type:     schemas.ActionInput,
		Selector: "#name",
		Text:     "too long",
	})

	require.ErrorIs(t, err, ErrSafetyViolation)
	page.AssertNotCalled(t, "Fill", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteCheckAndSelect(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("SetChecked", mock.Anything, "#agree", true).Return(nil)
	page.On("SetChecked", mock.Anything, "#agree", false).Return(nil)
	page.On("SelectOption", mock.Anything, "#country", "de").Return(nil)

	_, err := exec.Execute(context.Background(), page, schemas.Action{Type: schemas.ActionCheck, Selector: "#agree"})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), page, schemas.Action{Type: schemas.ActionUncheck, Selector: "#agree"})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), page, schemas.Action{Type: schemas.ActionSelect, Selector: "#country", Value: "de"})
	require.NoError(t, err)
	page.AssertExpectations(t)
}

func TestHistoryRecordsResults(t *testing.T) {
	exec := newTestExecutor(config.SafetyConfig{})
	page := new(mocks.MockPageDriver)
	page.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	page.On("Click", mock.Anything, "#gone").Return(errors.New("no node"))

	_, _ = exec.Execute(context.Background(), page, schemas.Action{ID: "a1", Type: schemas.ActionNavigate, URL: "https://example.com"})
	_, _ = exec.Execute(context.Background(), page, schemas.Action{ID: "a2", Type: schemas.ActionClick, Selector: "#gone"})

	history := exec.History()
	require.Len(t, history, 2)
	require.Equal(t, "a1", history[0].ActionID)
	require.True(t, history[0].Success)
	require.Equal(t, "a2", history[1].ActionID)
	require.False(t, history[1].Success)
}
