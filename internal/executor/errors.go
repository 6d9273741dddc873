// internal/executor/errors.go
package executor

import (
	"errors"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Typed failures surfaced by the executor. Callers classify with errors.Is.
var (
	ErrUnsupportedActionType = errors.New("unsupported action type")
	ErrElementNotFound       = errors.New("element not found")
	ErrNavigationFailed      = errors.New("navigation failed")
	ErrSafetyViolation       = errors.New("action violates safety policy")
	ErrNoActivePage          = errors.New("no active page bound")
)

// codeFor maps an executor error to the wire-level error code recorded on the
// action result and fed back to the reasoning oracle.
func codeFor(err error) schemas.ErrorCode {
	switch {
	case errors.Is(err, ErrSafetyViolation):
		return schemas.CodeSafetyViolation
	case errors.Is(err, ErrNavigationFailed):
		return schemas.CodeNavigationError
	case errors.Is(err, ErrUnsupportedActionType):
		return schemas.CodeUnsupportedAction
	case errors.Is(err, ErrNoActivePage):
		return schemas.CodeNoActivePage
	default:
		return schemas.CodeElementNotFound
	}
}
