// api/schemas/actions.go
package schemas

import "time"

// ActionType enumerates the interaction primitives the executor understands.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionInput    ActionType = "type" // Types text into an element.
	ActionNavigate ActionType = "navigate"
	ActionScroll   ActionType = "scroll"
	ActionWait     ActionType = "wait"
	ActionCheck    ActionType = "check"
	ActionUncheck  ActionType = "uncheck"
	ActionSelect   ActionType = "select"
	ActionHover    ActionType = "hover"
	ActionPress    ActionType = "press"
)

// LocatorMethod is the strategy used to resolve an action's target element.
type LocatorMethod string

const (
	LocatorDirect      LocatorMethod = "direct"      // Selector passed through unchanged.
	LocatorText        LocatorMethod = "text"        // Match by visible text.
	LocatorRole        LocatorMethod = "role"        // ARIA role plus accessible name.
	LocatorTestID      LocatorMethod = "testid"      // data-testid attribute value.
	LocatorLabel       LocatorMethod = "label"       // Associated <label> text.
	LocatorPlaceholder LocatorMethod = "placeholder" // Placeholder attribute value.
	LocatorPosition    LocatorMethod = "position"    // Raw viewport coordinates.
)

// Action is one abstract instruction proposed by the reasoning oracle or
// replayed from a validated sequence. Never mutated after creation; the
// executor reports its outcome separately as an ActionResult.
type Action struct {
	ID     string        `json:"id,omitempty"`
	Type   ActionType    `json:"type"`
	Method LocatorMethod `json:"method,omitempty"`

	// Selector carries the locator value for every method except "position".
	Selector string  `json:"selector,omitempty"`
	X        float64 `json:"x,omitempty"`
	Y        float64 `json:"y,omitempty"`

	Text       string `json:"text,omitempty"`      // type
	URL        string `json:"url,omitempty"`       // navigate
	Direction  string `json:"direction,omitempty"` // scroll: up, down, top, bottom
	Amount     int    `json:"amount,omitempty"`    // scroll pixels, 0 means one viewport
	DurationMs int    `json:"duration_ms,omitempty"`
	Value      string `json:"value,omitempty"` // select option value
	Key        string `json:"key,omitempty"`   // press
}

// ErrorCode classifies executor failures for the oracle's benefit.
type ErrorCode string

const (
	CodeSafetyViolation   ErrorCode = "SAFETY_VIOLATION"
	CodeElementNotFound   ErrorCode = "ELEMENT_NOT_FOUND"
	CodeNavigationError   ErrorCode = "NAVIGATION_ERROR"
	CodeUnsupportedAction ErrorCode = "UNSUPPORTED_ACTION"
	CodeNoActivePage      ErrorCode = "NO_ACTIVE_PAGE"
	CodeOracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"
	CodeHandoffCancelled  ErrorCode = "HANDOFF_CANCELLED"
	CodeHandoffTimeout    ErrorCode = "HANDOFF_TIMEOUT"
)

// ActionResult reports the outcome of executing one Action.
type ActionResult struct {
	ActionID  string        `json:"action_id,omitempty"`
	Success   bool          `json:"success"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorCode ErrorCode     `json:"error_code,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}
