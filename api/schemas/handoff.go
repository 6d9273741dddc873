// api/schemas/handoff.go
package schemas

import "time"

// HandoffResolution is the terminal outcome of a human handoff request.
type HandoffResolution string

const (
	// HandoffContinued means a human finished the manual step and resumed
	// automation.
	HandoffContinued HandoffResolution = "continued"
	// HandoffCancelled means a human declined the request; the task aborts.
	HandoffCancelled HandoffResolution = "cancelled"
	// HandoffTimedOut means no human responded before the deadline.
	HandoffTimedOut HandoffResolution = "timeout"
)

// HandoffRequest records a pause-for-human moment: the automation hit
// something it cannot or must not do on its own (login, CAPTCHA, payment
// confirmation) and waits for a person to act in the live browser session.
type HandoffRequest struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	TaskID      string            `json:"task_id,omitempty"`
	Instruction string            `json:"instruction"`
	CreatedAt   time.Time         `json:"created_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
	Resolution  HandoffResolution `json:"resolution,omitempty"`
}
