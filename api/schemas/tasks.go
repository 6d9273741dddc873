// api/schemas/tasks.go
package schemas

import "time"

// TaskStatus tracks a supervised task through its lifecycle. Transitions are
// monotonic: once a task reaches a terminal status it never leaves it.
type TaskStatus string

const (
	TaskInitializing TaskStatus = "initializing" // The task exists but its loop has not started yet.
	TaskRunning      TaskStatus = "running"      // The perceive-decide-act loop is active.
	TaskPaused       TaskStatus = "paused"       // The loop is cooperatively suspended.
	TaskCompleted    TaskStatus = "completed"    // The oracle signalled completion.
	TaskFailed       TaskStatus = "failed"       // An unrecoverable error stopped the loop.
	TaskTimeout      TaskStatus = "timeout"      // The iteration cap was reached without completion.
	TaskAborted      TaskStatus = "aborted"      // An operator aborted the task.
)

// IsTerminal reports whether the status permits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskTimeout, TaskAborted:
		return true
	}
	return false
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is one entry in the running conversation between the supervisor and
// the reasoning oracle. Action failures are appended as system messages so the
// next decision call can react to them.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// TaskOptions carries the per-task budgets supplied by the caller.
type TaskOptions struct {
	MaxIterations  int           `json:"max_iterations"`
	IterationDelay time.Duration `json:"iteration_delay"`
	SessionID      string        `json:"session_id,omitempty"`
	StartURL       string        `json:"start_url,omitempty"`
}

// Task is the unit of supervised work. It accumulates every action the oracle
// proposed, the result of each execution, the screenshots observed, and the
// full conversation history. Mutated only by the supervisor that owns it.
type Task struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	SessionID   string      `json:"session_id,omitempty"`
	Status      TaskStatus  `json:"status"`
	Options     TaskOptions `json:"options"`

	CreatedAt  time.Time     `json:"created_at"`
	EndTime    *time.Time    `json:"end_time,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Iterations int           `json:"iterations"`

	// Actions and Results stay index-aligned: Results[i] reports the outcome
	// of Actions[i] after every completed iteration.
	Actions     []Action         `json:"actions"`
	Results     []ActionResult   `json:"results"`
	Screenshots []ScreenshotMeta `json:"screenshots"`
	Messages    []Message        `json:"messages"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// LastError returns the error string of the most recent failed action, or ""
// when every recorded action succeeded.
func (t *Task) LastError() string {
	for i := len(t.Results) - 1; i >= 0; i-- {
		if !t.Results[i].Success {
			return t.Results[i].Error
		}
	}
	return ""
}
