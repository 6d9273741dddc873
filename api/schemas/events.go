// api/schemas/events.go
package schemas

import "time"

// EventType enumerates the lifecycle notifications pushed to observers
// (typically the transport shell) while a task runs.
type EventType string

const (
	EventTaskStarted        EventType = "taskStarted"
	EventScreenshotCaptured EventType = "screenshotCaptured"
	EventActionExecuted     EventType = "actionExecuted"
	EventActionError        EventType = "actionError"
	EventAIThinking         EventType = "aiThinking"
	EventTaskStatusChanged  EventType = "taskStatusChanged"
	EventTaskPaused         EventType = "taskPaused"
	EventTaskResumed        EventType = "taskResumed"
	EventTaskAborted        EventType = "taskAborted"
	EventHandoffRequested   EventType = "handoffRequested"
	EventHandoffResolved    EventType = "handoffResolved"
)

// Event is the envelope delivered to event bus subscribers.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TaskID    string      `json:"task_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}
