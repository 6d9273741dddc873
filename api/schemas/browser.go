// api/schemas/browser.go
package schemas

import "time"

// ScreenshotMeta describes the page state at the moment of capture.
type ScreenshotMeta struct {
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Width     int64     `json:"width"`
	Height    int64     `json:"height"`
}

// Screenshot is a visual snapshot of the controlled page. Base64 is the
// encoded form handed to the reasoning oracle as an inline image.
type Screenshot struct {
	Bytes  []byte         `json:"-"`
	Base64 string         `json:"base64,omitempty"`
	Meta   ScreenshotMeta `json:"meta"`
}

// SessionStatus marks whether a session still accepts tasks.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// SessionEvent is one entry in a session's ordered audit log.
type SessionEvent struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session groups tasks that belong to one operator context.
type Session struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Status       SessionStatus  `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	TaskIDs      []string       `json:"task_ids"`
	Events       []SessionEvent `json:"events"`
}

// ValidatedSequence is a human-confirmed successful action list stored for
// replay. Frequency counts how often it has been replayed.
type ValidatedSequence struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Actions     []Action  `json:"actions"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Frequency   int       `json:"frequency"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsed    time.Time `json:"last_used"`
}
