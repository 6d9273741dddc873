// api/schemas/interfaces.go
package schemas

import (
	"context"
	"time"
)

// PageDriver is the browser-automation primitive layer. Every call is
// fallible and must honor the supplied context; implementations wrap a single
// browser tab.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	ClickAt(ctx context.Context, x, y float64) error
	Fill(ctx context.Context, selector, value string) error
	TypeKeys(ctx context.Context, selector, text string) error
	SetValueJS(ctx context.Context, selector, value string) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	SelectOption(ctx context.Context, selector, value string) error
	Hover(ctx context.Context, selector string) error
	Press(ctx context.Context, key string) error
	Scroll(ctx context.Context, direction string, amountPx int) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	ViewportSize(ctx context.Context) (width, height int64, err error)
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	PageSummary(ctx context.Context) (string, error)
}

// OracleClient is the external reasoning service boundary.
type OracleClient interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

// SequenceRepository persists validated action sequences and supports
// similarity lookup so a new task description can be matched to a previously
// validated sequence.
type SequenceRepository interface {
	SaveValidatedSequence(ctx context.Context, seq ValidatedSequence) error
	GetSequence(ctx context.Context, id string) (ValidatedSequence, error)
	FindSimilar(ctx context.Context, description string, limit int) ([]ValidatedSequence, error)
	ListSequences(ctx context.Context) ([]ValidatedSequence, error)
	DeleteSequence(ctx context.Context, id string) error
}

// SessionRepository persists session metadata and the per-session audit log.
type SessionRepository interface {
	CreateSession(ctx context.Context, ownerID string) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	TouchSession(ctx context.Context, id string) error
	AppendSessionEvent(ctx context.Context, id string, ev SessionEvent) error
	EndSession(ctx context.Context, id string) error
}
