// internal/handoff/controller_test.go
package handoff

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []schemas.Event
}

func (r *recordingPublisher) Publish(event schemas.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) types() []schemas.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestController(timeout time.Duration, pub Publisher) *Controller {
	return NewController(config.HandoffConfig{Timeout: timeout}, pub, zap.NewNop())
}

// awaitPending polls until the controller registers the session's request.
func awaitPending(t *testing.T, c *Controller, sessionID string) schemas.HandoffRequest {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if req, ok := c.Pending(sessionID); ok {
			return req
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("handoff request never registered")
	return schemas.HandoffRequest{}
}

func TestRequestContinuedByHuman(t *testing.T) {
	pub := &recordingPublisher{}
	c := newTestController(time.Minute, pub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Request(context.Background(), "sess-1", "task-1", "solve the captcha")
	}()

	req := awaitPending(t, c, "sess-1")
	require.Equal(t, "solve the captcha", req.Instruction)
	require.NoError(t, c.Continue(req.ID))

	require.NoError(t, <-errCh)
	require.Equal(t, []schemas.EventType{schemas.EventHandoffRequested, schemas.EventHandoffResolved}, pub.types())

	_, stillPending := c.Pending("sess-1")
	require.False(t, stillPending)
}

func TestRequestCancelledByHuman(t *testing.T) {
	c := newTestController(time.Minute, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Request(context.Background(), "sess-1", "task-1", "approve the payment")
	}()

	req := awaitPending(t, c, "sess-1")
	require.NoError(t, c.Cancel(req.ID))
	require.ErrorIs(t, <-errCh, ErrCancelled)
}

func TestRequestTimesOut(t *testing.T) {
	c := newTestController(20*time.Millisecond, nil)

	err := c.Request(context.Background(), "sess-1", "task-1", "enter the 2FA code")
	require.ErrorIs(t, err, ErrTimedOut)

	_, stillPending := c.Pending("sess-1")
	require.False(t, stillPending)
}

func TestRequestContextCancellation(t *testing.T) {
	c := newTestController(time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Request(ctx, "sess-1", "task-1", "log in manually")
	}()

	awaitPending(t, c, "sess-1")
	cancel()
	require.ErrorIs(t, <-errCh, ErrCancelled)
}

func TestSecondRequestForSessionRejected(t *testing.T) {
	c := newTestController(time.Minute, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Request(context.Background(), "sess-1", "task-1", "first")
	}()

	req := awaitPending(t, c, "sess-1")
	require.ErrorIs(t, c.Request(context.Background(), "sess-1", "task-2", "second"), ErrSessionBusy)

	require.NoError(t, c.Continue(req.ID))
	require.NoError(t, <-errCh)
}

func TestResolveUnknownRequest(t *testing.T) {
	c := newTestController(time.Minute, nil)
	require.ErrorIs(t, c.Continue("nope"), ErrNotFound)
	require.ErrorIs(t, c.Cancel("nope"), ErrNotFound)
}

func TestResolutionIsExactlyOnce(t *testing.T) {
	c := newTestController(time.Minute, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Request(context.Background(), "sess-1", "task-1", "check the email")
	}()

	req := awaitPending(t, c, "sess-1")
	require.NoError(t, c.Continue(req.ID))
	require.NoError(t, <-errCh)

	// The settled request is gone; a late cancel cannot flip the outcome.
	require.ErrorIs(t, c.Cancel(req.ID), ErrNotFound)
}
