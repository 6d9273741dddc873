// internal/handoff/controller.go
package handoff

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/config"
)

var (
	// ErrCancelled is returned to the waiting task when a human declines.
	ErrCancelled = errors.New("handoff cancelled by human")
	// ErrTimedOut is returned when no human responds before the deadline.
	ErrTimedOut = errors.New("handoff timed out waiting for human")
	// ErrNotFound is returned when resolving an unknown request id.
	ErrNotFound = errors.New("handoff request not found")
	// ErrAlreadyResolved is returned on a second resolution attempt.
	ErrAlreadyResolved = errors.New("handoff request already resolved")
	// ErrSessionBusy is returned when the session already has a pending
	// handoff; a session gets at most one at a time.
	ErrSessionBusy = errors.New("session already has a pending handoff")
)

const defaultTimeout = 5 * time.Minute

// Publisher receives handoff lifecycle events for external observers.
type Publisher interface {
	Publish(event schemas.Event)
}

type pending struct {
	req      schemas.HandoffRequest
	done     chan schemas.HandoffResolution
	resolved bool
}

// Controller mediates pause-for-human moments. The task loop blocks in
// Request until a human resumes or cancels through the control surface, or
// the timeout fires. Every request resolves exactly once.
type Controller struct {
	cfg       config.HandoffConfig
	logger    *zap.Logger
	publisher Publisher

	mu        sync.Mutex
	bySession map[string]*pending
	byID      map[string]*pending
}

// NewController creates a handoff controller. publisher may be nil.
func NewController(cfg config.HandoffConfig, publisher Publisher, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		logger:    logger.Named("handoff"),
		publisher: publisher,
		bySession: make(map[string]*pending),
		byID:      make(map[string]*pending),
	}
}

// Request registers a handoff and blocks until it resolves. Returns nil when
// a human continued, ErrCancelled or ErrTimedOut otherwise. Context
// cancellation counts as cancellation so an aborting task releases the human
// from a stale prompt.
func (c *Controller) Request(ctx context.Context, sessionID, taskID, instruction string) error {
	c.mu.Lock()
	if _, busy := c.bySession[sessionID]; busy {
		c.mu.Unlock()
		return ErrSessionBusy
	}
	p := &pending{
		req: schemas.HandoffRequest{
			ID:          uuid.New().String(),
			SessionID:   sessionID,
			TaskID:      taskID,
			Instruction: instruction,
			CreatedAt:   time.Now().UTC(),
		},
		done: make(chan schemas.HandoffResolution, 1),
	}
	c.bySession[sessionID] = p
	c.byID[p.req.ID] = p
	c.mu.Unlock()

	c.logger.Info("Handoff requested; waiting for human.",
		zap.String("request_id", p.req.ID),
		zap.String("session_id", sessionID),
		zap.String("task_id", taskID),
		zap.String("instruction", instruction))
	c.emit(schemas.EventHandoffRequested, p.req)

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var resolution schemas.HandoffResolution
	select {
	case resolution = <-p.done:
	case <-timer.C:
		// A human may resolve in the same instant; resolve() arbitrates and
		// the buffered channel carries whichever outcome won.
		_ = c.resolve(p.req.ID, schemas.HandoffTimedOut)
		resolution = <-p.done
	case <-ctx.Done():
		_ = c.resolve(p.req.ID, schemas.HandoffCancelled)
		resolution = <-p.done
	}

	switch resolution {
	case schemas.HandoffContinued:
		return nil
	case schemas.HandoffTimedOut:
		return ErrTimedOut
	default:
		return ErrCancelled
	}
}

// Continue resumes automation for the given request.
func (c *Controller) Continue(requestID string) error {
	return c.resolve(requestID, schemas.HandoffContinued)
}

// Cancel declines the request; the waiting task aborts.
func (c *Controller) Cancel(requestID string) error {
	return c.resolve(requestID, schemas.HandoffCancelled)
}

// Pending returns the session's outstanding request, if any.
func (c *Controller) Pending(sessionID string) (schemas.HandoffRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.bySession[sessionID]
	if !ok {
		return schemas.HandoffRequest{}, false
	}
	return p.req, true
}

// resolve settles a request exactly once and publishes the outcome.
func (c *Controller) resolve(requestID string, resolution schemas.HandoffResolution) error {
	c.mu.Lock()
	p, ok := c.byID[requestID]
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if p.resolved {
		c.mu.Unlock()
		return ErrAlreadyResolved
	}
	p.resolved = true
	now := time.Now().UTC()
	p.req.ResolvedAt = &now
	p.req.Resolution = resolution
	delete(c.byID, requestID)
	delete(c.bySession, p.req.SessionID)
	req := p.req
	c.mu.Unlock()

	p.done <- resolution

	c.logger.Info("Handoff resolved.",
		zap.String("request_id", requestID),
		zap.String("resolution", string(resolution)))
	c.emit(schemas.EventHandoffResolved, req)
	return nil
}

func (c *Controller) emit(eventType schemas.EventType, req schemas.HandoffRequest) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(schemas.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TaskID:    req.TaskID,
		SessionID: req.SessionID,
		Timestamp: time.Now().UTC(),
		Payload:   req,
	})
}
