// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/executor"
)

var (
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTooManyTasks is returned when the registry is at capacity and no
	// terminal task can be evicted.
	ErrTooManyTasks = errors.New("task registry at capacity")
	// ErrInvalidTransition is returned for lifecycle operations that do not
	// apply to the task's current state.
	ErrInvalidTransition = errors.New("invalid task state transition")
)

// PageFactory creates fresh browser tabs for tasks.
type PageFactory interface {
	NewPage(ctx context.Context) (schemas.PageDriver, error)
}

// HandoffRequester blocks a task while a human completes a step in the live
// session.
type HandoffRequester interface {
	Request(ctx context.Context, sessionID, taskID, instruction string) error
}

// taskHandle pairs the shared task record with its loop control state.
type taskHandle struct {
	mu   sync.RWMutex
	task *schemas.Task

	pauseRequested bool
	abortRequested bool

	// Final page location, recorded when the loop completes so a later
	// validation can label the sequence.
	finalURL   string
	finalTitle string

	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor owns the perceive-decide-act loop for every running task. It
// keeps a bounded in-memory registry of tasks and evicts terminal ones on a
// schedule.
type Supervisor struct {
	cfg         config.SupervisorConfig
	logger      *zap.Logger
	pages       PageFactory
	screenshots *browser.ScreenshotSource
	exec        *executor.Executor
	oracle      schemas.OracleClient
	sequences   schemas.SequenceRepository
	sessions    schemas.SessionRepository
	handoff     HandoffRequester
	bus         *EventBus
	complete    func(schemas.Decision) bool

	mu    sync.RWMutex
	tasks map[string]*taskHandle

	evictStop chan struct{}
	evictDone chan struct{}
	stopOnce  sync.Once
}

// Options collects the supervisor's collaborators.
type Options struct {
	Pages       PageFactory
	Screenshots *browser.ScreenshotSource
	Executor    *executor.Executor
	Oracle      schemas.OracleClient
	Sequences   schemas.SequenceRepository
	Sessions    schemas.SessionRepository
	Handoff     HandoffRequester
	Bus         *EventBus
	// Complete decides when an oracle decision finishes the task. Nil means
	// the lenient default.
	Complete func(schemas.Decision) bool
}

// New creates a supervisor and starts its eviction scheduler.
func New(cfg config.SupervisorConfig, opts Options, logger *zap.Logger) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		logger:      logger.Named("supervisor"),
		pages:       opts.Pages,
		screenshots: opts.Screenshots,
		exec:        opts.Executor,
		oracle:      opts.Oracle,
		sequences:   opts.Sequences,
		sessions:    opts.Sessions,
		handoff:     opts.Handoff,
		bus:         opts.Bus,
		complete:    opts.Complete,
		tasks:       make(map[string]*taskHandle),
		evictStop:   make(chan struct{}),
		evictDone:   make(chan struct{}),
	}
	go s.evictionLoop()
	return s
}

// StartTask registers a task and launches its loop goroutine. The returned
// snapshot reflects the initializing state; poll GetTask or subscribe to the
// bus for progress.
func (s *Supervisor) StartTask(ctx context.Context, description string, opts schemas.TaskOptions) (schemas.Task, error) {
	if description == "" {
		return schemas.Task{}, fmt.Errorf("task description must not be empty")
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = s.cfg.MaxIterations
	}
	if opts.IterationDelay <= 0 {
		opts.IterationDelay = s.cfg.IterationDelay
	}

	task := &schemas.Task{
		ID:          uuid.New().String(),
		Description: description,
		SessionID:   opts.SessionID,
		Status:      schemas.TaskInitializing,
		Options:     opts,
		CreatedAt:   time.Now().UTC(),
	}

	handle := &taskHandle{
		task: task,
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.cfg.MaxTasks > 0 && len(s.tasks) >= s.cfg.MaxTasks {
		s.evictTerminalLocked(1)
		if len(s.tasks) >= s.cfg.MaxTasks {
			s.mu.Unlock()
			return schemas.Task{}, ErrTooManyTasks
		}
	}
	s.tasks[task.ID] = handle
	s.mu.Unlock()

	// The loop outlives the caller's request context.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle.cancel = cancel

	s.logger.Info("Task accepted.",
		zap.String("task_id", task.ID),
		zap.String("session_id", opts.SessionID),
		zap.String("description", description))

	go s.runTask(loopCtx, handle)

	return snapshot(handle), nil
}

// GetTask returns a copy of the task's current state.
func (s *Supervisor) GetTask(id string) (schemas.Task, error) {
	s.mu.RLock()
	handle, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return schemas.Task{}, fmt.Errorf("task %q: %w", id, ErrTaskNotFound)
	}
	return snapshot(handle), nil
}

// ListTasks returns snapshots of all registered tasks, newest first.
func (s *Supervisor) ListTasks() []schemas.Task {
	s.mu.RLock()
	handles := make([]*taskHandle, 0, len(s.tasks))
	for _, h := range s.tasks {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	out := make([]schemas.Task, 0, len(handles))
	for _, h := range handles {
		out = append(out, snapshot(h))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Pause requests a cooperative pause. The loop honors it at the next
// iteration boundary; iterations do not advance while paused.
func (s *Supervisor) Pause(id string) error {
	handle, err := s.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	if handle.task.Status != schemas.TaskRunning {
		return fmt.Errorf("cannot pause task in state %q: %w", handle.task.Status, ErrInvalidTransition)
	}
	handle.pauseRequested = true
	handle.task.Status = schemas.TaskPaused
	s.publishLocked(handle.task, schemas.EventTaskPaused, "paused")
	return nil
}

// Resume lifts a pause.
func (s *Supervisor) Resume(id string) error {
	handle, err := s.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	defer handle.mu.Unlock()
	if handle.task.Status != schemas.TaskPaused {
		return fmt.Errorf("cannot resume task in state %q: %w", handle.task.Status, ErrInvalidTransition)
	}
	handle.pauseRequested = false
	handle.task.Status = schemas.TaskRunning
	s.publishLocked(handle.task, schemas.EventTaskResumed, "resumed")
	return nil
}

// Abort requests termination. The loop notices within one iteration; any
// in-flight driver call is cancelled through the task context.
func (s *Supervisor) Abort(id string) error {
	handle, err := s.handle(id)
	if err != nil {
		return err
	}

	handle.mu.Lock()
	if handle.task.Status.IsTerminal() {
		handle.mu.Unlock()
		return fmt.Errorf("cannot abort task in state %q: %w", handle.task.Status, ErrInvalidTransition)
	}
	handle.abortRequested = true
	handle.pauseRequested = false
	cancel := handle.cancel
	handle.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("Task abort requested.", zap.String("task_id", id))
	return nil
}

// ValidateTask persists a completed task's successful actions as a validated
// sequence. Completion signals from the model are not trusted on their own;
// a sequence becomes replayable only after an operator confirms the outcome
// and calls this.
func (s *Supervisor) ValidateTask(ctx context.Context, id string) error {
	if s.sequences == nil {
		return fmt.Errorf("no sequence repository configured")
	}
	handle, err := s.handle(id)
	if err != nil {
		return err
	}

	handle.mu.RLock()
	status := handle.task.Status
	description := handle.task.Description
	actions := make([]schemas.Action, 0, len(handle.task.Actions))
	for i, action := range handle.task.Actions {
		if i < len(handle.task.Results) && handle.task.Results[i].Success {
			actions = append(actions, action)
		}
	}
	url, title := handle.finalURL, handle.finalTitle
	handle.mu.RUnlock()

	if status != schemas.TaskCompleted {
		return fmt.Errorf("cannot validate task in state %q: %w", status, ErrInvalidTransition)
	}
	if len(actions) == 0 {
		return fmt.Errorf("task %q has no successful actions to validate", id)
	}

	if err := s.sequences.SaveValidatedSequence(ctx, schemas.ValidatedSequence{
		Description: description,
		Actions:     actions,
		URL:         url,
		Title:       title,
	}); err != nil {
		return fmt.Errorf("failed to save validated sequence: %w", err)
	}
	s.logger.Info("Task validated; sequence saved.",
		zap.String("task_id", id),
		zap.Int("actions", len(actions)))
	return nil
}

// WaitTask blocks until the task's loop goroutine exits or the context ends.
func (s *Supervisor) WaitTask(ctx context.Context, id string) (schemas.Task, error) {
	handle, err := s.handle(id)
	if err != nil {
		return schemas.Task{}, err
	}
	select {
	case <-handle.done:
		return snapshot(handle), nil
	case <-ctx.Done():
		return snapshot(handle), ctx.Err()
	}
}

// Shutdown aborts every live task, waits for loops to drain, and stops the
// eviction scheduler and event bus.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.evictStop) })

	s.mu.RLock()
	handles := make([]*taskHandle, 0, len(s.tasks))
	for _, h := range s.tasks {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	for _, h := range handles {
		h.mu.Lock()
		terminal := h.task.Status.IsTerminal()
		h.abortRequested = true
		cancel := h.cancel
		h.mu.Unlock()
		if !terminal && cancel != nil {
			cancel()
		}
	}
	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			s.logger.Warn("Timeout waiting for task loops to stop.")
			goto out
		}
	}
out:
	<-s.evictDone
	if s.bus != nil {
		s.bus.Shutdown()
	}
	s.logger.Info("Supervisor shutdown complete.")
}

// Bus exposes the lifecycle event bus for subscribers.
func (s *Supervisor) Bus() *EventBus { return s.bus }

func (s *Supervisor) handle(id string) (*taskHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handle, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", id, ErrTaskNotFound)
	}
	return handle, nil
}

// evictionLoop periodically drops terminal tasks past the retention window
// and trims the registry back under its cap.
func (s *Supervisor) evictionLoop() {
	defer close(s.evictDone)

	interval := s.cfg.EvictionInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.evictStop:
			return
		}
	}
}

func (s *Supervisor) evictExpired() {
	retention := s.cfg.TaskRetention
	if retention <= 0 {
		retention = time.Hour
	}
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.tasks {
		h.mu.RLock()
		expired := h.task.Status.IsTerminal() && h.task.EndTime != nil && h.task.EndTime.Before(cutoff)
		h.mu.RUnlock()
		if expired {
			delete(s.tasks, id)
			s.logger.Debug("Evicted expired task.", zap.String("task_id", id))
		}
	}
	if s.cfg.MaxTasks > 0 && len(s.tasks) > s.cfg.MaxTasks {
		s.evictTerminalLocked(len(s.tasks) - s.cfg.MaxTasks)
	}
}

// evictTerminalLocked removes up to n terminal tasks, oldest first. Caller
// holds s.mu.
func (s *Supervisor) evictTerminalLocked(n int) {
	type ended struct {
		id string
		at time.Time
	}
	candidates := make([]ended, 0)
	for id, h := range s.tasks {
		h.mu.RLock()
		if h.task.Status.IsTerminal() && h.task.EndTime != nil {
			candidates = append(candidates, ended{id: id, at: *h.task.EndTime})
		}
		h.mu.RUnlock()
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].at.Before(candidates[j].at) })
	for i := 0; i < len(candidates) && i < n; i++ {
		delete(s.tasks, candidates[i].id)
		s.logger.Debug("Evicted terminal task for capacity.", zap.String("task_id", candidates[i].id))
	}
}

// publishLocked emits a status event for a task whose handle lock is held.
func (s *Supervisor) publishLocked(task *schemas.Task, eventType schemas.EventType, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(schemas.Event{
		Type:      eventType,
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Payload:   detail,
	})
}

// snapshot copies the task state for external consumers. Slices are copied
// so callers cannot race the loop.
func snapshot(h *taskHandle) schemas.Task {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t := *h.task
	t.Actions = append([]schemas.Action(nil), h.task.Actions...)
	t.Results = append([]schemas.ActionResult(nil), h.task.Results...)
	t.Screenshots = append([]schemas.ScreenshotMeta(nil), h.task.Screenshots...)
	t.Messages = append([]schemas.Message(nil), h.task.Messages...)
	if h.task.EndTime != nil {
		end := *h.task.EndTime
		t.EndTime = &end
	}
	return t
}
