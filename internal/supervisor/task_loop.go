// internal/supervisor/task_loop.go
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/handoff"
	"github.com/xkilldash9x/pagepilot/internal/oracle"
)

const defaultPausePoll = 500 * time.Millisecond

// statusNeedsHuman is the decision status the model emits when automation
// must yield to a human (login, CAPTCHA, confirmation).
const statusNeedsHuman = "needs_human"

type pageCloser interface {
	Close() error
}

// runTask drives one task through the perceive-decide-act loop until a
// terminal state.
func (s *Supervisor) runTask(ctx context.Context, h *taskHandle) {
	defer close(h.done)

	taskID, sessionID, description, opts := taskIdentity(h)
	logger := s.logger.With(zap.String("task_id", taskID))

	page, err := s.pages.NewPage(ctx)
	if err != nil {
		logger.Error("Failed to create page for task.", zap.Error(err))
		s.finish(h, schemas.TaskFailed, "", fmt.Sprintf("failed to create page: %v", err))
		return
	}
	defer func() {
		if closer, ok := page.(pageCloser); ok {
			if cerr := closer.Close(); cerr != nil {
				logger.Warn("Failed to close task page.", zap.Error(cerr))
			}
		}
	}()

	s.setStatus(h, schemas.TaskRunning)
	s.publish(schemas.EventTaskStarted, taskID, sessionID, description)
	s.sessionEvent(ctx, sessionID, taskID, "task_started", description)

	if opts.StartURL != "" {
		nav := schemas.Action{
			ID:   uuid.New().String(),
			Type: schemas.ActionNavigate,
			URL:  opts.StartURL,
		}
		s.appendAction(h, nav)
		result, navErr := s.exec.Execute(ctx, page, nav)
		s.appendResult(h, result)
		if navErr != nil {
			s.finish(h, schemas.TaskFailed, "", fmt.Sprintf("start navigation failed: %v", navErr))
			s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskFailed))
			return
		}
	}

	for {
		if s.aborted(h) || ctx.Err() != nil {
			s.finish(h, schemas.TaskAborted, "", "aborted by operator")
			s.publish(schemas.EventTaskAborted, taskID, sessionID, "")
			s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskAborted))
			return
		}
		if !s.waitWhilePaused(ctx, h) {
			continue
		}

		h.mu.Lock()
		if h.task.Iterations >= opts.MaxIterations {
			h.mu.Unlock()
			logger.Warn("Iteration cap reached.", zap.Int("max_iterations", opts.MaxIterations))
			s.finish(h, schemas.TaskTimeout, "", fmt.Sprintf("no completion after %d iterations", opts.MaxIterations))
			s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskTimeout))
			return
		}
		h.task.Iterations++
		iteration := h.task.Iterations
		h.mu.Unlock()

		logger.Debug("Iteration starting.", zap.Int("iteration", iteration))

		// Perceive. A failed capture is not fatal; the page digest alone can
		// carry a turn.
		shot, capErr := s.screenshots.Capture(ctx, page, taskID)
		if capErr != nil {
			logger.Warn("Screenshot capture failed.", zap.Error(capErr))
		} else {
			h.mu.Lock()
			h.task.Screenshots = append(h.task.Screenshots, shot.Meta)
			h.mu.Unlock()
			s.publish(schemas.EventScreenshotCaptured, taskID, sessionID, shot.Meta.URL)
		}

		summary, sumErr := page.PageSummary(ctx)
		if sumErr != nil {
			logger.Debug("Page summary failed.", zap.Error(sumErr))
		}

		// Decide.
		decision, decErr := s.oracle.Decide(ctx, schemas.DecisionRequest{
			TaskDescription: description,
			Screenshot:      shot,
			PageSummary:     summary,
			History:         s.history(h),
		})
		if decErr != nil {
			if s.aborted(h) || ctx.Err() != nil {
				continue
			}
			logger.Error("Oracle decision failed.", zap.Error(decErr))
			s.finish(h, schemas.TaskFailed, "", fmt.Sprintf("oracle unavailable: %v", decErr))
			s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskFailed))
			return
		}

		if decision.Thinking != "" {
			s.appendMessage(h, schemas.RoleAssistant, decision.Thinking)
			s.publish(schemas.EventAIThinking, taskID, sessionID, decision.Thinking)
		}

		// Yield to a human when the model asks for one.
		if decision.Status == statusNeedsHuman && s.handoff != nil {
			if done := s.runHandoff(ctx, h, taskID, sessionID, handoffInstruction(decision)); done {
				return
			}
			continue
		}

		// A completion signal ends the task before any actions bundled with
		// it run; the page already reflects the finished state.
		if s.completeFn()(decision) {
			logger.Info("Task completed.", zap.Int("iterations", iteration))
			s.recordFinalPage(ctx, h, page)
			s.finish(h, schemas.TaskCompleted, decision.Result, "")
			s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskCompleted))
			return
		}

		// Act. A failed action does not end the iteration; its error is fed
		// back to the oracle as a system message instead.
		for _, action := range decision.Actions {
			if s.aborted(h) || ctx.Err() != nil {
				break
			}
			if action.ID == "" {
				action.ID = uuid.New().String()
			}
			s.appendAction(h, action)
			result, execErr := s.exec.Execute(ctx, page, action)
			s.appendResult(h, result)

			if execErr != nil {
				s.publish(schemas.EventActionError, taskID, sessionID, result.Error)
				s.appendMessage(h, schemas.RoleSystem,
					fmt.Sprintf("action %s (%s) failed [%s]: %s", action.ID, action.Type, result.ErrorCode, result.Error))
			} else {
				s.publish(schemas.EventActionExecuted, taskID, sessionID, result.Detail)
			}
		}

		select {
		case <-time.After(opts.IterationDelay):
		case <-ctx.Done():
		}
	}
}

// runHandoff blocks the loop on the handoff controller. Returns true when
// the task reached a terminal state.
func (s *Supervisor) runHandoff(ctx context.Context, h *taskHandle, taskID, sessionID, instruction string) bool {
	err := s.handoff.Request(ctx, sessionID, taskID, instruction)
	switch {
	case err == nil:
		s.appendMessage(h, schemas.RoleSystem, "a human completed the requested step; reassess the page and continue")
		return false
	case errors.Is(err, handoff.ErrTimedOut):
		s.finish(h, schemas.TaskFailed, "", fmt.Sprintf("handoff timed out [%s]: %s", schemas.CodeHandoffTimeout, instruction))
		s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskFailed))
		return true
	default:
		s.finish(h, schemas.TaskAborted, "", fmt.Sprintf("handoff cancelled [%s]: %s", schemas.CodeHandoffCancelled, instruction))
		s.publish(schemas.EventTaskAborted, taskID, sessionID, "handoff cancelled")
		s.sessionEvent(ctx, sessionID, taskID, "task_finished", string(schemas.TaskAborted))
		return true
	}
}

// waitWhilePaused parks the loop while a pause is requested. Iterations do
// not advance during a pause. Returns false when the wait was interrupted by
// abort or context cancellation so the caller re-runs its top-of-loop checks.
func (s *Supervisor) waitWhilePaused(ctx context.Context, h *taskHandle) bool {
	poll := s.cfg.PausePollInterval
	if poll <= 0 {
		poll = defaultPausePoll
	}
	for {
		h.mu.RLock()
		paused := h.pauseRequested
		aborted := h.abortRequested
		h.mu.RUnlock()

		if aborted || ctx.Err() != nil {
			return false
		}
		if !paused {
			return true
		}
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return false
		}
	}
}

// ExecuteValidated replays a stored sequence action-by-action without any
// oracle involvement. All actions must succeed; success reinforces the
// sequence's usage frequency.
func (s *Supervisor) ExecuteValidated(ctx context.Context, sequenceID string) ([]schemas.ActionResult, error) {
	seq, err := s.sequences.GetSequence(ctx, sequenceID)
	if err != nil {
		return nil, err
	}

	page, err := s.pages.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create page for replay: %w", err)
	}
	defer func() {
		if closer, ok := page.(pageCloser); ok {
			_ = closer.Close()
		}
	}()

	s.logger.Info("Replaying validated sequence.",
		zap.String("sequence_id", seq.ID),
		zap.Int("actions", len(seq.Actions)))

	results := make([]schemas.ActionResult, 0, len(seq.Actions))
	for i, action := range seq.Actions {
		result, execErr := s.exec.Execute(ctx, page, action)
		results = append(results, result)
		if execErr != nil {
			return results, fmt.Errorf("replay stopped at action %d/%d: %w", i+1, len(seq.Actions), execErr)
		}
	}

	if err := s.sequences.SaveValidatedSequence(ctx, seq); err != nil {
		s.logger.Warn("Failed to reinforce sequence after replay.", zap.String("sequence_id", seq.ID), zap.Error(err))
	}
	return results, nil
}

// recordFinalPage remembers where the task ended so a later ValidateTask can
// describe the sequence without the page, which closes with the loop.
func (s *Supervisor) recordFinalPage(ctx context.Context, h *taskHandle, page schemas.PageDriver) {
	url, uerr := page.URL(ctx)
	title, terr := page.Title(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()
	if uerr == nil {
		h.finalURL = url
	}
	if terr == nil {
		h.finalTitle = title
	}
}

// -- small helpers over the shared task record --

func taskIdentity(h *taskHandle) (taskID, sessionID, description string, opts schemas.TaskOptions) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task.ID, h.task.SessionID, h.task.Description, h.task.Options
}

func (s *Supervisor) aborted(h *taskHandle) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.abortRequested
}

func (s *Supervisor) completeFn() func(schemas.Decision) bool {
	if s.complete != nil {
		return s.complete
	}
	return oracle.DefaultCompletion
}

func (s *Supervisor) setStatus(h *taskHandle, status schemas.TaskStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.task.Status.IsTerminal() {
		return
	}
	h.task.Status = status
	s.publishLocked(h.task, schemas.EventTaskStatusChanged, string(status))
}

// finish drives the task to a terminal state exactly once.
func (s *Supervisor) finish(h *taskHandle, status schemas.TaskStatus, result, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.task.Status.IsTerminal() {
		return
	}
	h.task.Status = status
	now := time.Now().UTC()
	h.task.EndTime = &now
	h.task.Duration = now.Sub(h.task.CreatedAt)
	h.task.Result = result
	h.task.Error = errMsg
	s.publishLocked(h.task, schemas.EventTaskStatusChanged, string(status))
}

func (s *Supervisor) appendAction(h *taskHandle, action schemas.Action) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Actions = append(h.task.Actions, action)
}

func (s *Supervisor) appendResult(h *taskHandle, result schemas.ActionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Results = append(h.task.Results, result)
}

func (s *Supervisor) appendMessage(h *taskHandle, role schemas.MessageRole, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.task.Messages = append(h.task.Messages, schemas.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Supervisor) history(h *taskHandle) []schemas.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]schemas.Message(nil), h.task.Messages...)
}

func (s *Supervisor) publish(eventType schemas.EventType, taskID, sessionID, detail string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(schemas.Event{
		Type:      eventType,
		TaskID:    taskID,
		SessionID: sessionID,
		Payload:   detail,
	})
}

func (s *Supervisor) sessionEvent(ctx context.Context, sessionID, taskID, eventType, detail string) {
	if s.sessions == nil || sessionID == "" {
		return
	}
	ev := schemas.SessionEvent{
		Type:      eventType,
		TaskID:    taskID,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := s.sessions.AppendSessionEvent(ctx, sessionID, ev); err != nil {
		s.logger.Warn("Failed to append session event.", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func handoffInstruction(decision schemas.Decision) string {
	if decision.Result != "" {
		return decision.Result
	}
	if decision.Thinking != "" {
		return decision.Thinking
	}
	return "human assistance required in the browser session"
}
