package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// CreateSession registers a new browsing session for an owner.
func (s *Store) CreateSession(ctx context.Context, ownerID string) (schemas.Session, error) {
	now := time.Now().UTC()
	session := schemas.Session{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Status:       schemas.SessionActive,
		CreatedAt:    now,
		LastActivity: now,
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, owner_id, status, created_at, last_activity) VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.OwnerID, string(session.Status), session.CreatedAt, session.LastActivity); err != nil {
		return schemas.Session{}, fmt.Errorf("failed to insert session: %w", err)
	}

	s.log.Info("Session created.", zap.String("session_id", session.ID), zap.String("owner_id", ownerID))
	return session, nil
}

// GetSession loads a session and its event log.
func (s *Store) GetSession(ctx context.Context, id string) (schemas.Session, error) {
	var session schemas.Session
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, status, created_at, last_activity FROM sessions WHERE id = $1`, id).
		Scan(&session.ID, &session.OwnerID, &status, &session.CreatedAt, &session.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schemas.Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return schemas.Session{}, fmt.Errorf("failed to query session: %w", err)
	}
	session.Status = schemas.SessionStatus(status)

	rows, err := s.pool.Query(ctx,
		`SELECT type, task_id, detail, created_at FROM session_events WHERE session_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return schemas.Session{}, fmt.Errorf("failed to query session events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev schemas.SessionEvent
		if err := rows.Scan(&ev.Type, &ev.TaskID, &ev.Detail, &ev.Timestamp); err != nil {
			return schemas.Session{}, fmt.Errorf("failed to scan session event: %w", err)
		}
		session.Events = append(session.Events, ev)
		if ev.TaskID != "" && !slices.Contains(session.TaskIDs, ev.TaskID) {
			session.TaskIDs = append(session.TaskIDs, ev.TaskID)
		}
	}
	if err := rows.Err(); err != nil {
		return schemas.Session{}, fmt.Errorf("error during session event iteration: %w", err)
	}
	return session, nil
}

// TouchSession bumps the session's last activity timestamp.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_activity = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return nil
}

// AppendSessionEvent records an audit event and bumps activity atomically.
func (s *Store) AppendSessionEvent(ctx context.Context, id string, ev schemas.SessionEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO session_events (session_id, type, task_id, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, ev.Type, ev.TaskID, ev.Detail, ev.Timestamp); err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET last_activity = $2 WHERE id = $1`, id, ev.Timestamp); err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EndSession marks a session ended.
func (s *Store) EndSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2, last_activity = $3 WHERE id = $1`,
		id, string(schemas.SessionEnded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	s.log.Info("Session ended.", zap.String("session_id", id))
	return nil
}

// CleanupInactiveSessions ends every active session whose last activity is
// older than maxIdle and reports how many were ended.
func (s *Store) CleanupInactiveSessions(ctx context.Context, maxIdle time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxIdle)
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1 WHERE status = $2 AND last_activity < $3`,
		string(schemas.SessionEnded), string(schemas.SessionActive), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up inactive sessions: %w", err)
	}
	ended := tag.RowsAffected()
	if ended > 0 {
		s.log.Info("Inactive sessions ended.", zap.Int64("count", ended))
	}
	return ended, nil
}
