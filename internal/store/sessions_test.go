// internal/store/sessions_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

func TestCreateSession(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(pgxmock.AnyArg(), "cli", string(schemas.SessionActive), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	session, err := s.CreateSession(context.Background(), "cli")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	require.Equal(t, "cli", session.OwnerID)
	require.Equal(t, schemas.SessionActive, session.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionCollectsTaskIDs(t *testing.T) {
	s, mock := newTestStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, owner_id, status, created_at, last_activity FROM sessions").
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "status", "created_at", "last_activity"}).
			AddRow("sess-1", "cli", string(schemas.SessionActive), now, now))
	mock.ExpectQuery("SELECT type, task_id, detail, created_at FROM session_events").
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"type", "task_id", "detail", "created_at"}).
			AddRow("task_started", "task-1", "", now).
			AddRow("task_completed", "task-1", "done", now.Add(time.Minute)).
			AddRow("task_started", "task-2", "", now.Add(2*time.Minute)))

	session, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, session.Events, 3)
	// Task ids are deduplicated in order of first appearance.
	require.Equal(t, []string{"task-1", "task-2"}, session.TaskIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionNotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectQuery("SELECT id, owner_id, status, created_at, last_activity FROM sessions").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "status", "created_at", "last_activity"}))

	_, err := s.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTouchSessionNotFound(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("UPDATE sessions SET last_activity").
		WithArgs("missing", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, s.TouchSession(context.Background(), "missing"), ErrNotFound)
}

func TestAppendSessionEventCommitsAtomically(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO session_events").
		WithArgs("sess-1", "action_executed", "task-1", "clicked #submit", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE sessions SET last_activity").
		WithArgs("sess-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.AppendSessionEvent(context.Background(), "sess-1", schemas.SessionEvent{
		Type:   "action_executed",
		TaskID: "task-1",
		Detail: "clicked #submit",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEndSession(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs("sess-1", string(schemas.SessionEnded), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.EndSession(context.Background(), "sess-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupInactiveSessions(t *testing.T) {
	s, mock := newTestStore(t)

	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs(string(schemas.SessionEnded), string(schemas.SessionActive), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	ended, err := s.CleanupInactiveSessions(context.Background(), time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, ended)
	require.NoError(t, mock.ExpectationsWereMet())
}
