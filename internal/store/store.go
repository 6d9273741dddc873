package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// ErrNotFound is returned when a sequence or session id does not exist.
var ErrNotFound = errors.New("record not found")

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL implementation of the sequence and session
// repositories. Sequences are additionally cached in memory: similarity
// lookup runs per iteration of the task loop and must not hit the database
// every time. Writes go through to the database synchronously and then
// refresh the cache.
type Store struct {
	pool DBPool
	log  *zap.Logger

	mu        sync.RWMutex
	sequences map[string]schemas.ValidatedSequence
	loaded    bool
}

var (
	_ schemas.SequenceRepository = (*Store)(nil)
	_ schemas.SessionRepository  = (*Store)(nil)
)

// New creates a store and verifies database connectivity.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool:      pool,
		log:       logger.Named("store"),
		sequences: make(map[string]schemas.ValidatedSequence),
	}, nil
}

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS validated_sequences (
			id          TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			actions     JSONB NOT NULL,
			url         TEXT NOT NULL DEFAULT '',
			title       TEXT NOT NULL DEFAULT '',
			frequency   INT NOT NULL DEFAULT 1,
			created_at  TIMESTAMPTZ NOT NULL,
			last_used   TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			status        TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			last_activity TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS session_events (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			type       TEXT NOT NULL,
			task_id    TEXT NOT NULL DEFAULT '',
			detail     TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// -- SequenceRepository --

// SaveValidatedSequence upserts a sequence. A sequence whose id is already
// stored, or whose description and URL match an existing record, increments
// that record's frequency instead of creating a duplicate.
func (s *Store) SaveValidatedSequence(ctx context.Context, seq schemas.ValidatedSequence) error {
	if err := s.ensureCache(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()

	s.mu.RLock()
	var existing *schemas.ValidatedSequence
	if seq.ID != "" {
		if cached, ok := s.sequences[seq.ID]; ok {
			c := cached
			existing = &c
		}
	}
	if existing == nil {
		for _, cached := range s.sequences {
			if cached.Description == seq.Description && cached.URL == seq.URL {
				c := cached
				existing = &c
				break
			}
		}
	}
	s.mu.RUnlock()

	if existing != nil {
		existing.Frequency++
		existing.LastUsed = now
		if _, err := s.pool.Exec(ctx,
			`UPDATE validated_sequences SET frequency = $2, last_used = $3 WHERE id = $1`,
			existing.ID, existing.Frequency, existing.LastUsed); err != nil {
			return fmt.Errorf("failed to update sequence frequency: %w", err)
		}
		s.mu.Lock()
		s.sequences[existing.ID] = *existing
		s.mu.Unlock()
		s.log.Debug("Sequence reinforced.", zap.String("sequence_id", existing.ID), zap.Int("frequency", existing.Frequency))
		return nil
	}

	if seq.ID == "" {
		seq.ID = uuid.New().String()
	}
	if seq.CreatedAt.IsZero() {
		seq.CreatedAt = now
	}
	if seq.Frequency <= 0 {
		seq.Frequency = 1
	}
	seq.LastUsed = now

	actionsJSON, err := json.Marshal(seq.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal sequence actions: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO validated_sequences (id, description, actions, url, title, frequency, created_at, last_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		seq.ID, seq.Description, actionsJSON, seq.URL, seq.Title, seq.Frequency, seq.CreatedAt, seq.LastUsed); err != nil {
		return fmt.Errorf("failed to insert sequence: %w", err)
	}

	s.mu.Lock()
	s.sequences[seq.ID] = seq
	s.mu.Unlock()
	s.log.Info("Validated sequence saved.", zap.String("sequence_id", seq.ID), zap.String("description", seq.Description))
	return nil
}

// GetSequence fetches a sequence by id.
func (s *Store) GetSequence(ctx context.Context, id string) (schemas.ValidatedSequence, error) {
	if err := s.ensureCache(ctx); err != nil {
		return schemas.ValidatedSequence{}, err
	}
	s.mu.RLock()
	seq, ok := s.sequences[id]
	s.mu.RUnlock()
	if !ok {
		return schemas.ValidatedSequence{}, fmt.Errorf("sequence %q: %w", id, ErrNotFound)
	}
	return seq, nil
}

// FindSimilar ranks stored sequences against a task description by counting
// shared tokens longer than three characters. Only sequences sharing at least
// one token are returned, ordered by score then by usage frequency.
func (s *Store) FindSimilar(ctx context.Context, description string, limit int) ([]schemas.ValidatedSequence, error) {
	if err := s.ensureCache(ctx); err != nil {
		return nil, err
	}

	queryTokens := tokenize(description)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	type scored struct {
		seq   schemas.ValidatedSequence
		score int
	}

	s.mu.RLock()
	candidates := make([]scored, 0, len(s.sequences))
	for _, seq := range s.sequences {
		score := overlap(queryTokens, tokenize(seq.Description+" "+seq.URL+" "+seq.Title))
		if score > 0 {
			candidates = append(candidates, scored{seq: seq, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq.Frequency > candidates[j].seq.Frequency
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]schemas.ValidatedSequence, len(candidates))
	for i, c := range candidates {
		out[i] = c.seq
	}
	return out, nil
}

// ListSequences returns all stored sequences, most recently used first.
func (s *Store) ListSequences(ctx context.Context) ([]schemas.ValidatedSequence, error) {
	if err := s.ensureCache(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]schemas.ValidatedSequence, 0, len(s.sequences))
	for _, seq := range s.sequences {
		out = append(out, seq)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsed.After(out[j].LastUsed) })
	return out, nil
}

// DeleteSequence removes a sequence.
func (s *Store) DeleteSequence(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM validated_sequences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sequence %q: %w", id, ErrNotFound)
	}
	s.mu.Lock()
	delete(s.sequences, id)
	s.mu.Unlock()
	return nil
}

// ensureCache lazily loads every sequence into memory once.
func (s *Store) ensureCache(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, description, actions, url, title, frequency, created_at, last_used FROM validated_sequences`)
	if err != nil {
		return fmt.Errorf("failed to load sequences: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq schemas.ValidatedSequence
		var actionsJSON []byte
		if err := rows.Scan(&seq.ID, &seq.Description, &actionsJSON, &seq.URL, &seq.Title,
			&seq.Frequency, &seq.CreatedAt, &seq.LastUsed); err != nil {
			return fmt.Errorf("failed to scan sequence row: %w", err)
		}
		if err := json.Unmarshal(actionsJSON, &seq.Actions); err != nil {
			s.log.Warn("Skipping sequence with unreadable actions.", zap.String("sequence_id", seq.ID), zap.Error(err))
			continue
		}
		s.sequences[seq.ID] = seq
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during sequence row iteration: %w", err)
	}

	s.loaded = true
	s.log.Debug("Sequence cache loaded.", zap.Int("count", len(s.sequences)))
	return nil
}

// tokenize lowercases and splits a description, keeping tokens longer than
// three characters so stopwords do not inflate similarity.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,;:!?\"'()[]")
		if len(field) > 3 {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	count := 0
	for token := range a {
		if _, ok := b[token]; ok {
			count++
		}
	}
	return count
}
