package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// ExerciseStore keeps generated exercises by id
type ExerciseStore struct {
	db *DB
}

// NewExerciseStore creates a SQLite-backed exercise store
func NewExerciseStore(db *DB) *ExerciseStore {
	return &ExerciseStore{db: db}
}

// Put inserts or replaces an exercise
func (s *ExerciseStore) Put(ctx context.Context, e *domain.Exercise) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal exercise: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exercises (id, type, level, difficulty, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, level=excluded.level,
			difficulty=excluded.difficulty, data=excluded.data`,
		e.ID, string(e.Type), string(e.Level), e.Difficulty, string(data), e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert exercise: %w", err)
	}
	return nil
}

// Get returns the exercise or domain.ErrExerciseNotFound
func (s *ExerciseStore) Get(ctx context.Context, id string) (*domain.Exercise, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM exercises WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrExerciseNotFound
		}
		return nil, fmt.Errorf("get exercise: %w", err)
	}

	var e domain.Exercise
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal exercise: %w", err)
	}
	return &e, nil
}

// PurgeBefore deletes exercises created before t and returns how many
func (s *ExerciseStore) PurgeBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM exercises WHERE created_at < ?", t.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge exercises: %w", err)
	}
	return res.RowsAffected()
}

// RunPurge deletes exercises older than retention now and then every
// interval until ctx is done
func (s *ExerciseStore) RunPurge(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := s.PurgeBefore(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			slog.Warn("failed to purge exercises", "error", err)
		case n > 0:
			slog.Debug("purged exercises", "count", n, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
