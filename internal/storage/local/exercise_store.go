package local

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// ExerciseStore keeps generated exercises as one file each under
// exercises/
type ExerciseStore struct {
	exercises *Collection[domain.Exercise]
}

// NewExerciseStore returns an exercise store over s
func NewExerciseStore(s *Store) *ExerciseStore {
	return &ExerciseStore{exercises: NewCollection[domain.Exercise](s, "exercises")}
}

// Put stores e under its id
func (s *ExerciseStore) Put(_ context.Context, e *domain.Exercise) error {
	return s.exercises.Put(e.ID, e)
}

// Get returns the exercise or domain.ErrExerciseNotFound
func (s *ExerciseStore) Get(_ context.Context, id string) (*domain.Exercise, error) {
	e, err := s.exercises.Get(id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey) {
		return nil, domain.ErrExerciseNotFound
	}
	return e, err
}
