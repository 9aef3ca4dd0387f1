package sqlite

import (
	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/engine"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ coda.Store           = (*CodaStore)(nil)
	_ engine.ExerciseStore = (*ExerciseStore)(nil)
	_ engine.Listener      = (*EvaluationStore)(nil)
)
