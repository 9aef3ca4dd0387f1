package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// Evaluation is one stored graded response
type Evaluation struct {
	ID           int64                   `json:"id"`
	ExerciseID   string                  `json:"exercise_id"`
	ExerciseType domain.ExerciseType     `json:"exercise_type"`
	Level        domain.CECRLLevel       `json:"level"`
	Response     domain.Response         `json:"response"`
	Result       domain.EvaluationResult `json:"result"`
}

// TypeSummary aggregates evaluations of one exercise type
type TypeSummary struct {
	Type        domain.ExerciseType `json:"type"`
	Count       int                 `json:"count"`
	Correct     int                 `json:"correct"`
	MeanScore   float64             `json:"mean_score"`
	LastGradeAt time.Time           `json:"last_graded_at"`
}

// EvaluationStore records graded responses. It listens to the engine.
type EvaluationStore struct {
	db *DB
}

// NewEvaluationStore creates a SQLite-backed evaluation store
func NewEvaluationStore(db *DB) *EvaluationStore {
	return &EvaluationStore{db: db}
}

// ExerciseGenerated is a no-op; only graded responses are recorded here
func (s *EvaluationStore) ExerciseGenerated(context.Context, *domain.Exercise) error { return nil }

// ResponseEvaluated stores one evaluation
func (s *EvaluationStore) ResponseEvaluated(ctx context.Context, e *domain.Exercise, resp domain.Response, res *domain.EvaluationResult) error {
	response, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	result, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	at := res.EvaluatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evaluations (exercise_id, exercise_type, level, correct, score, response, result, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), string(e.Level), boolToInt(res.Correct), res.Score,
		string(response), string(result), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// ListByExercise returns the evaluations of one exercise, oldest first
func (s *EvaluationStore) ListByExercise(ctx context.Context, exerciseID string) ([]Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exercise_id, exercise_type, level, response, result
		FROM evaluations WHERE exercise_id = ? ORDER BY id`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []Evaluation
	for rows.Next() {
		var ev Evaluation
		var typ, level, response, result string
		if err := rows.Scan(&ev.ID, &ev.ExerciseID, &typ, &level, &response, &result); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		ev.ExerciseType = domain.ExerciseType(typ)
		ev.Level = domain.CECRLLevel(level)
		if err := json.Unmarshal([]byte(response), &ev.Response); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if err := json.Unmarshal([]byte(result), &ev.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Summary aggregates evaluations graded at or after since, per type
func (s *EvaluationStore) Summary(ctx context.Context, since time.Time) ([]TypeSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exercise_type, COUNT(*), SUM(correct), AVG(score), MAX(evaluated_at)
		FROM evaluations WHERE evaluated_at >= ?
		GROUP BY exercise_type ORDER BY exercise_type`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("summarize evaluations: %w", err)
	}
	defer rows.Close()

	var out []TypeSummary
	for rows.Next() {
		var ts TypeSummary
		var typ, last string
		if err := rows.Scan(&typ, &ts.Count, &ts.Correct, &ts.MeanScore, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		ts.Type = domain.ExerciseType(typ)
		ts.LastGradeAt = parseTime(last)
		out = append(out, ts)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime reads a timestamp produced by an aggregate, which the driver
// returns as text rather than a typed DATETIME
func parseTime(s string) time.Time {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
