// Package generator defines exercise generators and the concept-backed
// implementation used by default.
package generator

import (
	"context"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/strategy"
)

// Request describes the exercise to build
type Request struct {
	Type       domain.ExerciseType `json:"type"`
	Level      domain.CECRLLevel   `json:"level,omitempty"`
	Difficulty float64             `json:"difficulty"`
	FocusAreas []string            `json:"focus_areas,omitempty"`
	ConceptIDs []string            `json:"concept_ids,omitempty"`
	UserID     string              `json:"user_id,omitempty"`
	Options    strategy.Options    `json:"options,omitzero"`
}

// ResolvedLevel is the requested level, or the one derived from difficulty
func (r Request) ResolvedLevel() domain.CECRLLevel {
	if r.Level.IsValid() {
		return r.Level
	}
	return domain.MapDifficultyToCECRL(r.Difficulty)
}

// Metadata describes a generator
type Metadata struct {
	Name         string                `json:"name"`
	Version      string                `json:"version"`
	Description  string                `json:"description,omitempty"`
	Types        []domain.ExerciseType `json:"types"`
	Capabilities []string              `json:"capabilities,omitempty"`
}

// Generator builds and grades exercises
type Generator interface {
	Generate(ctx context.Context, req Request) (*domain.Exercise, error)
	Evaluate(ctx context.Context, e *domain.Exercise, resp domain.Response) (*domain.EvaluationResult, error)
	SupportedTypes() []domain.ExerciseType
	IsHealthy(ctx context.Context) bool
	Metadata() Metadata
}

// Lifecycle is implemented by generators that hold resources
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Dispose(ctx context.Context) error
}

// Supports reports whether g lists t among its types
func Supports(g Generator, t domain.ExerciseType) bool {
	for _, st := range g.SupportedTypes() {
		if st == t {
			return true
		}
	}
	return false
}
