// Package difficulty tunes generated exercises to a learner's skill estimate.
package difficulty

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/strategy"
)

const (
	// SimplifyBelow is the skill under which content is simplified
	SimplifyBelow = 0.3
	// ComplicateAbove is the skill over which content is made harder
	ComplicateAbove = 0.7
	// AdaptationRate is how far difficulty moves toward the skill estimate
	AdaptationRate = 0.3

	simplifyTimeFactor   = 1.5
	complicateTimeFactor = 0.8

	epsilon = 1e-9
)

// Adapter adjusts exercises using the strategy of their type
type Adapter struct {
	strategies strategy.Set
}

// NewAdapter creates an adapter over strategies
func NewAdapter(strategies strategy.Set) *Adapter {
	return &Adapter{strategies: strategies}
}

// AdaptedDifficulty moves d a fixed fraction toward skill, clamped to [0,1]
func AdaptedDifficulty(d, skill float64) float64 {
	return domain.Clamp01(d + AdaptationRate*(skill-d))
}

// Adapt returns a new exercise tuned to skill. The input is not modified.
// Adapting to the exercise's own difficulty returns an identical copy.
func (a *Adapter) Adapt(e *domain.Exercise, skill float64) (*domain.Exercise, error) {
	if e == nil {
		return nil, domain.NewValidationError("exercise", "is nil")
	}
	if math.IsNaN(skill) || skill < 0 || skill > 1 {
		return nil, domain.NewValidationError("skill", "%v outside [0,1]", skill)
	}

	out := e.Clone()
	if math.Abs(skill-e.Difficulty) < epsilon {
		return out, nil
	}

	s, ok := a.strategies.Get(e.Type)
	if !ok {
		return nil, fmt.Errorf("adapt %s: %w", e.Type, domain.ErrUnsupportedType)
	}

	switch {
	case skill < SimplifyBelow:
		out.Content, out.Answer = s.Simplify(e.Content, e.Answer)
		out.TimeLimit = scaleTime(e.TimeLimit, simplifyTimeFactor)
	case skill > ComplicateAbove:
		out.Content, out.Answer = s.Complicate(e.Content, e.Answer)
		out.TimeLimit = scaleTime(e.TimeLimit, complicateTimeFactor)
	}

	out.Difficulty = AdaptedDifficulty(e.Difficulty, skill)
	out.Level = domain.MapDifficultyToCECRL(out.Difficulty)
	return out, nil
}

func scaleTime(seconds int, factor float64) int {
	if seconds <= 0 {
		return seconds
	}
	return max(1, int(math.Round(float64(seconds)*factor)))
}
