package engine

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/factory"
	"github.com/felixgeelhaar/coda/internal/generator"
	"github.com/felixgeelhaar/coda/internal/strategy"
)

// Params is a request for one exercise
type Params struct {
	Type       domain.ExerciseType `json:"type"`
	Level      domain.CECRLLevel   `json:"level,omitempty"`
	Difficulty float64             `json:"difficulty"`
	FocusAreas []string            `json:"focus_areas,omitempty"`
	UserID     string              `json:"user_id,omitempty"`
	ConceptIDs []string            `json:"concept_ids,omitempty"`

	// SkillEstimate, when set, adapts the generated exercise to the
	// learner's measured skill in [0,1]
	SkillEstimate *float64         `json:"skill_estimate,omitempty"`
	Options       strategy.Options `json:"options,omitzero"`

	// Strategy overrides the factory's default selection policy
	Strategy factory.Strategy `json:"strategy,omitempty"`

	// Fresh bypasses the parameter cache and always generates
	Fresh bool `json:"fresh,omitempty"`
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

// Validate rejects malformed parameters before any generation work
func (p Params) Validate() error {
	if !p.Type.IsValid() {
		return domain.NewValidationError("type", "unknown exercise type %q", p.Type)
	}
	if p.Level != "" && !p.Level.IsValid() {
		return domain.NewValidationError("level", "unknown level %q", p.Level)
	}
	if !inUnit(p.Difficulty) {
		return domain.NewValidationError("difficulty", "%v outside [0,1]", p.Difficulty)
	}
	if p.SkillEstimate != nil && !inUnit(*p.SkillEstimate) {
		return domain.NewValidationError("skill_estimate", "%v outside [0,1]", *p.SkillEstimate)
	}
	if p.Strategy != "" && !p.Strategy.IsValid() {
		return domain.NewValidationError("strategy", "unknown selection strategy %q", p.Strategy)
	}
	for _, id := range p.ConceptIDs {
		if strings.TrimSpace(id) == "" {
			return domain.NewValidationError("concept_ids", "contains an empty id")
		}
	}
	o := p.Options
	if o.OptionCount < 0 || o.PairCount < 0 || o.BlankCount < 0 {
		return domain.NewValidationError("options", "counts must not be negative")
	}
	if math.IsNaN(o.Threshold) || o.Threshold < 0 || o.Threshold > 1 {
		return domain.NewValidationError("options.threshold", "%v outside [0,1]", o.Threshold)
	}
	return nil
}

// Key is the cache key for the parameters. Slice order does not matter.
func (p Params) Key() string {
	focus := slices.Clone(p.FocusAreas)
	slices.Sort(focus)
	ids := slices.Clone(p.ConceptIDs)
	slices.Sort(ids)
	skill := "-"
	if p.SkillEstimate != nil {
		skill = fmt.Sprintf("%g", *p.SkillEstimate)
	}
	o := p.Options
	return fmt.Sprintf("t=%s|l=%s|d=%g|f=%s|u=%s|c=%s|s=%s|o=%d,%d,%d,%g,%t|g=%s",
		p.Type, p.Level, p.Difficulty,
		strings.Join(focus, ","), p.UserID, strings.Join(ids, ","), skill,
		o.OptionCount, o.PairCount, o.BlankCount, o.Threshold, o.IncludeVariations,
		p.Strategy)
}

func (p Params) request() generator.Request {
	return generator.Request{
		Type:       p.Type,
		Level:      p.Level,
		Difficulty: p.Difficulty,
		FocusAreas: p.FocusAreas,
		ConceptIDs: p.ConceptIDs,
		UserID:     p.UserID,
		Options:    p.Options,
	}
}

func (p Params) selection() factory.SelectionContext {
	return factory.SelectionContext{
		UserID:     p.UserID,
		Level:      p.Level,
		Difficulty: p.Difficulty,
		FocusAreas: p.FocusAreas,
	}
}
