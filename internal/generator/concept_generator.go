package generator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/coda/internal/concept"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/strategy"
	"github.com/google/uuid"
)

// DefaultName is the name of the built-in concept-backed generator
const DefaultName = "concept"

// healthProbeID is looked up to check that the provider answers
const healthProbeID = "__health__"

// Config configures a ConceptGenerator
type Config struct {
	Name    string
	Version string
	// Types restricts the generator to a subset of the strategies
	Types []domain.ExerciseType
	Rand  strategy.Rand
	Now   func() time.Time
}

// ConceptGenerator builds exercises from provider concepts using one
// strategy per exercise type.
type ConceptGenerator struct {
	name       string
	version    string
	provider   concept.Provider
	strategies strategy.Set
	types      []domain.ExerciseType
	rand       strategy.Rand
	now        func() time.Time
	disposed   atomic.Bool
}

// NewConceptGenerator creates a generator over provider and strategies
func NewConceptGenerator(provider concept.Provider, strategies strategy.Set, cfg Config) *ConceptGenerator {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Rand == nil {
		cfg.Rand = strategy.NewRandomRand()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	types := cfg.Types
	if len(types) == 0 {
		types = strategies.Types()
	}
	types = slices.DeleteFunc(slices.Clone(types), func(t domain.ExerciseType) bool {
		_, ok := strategies.Get(t)
		return !ok
	})

	return &ConceptGenerator{
		name:       cfg.Name,
		version:    cfg.Version,
		provider:   provider,
		strategies: strategies,
		types:      types,
		rand:       cfg.Rand,
		now:        cfg.Now,
	}
}

func (g *ConceptGenerator) SupportedTypes() []domain.ExerciseType {
	return slices.Clone(g.types)
}

func (g *ConceptGenerator) Metadata() Metadata {
	return Metadata{
		Name:         g.name,
		Version:      g.version,
		Description:  "Builds LSF exercises from catalog concepts",
		Types:        g.SupportedTypes(),
		Capabilities: []string{"adaptive-difficulty", "focus-areas", "explicit-concepts"},
	}
}

// IsHealthy reports whether the concept provider answers
func (g *ConceptGenerator) IsHealthy(ctx context.Context) bool {
	if g.disposed.Load() {
		return false
	}
	_, err := g.provider.GetByID(ctx, healthProbeID)
	return err == nil
}

// Initialize fails when the concept provider is not reachable
func (g *ConceptGenerator) Initialize(ctx context.Context) error {
	if _, err := g.provider.GetByID(ctx, healthProbeID); err != nil {
		return fmt.Errorf("initialize generator %s: %w", g.name, err)
	}
	g.disposed.Store(false)
	return nil
}

// Dispose marks the generator unhealthy
func (g *ConceptGenerator) Dispose(context.Context) error {
	g.disposed.Store(true)
	return nil
}

func (g *ConceptGenerator) strategyFor(t domain.ExerciseType) (strategy.Strategy, error) {
	if !slices.Contains(g.types, t) {
		return nil, fmt.Errorf("generator %s: %s: %w", g.name, t, domain.ErrUnsupportedType)
	}
	s, ok := g.strategies.Get(t)
	if !ok {
		return nil, fmt.Errorf("generator %s: %s: %w", g.name, t, domain.ErrUnsupportedType)
	}
	return s, nil
}

// Generate fetches concepts for req and builds a new exercise
func (g *ConceptGenerator) Generate(ctx context.Context, req Request) (*domain.Exercise, error) {
	s, err := g.strategyFor(req.Type)
	if err != nil {
		return nil, err
	}

	level := req.ResolvedLevel()
	difficulty := domain.Clamp01(req.Difficulty)
	needs := s.Requirements(level, req.Options)

	targets, err := g.targets(ctx, req, level, needs.Targets)
	if err != nil {
		return nil, err
	}
	if len(targets) < needs.MinTargets {
		return nil, &domain.GenerationError{
			Type:   req.Type,
			Reason: fmt.Sprintf("need %d concepts at %s, found %d", needs.MinTargets, level, len(targets)),
			Err:    domain.ErrConceptNotFound,
		}
	}

	in := strategy.Input{
		Concepts:   targets,
		Level:      level,
		Difficulty: difficulty,
		Options:    req.Options,
	}
	if needs.Pool > 0 {
		if in.Pool, err = g.pool(ctx, targets, level, needs.Pool); err != nil {
			return nil, err
		}
	}
	if needs.Details {
		if in.Details, err = g.details(ctx, targets); err != nil {
			return nil, err
		}
	}

	out, err := s.Generate(in)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(targets))
	for i, c := range targets {
		ids[i] = c.ID
	}
	e := &domain.Exercise{
		ID:         uuid.NewString(),
		Type:       req.Type,
		Difficulty: difficulty,
		Level:      level,
		Content:    out.Content,
		Answer:     out.Answer,
		TimeLimit:  out.TimeLimit,
		Hints:      out.Hints,
		Skills:     out.Skills,
		ConceptIDs: ids,
		CreatedAt:  g.now(),
	}
	if err := e.Validate(); err != nil {
		return nil, &domain.GenerationError{Type: req.Type, Reason: "invalid exercise", Err: err}
	}

	slog.Debug("exercise generated",
		"generator", g.name,
		"exercise_id", e.ID,
		"type", e.Type,
		"level", e.Level,
		"concepts", len(ids),
	)
	return e, nil
}

// targets returns explicit concepts when given, otherwise a random pick at
// level, preferring the focus areas.
func (g *ConceptGenerator) targets(ctx context.Context, req Request, level domain.CECRLLevel, want int) ([]domain.Concept, error) {
	if len(req.ConceptIDs) > 0 {
		found, err := g.provider.GetByIDs(ctx, req.ConceptIDs)
		if err != nil {
			return nil, fmt.Errorf("get concepts: %w", err)
		}
		if len(found) > want {
			found = found[:want]
		}
		return found, nil
	}

	passes := []domain.SearchCriteria{{Level: level}}
	if len(req.FocusAreas) > 0 {
		passes = append([]domain.SearchCriteria{{Level: level, Categories: req.FocusAreas}}, passes...)
	}
	var out []domain.Concept
	seen := map[string]bool{}
	for _, criteria := range passes {
		if len(out) >= want {
			break
		}
		found, err := g.provider.Search(ctx, criteria)
		if err != nil {
			return nil, fmt.Errorf("search concepts: %w", err)
		}
		g.rand.Shuffle(len(found), func(i, j int) { found[i], found[j] = found[j], found[i] })
		for _, c := range found {
			if len(out) == want {
				break
			}
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// pool gathers distractor candidates: related concepts first, then
// concepts of the same level, then a bounded sample of the rest.
func (g *ConceptGenerator) pool(ctx context.Context, targets []domain.Concept, level domain.CECRLLevel, want int) ([]domain.Concept, error) {
	exclude := make([]string, 0, len(targets))
	var related []string
	for _, t := range targets {
		exclude = append(exclude, t.ID)
		related = append(related, t.RelatedIDs...)
	}

	var out []domain.Concept
	seen := map[string]bool{}
	add := func(cs []domain.Concept) {
		for _, c := range cs {
			if !seen[c.ID] && !slices.Contains(exclude, c.ID) {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}

	if len(related) > 0 {
		cs, err := g.provider.GetByIDs(ctx, related)
		if err != nil {
			return nil, fmt.Errorf("get related concepts: %w", err)
		}
		add(cs)
	}
	for _, criteria := range []domain.SearchCriteria{
		{Level: level, ExcludeIDs: exclude},
		{ExcludeIDs: exclude, Limit: want * 2, SortByFrequency: true},
	} {
		cs, err := g.provider.Search(ctx, criteria)
		if err != nil {
			return nil, fmt.Errorf("search distractors: %w", err)
		}
		add(cs)
	}
	return out, nil
}

func (g *ConceptGenerator) details(ctx context.Context, targets []domain.Concept) (map[string]*domain.ConceptDetails, error) {
	out := make(map[string]*domain.ConceptDetails, len(targets))
	for _, t := range targets {
		d, err := g.provider.GetDetails(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("get details %s: %w", t.ID, err)
		}
		if d != nil {
			out[t.ID] = d
		}
	}
	return out, nil
}

// Evaluate scores resp against the exercise's stored answer
func (g *ConceptGenerator) Evaluate(_ context.Context, e *domain.Exercise, resp domain.Response) (*domain.EvaluationResult, error) {
	if e == nil {
		return nil, domain.NewValidationError("exercise", "is nil")
	}
	s, err := g.strategyFor(e.Type)
	if err != nil {
		return nil, err
	}
	if e.Content.Kind() != e.Type {
		return nil, domain.NewValidationError("content", "does not match type %s", e.Type)
	}

	v := s.Evaluate(e.Content, e.Answer, resp)
	return &domain.EvaluationResult{
		ExerciseID:   e.ID,
		ExerciseType: e.Type,
		Correct:      v.Correct,
		Score:        domain.Clamp01(v.Score),
		SkillScores:  v.SkillScores,
		Explanation:  v.Explanation,
		Feedback:     v.Feedback,
		NeedsHelp:    v.NeedsHelp,
		Suggestions:  v.Suggestions,
		EvaluatedAt:  g.now(),
	}, nil
}

var (
	_ Generator = (*ConceptGenerator)(nil)
	_ Lifecycle = (*ConceptGenerator)(nil)
)
