// Package engine is the public generation API: it validates requests,
// picks a generator through the factory, adapts the exercise to the
// learner and keeps it retrievable by id.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/coda/internal/cache"
	"github.com/felixgeelhaar/coda/internal/difficulty"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/factory"
	"golang.org/x/sync/singleflight"
)

const idKeyPrefix = "id:"

// ExerciseStore keeps exercises beyond the local cache. Get returns
// domain.ErrExerciseNotFound on a miss.
type ExerciseStore interface {
	Put(ctx context.Context, e *domain.Exercise) error
	Get(ctx context.Context, id string) (*domain.Exercise, error)
}

// Listener is told about generated exercises and graded responses.
// Errors are logged and never fail the request.
type Listener interface {
	ExerciseGenerated(ctx context.Context, e *domain.Exercise) error
	ResponseEvaluated(ctx context.Context, e *domain.Exercise, resp domain.Response, res *domain.EvaluationResult) error
}

// Config wires an Engine. Factory is required.
type Config struct {
	Factory *factory.Factory
	Adapter *difficulty.Adapter
	Cache   *cache.Cache
	Store   ExerciseStore
}

// Engine serves exercises
type Engine struct {
	factory   *factory.Factory
	adapter   *difficulty.Adapter
	cache     *cache.Cache
	store     ExerciseStore
	listeners []Listener
	group     singleflight.Group
}

// New creates an engine. A nil cache gets the default configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Factory == nil {
		return nil, errors.New("engine: factory is required")
	}
	c := cfg.Cache
	if c == nil {
		c = cache.New(cache.Config{})
	}
	return &Engine{
		factory: cfg.Factory,
		adapter: cfg.Adapter,
		cache:   c,
		store:   cfg.Store,
	}, nil
}

// AddListener registers l for generation and evaluation notifications
func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// GenerateExercise returns an exercise for p. Identical concurrent
// requests share one generation, and unless p.Fresh is set a previous
// result for the same parameters is served from the cache.
func (e *Engine) GenerateExercise(ctx context.Context, p Params) (*domain.Exercise, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.SkillEstimate != nil && e.adapter == nil {
		return nil, domain.NewValidationError("skill_estimate", "no difficulty adapter configured")
	}

	if p.Fresh {
		return e.generate(ctx, p, "")
	}

	key := p.Key()
	if ex, ok := e.cache.Get(key); ok {
		slog.Debug("exercise served from cache", "exercise_id", ex.ID, "type", ex.Type)
		return ex, nil
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.generate(ctx, p, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("generation shared with concurrent request", "type", p.Type)
	}
	return v.(*domain.Exercise), nil
}

func (e *Engine) generate(ctx context.Context, p Params, key string) (*domain.Exercise, error) {
	h, err := e.factory.GetGenerator(ctx, p.Type, p.selection(), p.Strategy)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ex, err := h.Generator.Generate(ctx, p.request())
	e.factory.Record(h, time.Since(start), err)
	if err != nil {
		slog.Warn("exercise generation failed", "type", p.Type, "generator", h.Name, "error", err)
		return nil, err
	}

	if p.SkillEstimate != nil {
		adapted, err := e.adapter.Adapt(ex, *p.SkillEstimate)
		if err != nil {
			return nil, fmt.Errorf("adapt exercise: %w", err)
		}
		ex = adapted
	}

	if key != "" {
		e.cache.Set(key, ex)
	}
	e.cache.Set(idKeyPrefix+ex.ID, ex)

	if e.store != nil {
		if err := e.store.Put(ctx, ex); err != nil {
			slog.Warn("store exercise", "exercise_id", ex.ID, "error", err)
		}
	}
	for _, l := range e.listeners {
		if err := l.ExerciseGenerated(ctx, ex); err != nil {
			slog.Warn("exercise listener", "exercise_id", ex.ID, "error", err)
		}
	}

	slog.Info("exercise generated",
		"exercise_id", ex.ID,
		"type", ex.Type,
		"level", ex.Level,
		"difficulty", ex.Difficulty,
		"generator", h.Name,
		"cached_generator", h.CacheHit,
	)
	return ex, nil
}

// GetExerciseByID returns the exercise, or nil without an error when it
// is unknown or has expired
func (e *Engine) GetExerciseByID(ctx context.Context, id string) (*domain.Exercise, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if ex, ok := e.cache.Get(idKeyPrefix + id); ok {
		return ex, nil
	}
	if e.store == nil {
		return nil, nil
	}

	ex, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrExerciseNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exercise %s: %w", id, err)
	}
	e.cache.Set(idKeyPrefix+ex.ID, ex)
	return ex, nil
}

// EvaluateResponse grades resp against ex with a generator for its type
func (e *Engine) EvaluateResponse(ctx context.Context, ex *domain.Exercise, resp domain.Response) (*domain.EvaluationResult, error) {
	if ex == nil {
		return nil, domain.NewValidationError("exercise", "is required")
	}
	if err := ex.Validate(); err != nil {
		return nil, err
	}

	h, err := e.factory.GetGenerator(ctx, ex.Type, factory.SelectionContext{Level: ex.Level}, "")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := h.Generator.Evaluate(ctx, ex, resp)
	e.factory.Record(h, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	for _, l := range e.listeners {
		if err := l.ResponseEvaluated(ctx, ex, resp, res); err != nil {
			slog.Warn("evaluation listener", "exercise_id", ex.ID, "error", err)
		}
	}

	slog.Info("response evaluated",
		"exercise_id", ex.ID,
		"type", ex.Type,
		"correct", res.Correct,
		"score", res.Score,
	)
	return res, nil
}

// EvaluateByID looks the exercise up and grades resp against it
func (e *Engine) EvaluateByID(ctx context.Context, id string, resp domain.Response) (*domain.Exercise, *domain.EvaluationResult, error) {
	ex, err := e.GetExerciseByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if ex == nil {
		return nil, nil, fmt.Errorf("exercise %s: %w", id, domain.ErrExerciseNotFound)
	}
	res, err := e.EvaluateResponse(ctx, ex, resp)
	if err != nil {
		return nil, nil, err
	}
	return ex, res, nil
}

// SupportedTypes lists the exercise types that can be generated
func (e *Engine) SupportedTypes() []domain.ExerciseType {
	return e.factory.SupportedTypes()
}

// CacheStats reports exercise cache usage
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// FactoryStats reports generator usage
func (e *Engine) FactoryStats() factory.Stats {
	return e.factory.Stats()
}

// Close stops the cache sweeper and disposes generators
func (e *Engine) Close(ctx context.Context) error {
	e.cache.Destroy()
	return e.factory.Close(ctx)
}
