// Package metrics exposes generation, evaluation and learner activity as
// Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/coda/internal/cache"
	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coda"

// Metrics holds every collector. It is a factory.Observer, an
// engine.Listener and a coda.Publisher.
type Metrics struct {
	registry *prometheus.Registry

	exercisesGenerated *prometheus.CounterVec
	evaluations        *prometheus.CounterVec
	evaluationScore    *prometheus.HistogramVec
	selections         *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	evolutionEvents    *prometheus.CounterVec
	levelUps           prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		exercisesGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exercises_generated_total",
				Help:      "Exercises generated, by type and level",
			},
			[]string{"type", "level"},
		),
		evaluations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Responses evaluated, by type and correctness",
			},
			[]string{"type", "correct"},
		),
		evaluationScore: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_score",
				Help:      "Distribution of evaluation scores",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"type"},
		),
		selections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generator_selections_total",
				Help:      "Generator selections by the factory",
			},
			[]string{"type", "generator", "cache"},
		),
		generationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generator_call_duration_seconds",
				Help:      "Time spent in generator calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type", "generator", "status"},
		),
		evolutionEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evolution_events_total",
				Help:      "Learner evolution events, by event type",
			},
			[]string{"event"},
		),
		levelUps: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "level_ups_total",
				Help:      "Learners that reached a new level",
			},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served by the daemon",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Time spent serving HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// GeneratorSelected counts a factory selection
func (m *Metrics) GeneratorSelected(t domain.ExerciseType, name string, cacheHit bool) {
	state := "miss"
	if cacheHit {
		state = "hit"
	}
	m.selections.WithLabelValues(string(t), name, state).Inc()
}

// GenerationRecorded observes a generator call
func (m *Metrics) GenerationRecorded(t domain.ExerciseType, name string, d time.Duration, err error) {
	m.generationDuration.WithLabelValues(string(t), name, status(err)).Observe(d.Seconds())
}

// ExerciseGenerated counts a generated exercise
func (m *Metrics) ExerciseGenerated(_ context.Context, e *domain.Exercise) error {
	m.exercisesGenerated.WithLabelValues(string(e.Type), string(e.Level)).Inc()
	return nil
}

// ResponseEvaluated counts an evaluation and observes its score
func (m *Metrics) ResponseEvaluated(_ context.Context, e *domain.Exercise, _ domain.Response, res *domain.EvaluationResult) error {
	m.evaluations.WithLabelValues(string(e.Type), strconv.FormatBool(res.Correct)).Inc()
	m.evaluationScore.WithLabelValues(string(e.Type)).Observe(res.Score)
	return nil
}

// PublishEvolution counts a learner's evolution events
func (m *Metrics) PublishEvolution(_ context.Context, n coda.Notification) error {
	for _, ev := range n.Events {
		m.evolutionEvents.WithLabelValues(string(ev.Type)).Inc()
	}
	if n.LevelUp {
		m.levelUps.Inc()
	}
	return nil
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Registry is where the collectors are registered
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RegisterCache exports cache statistics read from stats at scrape time
func RegisterCache(reg prometheus.Registerer, stats func() cache.Stats) {
	f := promauto.With(reg)
	gauge := func(name, help string, v func(cache.Stats) float64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return v(stats()) })
	}
	counter := func(name, help string, v func(cache.Stats) float64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return v(stats()) })
	}

	gauge("entries", "Exercises currently cached", func(s cache.Stats) float64 { return float64(s.Size) })
	gauge("capacity", "Maximum cached exercises", func(s cache.Stats) float64 { return float64(s.MaxSize) })
	gauge("hit_ratio", "Cache hit ratio since start", func(s cache.Stats) float64 { return s.HitRate })
	counter("hits_total", "Cache hits", func(s cache.Stats) float64 { return float64(s.TotalHits) })
	counter("misses_total", "Cache misses", func(s cache.Stats) float64 { return float64(s.TotalMisses) })
	counter("evictions_total", "Entries evicted for capacity", func(s cache.Stats) float64 { return float64(s.Evictions) })
}
