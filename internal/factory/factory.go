// Package factory registers exercise generators and picks one per request.
package factory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/generator"
	"github.com/felixgeelhaar/coda/internal/strategy"
)

// DefaultMaxCacheSize bounds the resolved-generator cache
const DefaultMaxCacheSize = 50

// Observer is notified of selections and recorded calls
type Observer interface {
	GeneratorSelected(t domain.ExerciseType, name string, cacheHit bool)
	GenerationRecorded(t domain.ExerciseType, name string, d time.Duration, err error)
}

// Config configures a Factory
type Config struct {
	CacheEnabled    bool
	MaxCacheSize    int
	DefaultStrategy Strategy

	// NewDefault builds the fallback generator used when no registered
	// generator is available. It is called at most once successfully.
	NewDefault func(ctx context.Context) (generator.Generator, error)
	Rand       Rand
	Observer   Observer
	Logger     *slog.Logger
}

// Handle is a selected generator
type Handle struct {
	Name      string
	Type      domain.ExerciseType
	Generator generator.Generator
	CacheHit  bool
}

type cacheKey struct {
	t           domain.ExerciseType
	strategy    Strategy
	fingerprint string
}

type registration struct {
	name   string
	gen    generator.Generator
	config GeneratorConfig
	stats  *genStats
}

// Factory is a registry of generators with selection policies and a FIFO
// cache of resolved picks. Selection and insertion run under one lock;
// generator health checks run outside it.
type Factory struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	rand   Rand

	regs       map[domain.ExerciseType][]*registration
	stats      map[string]*genStats
	cache      map[cacheKey]*registration
	cacheOrder []cacheKey
	hits       uint64
	misses     uint64
	rr         map[domain.ExerciseType]int
	fallback   *registration
}

// New creates an empty factory
func New(cfg Config) *Factory {
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = DefaultMaxCacheSize
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = HighestPriority
	}
	if cfg.Rand == nil {
		cfg.Rand = strategy.NewRandomRand()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{
		cfg:    cfg,
		logger: cfg.Logger,
		rand:   cfg.Rand,
		regs:   make(map[domain.ExerciseType][]*registration),
		stats:  make(map[string]*genStats),
		cache:  make(map[cacheKey]*registration),
		rr:     make(map[domain.ExerciseType]int),
	}
}

// RegisterGenerator adds gen under name for type t. Generators that
// implement generator.Lifecycle are initialised first.
func (f *Factory) RegisterGenerator(ctx context.Context, t domain.ExerciseType, name string, gen generator.Generator, cfg GeneratorConfig) error {
	errCtx := map[string]any{"type": t, "name": name}
	switch {
	case !t.IsValid():
		return &domain.FactoryError{Code: domain.CodeUnsupportedType, Message: "unknown exercise type", Context: errCtx}
	case name == "" || gen == nil:
		return &domain.FactoryError{Code: domain.CodeInvalidConfig, Message: "generator name and instance are required", Context: errCtx}
	case !generator.Supports(gen, t):
		return &domain.FactoryError{Code: domain.CodeUnsupportedType, Message: "generator does not support type", Context: errCtx}
	}
	if err := cfg.Validate(); err != nil {
		return &domain.FactoryError{Code: domain.CodeInvalidConfig, Message: "invalid generator configuration", Context: errCtx, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.regs[t] {
		if r.name == name {
			return &domain.FactoryError{Code: domain.CodeDuplicateName, Message: "generator already registered", Context: errCtx}
		}
	}

	if lc, ok := gen.(generator.Lifecycle); ok {
		if err := lc.Initialize(ctx); err != nil {
			return fmt.Errorf("register generator %s: %w", name, err)
		}
	}

	st, ok := f.stats[name]
	if !ok {
		st = &genStats{avg: cfg.AvgResponseTime}
		f.stats[name] = st
	}
	f.regs[t] = append(f.regs[t], &registration{name: name, gen: gen, config: cfg, stats: st})
	f.invalidate(t)

	f.logger.Info("generator registered", "type", t, "name", name, "priority", cfg.Priority, "enabled", cfg.Enabled)
	return nil
}

// Unregister removes name from type t and reports whether it was present
func (f *Factory) Unregister(t domain.ExerciseType, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := slices.IndexFunc(f.regs[t], func(r *registration) bool { return r.name == name })
	if i < 0 {
		return false
	}
	f.regs[t] = slices.Delete(f.regs[t], i, i+1)
	f.invalidate(t)
	return true
}

// invalidate drops cached picks for t. Callers hold f.mu.
func (f *Factory) invalidate(t domain.ExerciseType) {
	f.cacheOrder = slices.DeleteFunc(f.cacheOrder, func(k cacheKey) bool {
		if k.t == t {
			delete(f.cache, k)
			return true
		}
		return false
	})
}

// SupportedTypes lists types with at least one enabled registration,
// plus the fallback generator's types once it has been built.
func (f *Factory) SupportedTypes() []domain.ExerciseType {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.ExerciseType
	for _, t := range domain.AllExerciseTypes() {
		if f.supportedLocked(t) {
			out = append(out, t)
		}
	}
	return out
}

func (f *Factory) IsSupported(t domain.ExerciseType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supportedLocked(t)
}

func (f *Factory) supportedLocked(t domain.ExerciseType) bool {
	for _, r := range f.regs[t] {
		if r.config.Enabled {
			return true
		}
	}
	return f.fallback != nil && generator.Supports(f.fallback.gen, t)
}

// GetGenerator returns a generator for t chosen by strat, or the
// configured default strategy when strat is empty. It never returns a nil
// generator without an error.
func (f *Factory) GetGenerator(ctx context.Context, t domain.ExerciseType, sc SelectionContext, strat Strategy) (Handle, error) {
	if !t.IsValid() {
		return Handle{}, &domain.FactoryError{
			Code:    domain.CodeUnsupportedType,
			Message: "unknown exercise type",
			Context: map[string]any{"type": t},
		}
	}
	if strat == "" {
		strat = f.cfg.DefaultStrategy
	}
	sel, ok := selectors[strat]
	if !ok {
		return Handle{}, &domain.FactoryError{
			Code:    domain.CodeUnknownStrategy,
			Message: "unknown selection strategy",
			Context: map[string]any{"type": t, "strategy": strat},
		}
	}

	key := cacheKey{t: t, strategy: strat, fingerprint: sc.Fingerprint()}
	if f.cfg.CacheEnabled {
		if h, ok := f.cached(ctx, key); ok {
			return h, nil
		}
	}
	healthy := f.healthy(ctx, t)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.CacheEnabled {
		f.misses++
	}
	// registrations may have changed while the lock was released
	cands := healthy[:0]
	for _, r := range healthy {
		if slices.Contains(f.regs[t], r) {
			cands = append(cands, r)
		}
	}

	var pick *registration
	if len(cands) == 0 {
		fb, err := f.fallbackFor(ctx, t)
		if err != nil {
			return Handle{}, err
		}
		pick = fb
		f.logger.Warn("no registered generator available, using default",
			"type", t, "registered", len(f.regs[t]))
	} else {
		pick = sel(f, t, cands, sc)
	}
	pick.stats.load++

	if f.cfg.CacheEnabled {
		if _, ok := f.cache[key]; ok {
			f.evict(key)
		}
		for len(f.cacheOrder) >= f.cfg.MaxCacheSize {
			f.evict(f.cacheOrder[0])
		}
		f.cache[key] = pick
		f.cacheOrder = append(f.cacheOrder, key)
	}

	f.notifySelected(t, pick.name, false)
	return Handle{Name: pick.name, Type: t, Generator: pick.gen}, nil
}

// cached returns the cached pick for key when it is still healthy. The
// health check runs without holding f.mu.
func (f *Factory) cached(ctx context.Context, key cacheKey) (Handle, bool) {
	f.mu.Lock()
	r, ok := f.cache[key]
	f.mu.Unlock()
	if !ok {
		return Handle{}, false
	}
	healthy := r.config.Enabled && r.gen.IsHealthy(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cache[key] != r {
		return Handle{}, false
	}
	if !healthy {
		f.evict(key)
		return Handle{}, false
	}
	f.hits++
	r.stats.cacheHits++
	r.stats.load++
	f.notifySelected(key.t, r.name, true)
	return Handle{Name: r.name, Type: key.t, Generator: r.gen, CacheHit: true}, true
}

// healthy snapshots the enabled registrations for t and checks their health
// without holding f.mu
func (f *Factory) healthy(ctx context.Context, t domain.ExerciseType) []*registration {
	f.mu.Lock()
	var regs []*registration
	for _, r := range f.regs[t] {
		if r.config.Enabled {
			regs = append(regs, r)
		}
	}
	f.mu.Unlock()

	out := regs[:0]
	for _, r := range regs {
		if r.gen.IsHealthy(ctx) {
			out = append(out, r)
		}
	}
	return out
}

func (f *Factory) evict(key cacheKey) {
	delete(f.cache, key)
	if i := slices.Index(f.cacheOrder, key); i >= 0 {
		f.cacheOrder = slices.Delete(f.cacheOrder, i, i+1)
	}
}

// fallbackFor builds the default generator on first use. Callers hold f.mu.
func (f *Factory) fallbackFor(ctx context.Context, t domain.ExerciseType) (*registration, error) {
	errCtx := map[string]any{"type": t, "registered": len(f.regs[t])}
	if f.fallback == nil {
		if f.cfg.NewDefault == nil {
			return nil, &domain.FactoryError{Code: domain.CodeNoGenerator, Message: "no healthy generator and no default", Context: errCtx}
		}
		gen, err := f.cfg.NewDefault(ctx)
		if err == nil && gen == nil {
			err = fmt.Errorf("default generator constructor returned nil")
		}
		if err == nil {
			if lc, ok := gen.(generator.Lifecycle); ok {
				err = lc.Initialize(ctx)
			}
		}
		if err != nil {
			return nil, &domain.FactoryError{Code: domain.CodeDefaultFailed, Message: "default generator could not be constructed", Context: errCtx, Err: err}
		}

		name := gen.Metadata().Name
		if name == "" {
			name = generator.DefaultName
		}
		st, ok := f.stats[name]
		if !ok {
			st = &genStats{}
			f.stats[name] = st
		}
		f.fallback = &registration{name: name, gen: gen, config: DefaultGeneratorConfig(), stats: st}
	}

	if !generator.Supports(f.fallback.gen, t) {
		return nil, &domain.FactoryError{Code: domain.CodeNoGenerator, Message: "default generator does not support type", Context: errCtx}
	}
	return f.fallback, nil
}

// Record stores the outcome of a call made through h and releases the load
// taken by GetGenerator.
func (f *Factory) Record(h Handle, d time.Duration, err error) {
	f.mu.Lock()
	st, ok := f.stats[h.Name]
	if ok {
		st.record(d, err)
	}
	f.mu.Unlock()

	if ok && f.cfg.Observer != nil {
		f.cfg.Observer.GenerationRecorded(h.Type, h.Name, d, err)
	}
}

func (f *Factory) notifySelected(t domain.ExerciseType, name string, hit bool) {
	if f.cfg.Observer != nil {
		f.cfg.Observer.GeneratorSelected(t, name, hit)
	}
}

// Stats returns a snapshot of cache and per-generator statistics
func (f *Factory) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		CacheSize:   len(f.cache),
		CacheHits:   f.hits,
		CacheMisses: f.misses,
	}
	for name, st := range f.stats {
		s.Generators = append(s.Generators, st.snapshot(name))
	}
	sort.Slice(s.Generators, func(i, j int) bool { return s.Generators[i].Name < s.Generators[j].Name })
	return s
}

// Close disposes every generator implementing generator.Lifecycle once
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []*registration
	for _, t := range domain.AllExerciseTypes() {
		all = append(all, f.regs[t]...)
	}
	if f.fallback != nil {
		all = append(all, f.fallback)
	}

	var firstErr error
	disposed := map[string]bool{}
	for _, r := range all {
		if disposed[r.name] {
			continue
		}
		disposed[r.name] = true
		lc, ok := r.gen.(generator.Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Dispose(ctx); err != nil {
			f.logger.Warn("dispose generator", "name", r.name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("dispose generator %s: %w", r.name, err)
			}
		}
	}
	clear(f.cache)
	f.cacheOrder = nil
	return firstErr
}
