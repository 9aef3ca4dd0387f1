package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/generator"
)

type stubGenerator struct {
	name        string
	types       []domain.ExerciseType
	caps        []string
	healthy     atomic.Bool
	initialized atomic.Int32
	disposed    atomic.Int32
}

func newStub(name string, caps ...string) *stubGenerator {
	g := &stubGenerator{name: name, types: domain.AllExerciseTypes(), caps: caps}
	g.healthy.Store(true)
	return g
}

func (g *stubGenerator) Generate(context.Context, generator.Request) (*domain.Exercise, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGenerator) Evaluate(context.Context, *domain.Exercise, domain.Response) (*domain.EvaluationResult, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGenerator) SupportedTypes() []domain.ExerciseType { return g.types }
func (g *stubGenerator) IsHealthy(context.Context) bool       { return g.healthy.Load() }
func (g *stubGenerator) Metadata() generator.Metadata {
	return generator.Metadata{Name: g.name, Types: g.types, Capabilities: g.caps}
}

type lifecycleStub struct{ *stubGenerator }

func (g lifecycleStub) Initialize(context.Context) error {
	g.initialized.Add(1)
	return nil
}

func (g lifecycleStub) Dispose(context.Context) error {
	g.disposed.Add(1)
	return nil
}

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFactory(cfg Config) *Factory {
	cfg.Logger = quietLogger()
	return New(cfg)
}

func withPriority(p int) GeneratorConfig {
	c := DefaultGeneratorConfig()
	c.Priority = p
	return c
}

func register(t *testing.T, f *Factory, name string, g generator.Generator, cfg GeneratorConfig) {
	t.Helper()
	if err := f.RegisterGenerator(context.Background(), domain.TypeMultipleChoice, name, g, cfg); err != nil {
		t.Fatalf("RegisterGenerator(%s) error = %v", name, err)
	}
}

func TestGetGenerator_HighestPriority(t *testing.T) {
	orders := [][]int{{3, 9, 5}, {9, 3, 5}, {5, 3, 9}, {5, 9, 3}}

	for _, cacheEnabled := range []bool{false, true} {
		for _, order := range orders {
			t.Run(fmt.Sprintf("cache=%v/%v", cacheEnabled, order), func(t *testing.T) {
				f := newFactory(Config{CacheEnabled: cacheEnabled})
				for _, p := range order {
					name := fmt.Sprintf("p%d", p)
					register(t, f, name, newStub(name), withPriority(p))
				}

				for range 5 {
					h, err := f.GetGenerator(context.Background(), domain.TypeMultipleChoice, SelectionContext{}, HighestPriority)
					if err != nil {
						t.Fatal(err)
					}
					if h.Name != "p9" {
						t.Errorf("picked %s; want p9", h.Name)
					}
				}
			})
		}
	}
}

func TestGetGenerator_BestQuality(t *testing.T) {
	f := newFactory(Config{})
	for i, q := range []int{4, 8, 6} {
		cfg := DefaultGeneratorConfig()
		cfg.Quality = q
		register(t, f, fmt.Sprintf("g%d", i), newStub(fmt.Sprintf("g%d", i)), cfg)
	}

	h, err := f.GetGenerator(context.Background(), domain.TypeMultipleChoice, SelectionContext{}, BestQuality)
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "g1" {
		t.Errorf("picked %s; want g1", h.Name)
	}
}

func TestGetGenerator_FirstAvailableSkipsUnhealthyAndDisabled(t *testing.T) {
	f := newFactory(Config{})
	sick := newStub("sick")
	sick.healthy.Store(false)
	off := DefaultGeneratorConfig()
	off.Enabled = false

	register(t, f, "sick", sick, DefaultGeneratorConfig())
	register(t, f, "off", newStub("off"), off)
	register(t, f, "ok", newStub("ok"), DefaultGeneratorConfig())

	h, err := f.GetGenerator(context.Background(), domain.TypeMultipleChoice, SelectionContext{}, FirstAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "ok" {
		t.Errorf("picked %s; want ok", h.Name)
	}
}

func TestGetGenerator_RoundRobin(t *testing.T) {
	f := newFactory(Config{})
	for _, n := range []string{"a", "b", "c"} {
		register(t, f, n, newStub(n), DefaultGeneratorConfig())
	}

	var got []string
	for range 6 {
		h, err := f.GetGenerator(context.Background(), domain.TypeMultipleChoice, SelectionContext{}, RoundRobin)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, h.Name)
	}
	if fmt.Sprint(got) != "[a b c a b c]" {
		t.Errorf("round robin order = %v", got)
	}
}

func TestGetGenerator_LoadBalanced(t *testing.T) {
	f := newFactory(Config{})
	register(t, f, "a", newStub("a"), DefaultGeneratorConfig())
	register(t, f, "b", newStub("b"), DefaultGeneratorConfig())

	ctx := context.Background()
	first, _ := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, LoadBalanced)
	second, _ := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, LoadBalanced)
	if first.Name == second.Name {
		t.Errorf("both picks went to %s; want the load spread", first.Name)
	}

	// releasing a brings it back to the lowest load
	f.Record(first, time.Millisecond, nil)
	third, _ := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, LoadBalanced)
	if third.Name != first.Name {
		t.Errorf("third pick = %s; want released %s", third.Name, first.Name)
	}
}

func TestGetGenerator_PerformanceBased(t *testing.T) {
	f := newFactory(Config{})
	register(t, f, "flaky", newStub("flaky"), DefaultGeneratorConfig())
	register(t, f, "steady", newStub("steady"), DefaultGeneratorConfig())

	f.Record(Handle{Name: "flaky", Type: domain.TypeMultipleChoice}, time.Millisecond, errors.New("boom"))
	f.Record(Handle{Name: "steady", Type: domain.TypeMultipleChoice}, 5*time.Millisecond, nil)

	h, err := f.GetGenerator(context.Background(), domain.TypeMultipleChoice, SelectionContext{}, PerformanceBased)
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "steady" {
		t.Errorf("picked %s; want steady", h.Name)
	}
}

func TestGetGenerator_ContextAware(t *testing.T) {
	f := newFactory(Config{})
	register(t, f, "plain", newStub("plain"), withPriority(9))
	register(t, f, "video", newStub("video", "video-analysis"), withPriority(2))

	ctx := context.Background()
	h, _ := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{RequiredCapabilities: []string{"video-analysis"}}, ContextAware)
	if h.Name != "video" {
		t.Errorf("capability pick = %s; want video", h.Name)
	}
	h, _ = f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{PreferredGenerator: "video"}, ContextAware)
	if h.Name != "video" {
		t.Errorf("preferred pick = %s; want video", h.Name)
	}
	h, _ = f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, ContextAware)
	if h.Name != "plain" {
		t.Errorf("default pick = %s; want plain", h.Name)
	}
}

func TestGetGenerator_WeightedRandom(t *testing.T) {
	tests := []struct {
		draw float64
		want string
	}{
		{0.0, "low"},
		{0.2, "low"},
		{0.3, "high"},
		{0.99, "high"},
	}

	for _, tt := range tests {
		f := newFactory(Config{Rand: fixedRand(tt.draw)})
		register(t, f, "low", newStub("low"), withPriority(3))
		register(t, f, "high", newStub("high"), withPriority(7))

		h, err := f.GetGenerator(context.Background(), domain.TypeMultipleChoice, SelectionContext{}, WeightedRandom)
		if err != nil {
			t.Fatal(err)
		}
		if h.Name != tt.want {
			t.Errorf("draw %v picked %s; want %s", tt.draw, h.Name, tt.want)
		}
	}
}

func TestGetGenerator_CacheHitAndFIFO(t *testing.T) {
	f := newFactory(Config{CacheEnabled: true, MaxCacheSize: 2})
	register(t, f, "a", newStub("a"), DefaultGeneratorConfig())
	ctx := context.Background()

	get := func(user string) Handle {
		t.Helper()
		h, err := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{UserID: user}, HighestPriority)
		if err != nil {
			t.Fatal(err)
		}
		return h
	}

	if get("u1").CacheHit {
		t.Error("first call should miss")
	}
	if !get("u1").CacheHit {
		t.Error("second call with the same context should hit")
	}
	get("u2")
	get("u3") // evicts u1

	if s := f.Stats(); s.CacheSize != 2 {
		t.Errorf("CacheSize = %d; want 2", s.CacheSize)
	}
	if get("u1").CacheHit {
		t.Error("u1 should have been evicted first in, first out")
	}
}

func TestGetGenerator_UnhealthyCachedPickIsReplaced(t *testing.T) {
	f := newFactory(Config{CacheEnabled: true})
	top := newStub("top")
	register(t, f, "top", top, withPriority(9))
	register(t, f, "backup", newStub("backup"), withPriority(1))
	ctx := context.Background()

	h, _ := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, HighestPriority)
	if h.Name != "top" {
		t.Fatalf("picked %s; want top", h.Name)
	}
	top.healthy.Store(false)

	h, err := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, HighestPriority)
	if err != nil {
		t.Fatal(err)
	}
	if h.Name != "backup" || h.CacheHit {
		t.Errorf("picked %s (hit=%v); want fresh backup", h.Name, h.CacheHit)
	}
}

// slowHealth blocks in IsHealthy until released
type slowHealth struct {
	*stubGenerator
	entered chan struct{}
	release chan struct{}
}

func (g *slowHealth) IsHealthy(context.Context) bool {
	g.entered <- struct{}{}
	<-g.release
	return true
}

func TestGetGenerator_HealthCheckOutsideLock(t *testing.T) {
	f := newFactory(Config{CacheEnabled: true})
	ctx := context.Background()
	slow := &slowHealth{stubGenerator: newStub("slow"), entered: make(chan struct{}), release: make(chan struct{})}
	register(t, f, "slow", slow, DefaultGeneratorConfig())
	if err := f.RegisterGenerator(ctx, domain.TypeDragDrop, "fast", newStub("fast"), DefaultGeneratorConfig()); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, HighestPriority)
		errc <- err
	}()
	<-slow.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		if h, err := f.GetGenerator(ctx, domain.TypeDragDrop, SelectionContext{}, HighestPriority); err != nil || h.Name != "fast" {
			t.Errorf("GetGenerator(DragDrop) = %s, %v; want fast", h.Name, err)
		}
		if !f.Unregister(domain.TypeMultipleChoice, "slow") {
			t.Error("Unregister(slow) = false")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("factory blocked while a health check was in flight")
	}

	close(slow.release)
	err := <-errc
	var fe *domain.FactoryError
	if !errors.As(err, &fe) || fe.Code != domain.CodeNoGenerator {
		t.Errorf("GetGenerator after unregister error = %v; want %s", err, domain.CodeNoGenerator)
	}
}

func TestGetGenerator_Fallback(t *testing.T) {
	ctx := context.Background()
	def := lifecycleStub{newStub("default")}
	calls := 0
	f := newFactory(Config{NewDefault: func(context.Context) (generator.Generator, error) {
		calls++
		return def, nil
	}})

	for range 3 {
		h, err := f.GetGenerator(ctx, domain.TypeDragDrop, SelectionContext{}, "")
		if err != nil {
			t.Fatal(err)
		}
		if h.Name != "default" {
			t.Errorf("picked %s; want default", h.Name)
		}
	}
	if calls != 1 {
		t.Errorf("default constructed %d times; want 1", calls)
	}
	if def.initialized.Load() != 1 {
		t.Errorf("default initialized %d times; want 1", def.initialized.Load())
	}
	if !f.IsSupported(domain.TypeDragDrop) {
		t.Error("IsSupported() = false once the default exists")
	}
}

func TestGetGenerator_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		cfg      Config
		typ      domain.ExerciseType
		strategy Strategy
		want     domain.FactoryErrorCode
	}{
		{"unknown type", Config{}, "Essay", "", domain.CodeUnsupportedType},
		{"unknown strategy", Config{}, domain.TypeMultipleChoice, "fastest", domain.CodeUnknownStrategy},
		{"no generator", Config{}, domain.TypeMultipleChoice, "", domain.CodeNoGenerator},
		{"default fails", Config{NewDefault: func(context.Context) (generator.Generator, error) {
			return nil, errors.New("catalog missing")
		}}, domain.TypeMultipleChoice, "", domain.CodeDefaultFailed},
		{"default returns nil", Config{NewDefault: func(context.Context) (generator.Generator, error) {
			return nil, nil
		}}, domain.TypeMultipleChoice, "", domain.CodeDefaultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFactory(tt.cfg)
			h, err := f.GetGenerator(ctx, tt.typ, SelectionContext{}, tt.strategy)
			var fe *domain.FactoryError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v; want *FactoryError", err)
			}
			if fe.Code != tt.want {
				t.Errorf("Code = %s; want %s", fe.Code, tt.want)
			}
			if fe.Context["type"] != tt.typ {
				t.Errorf("Context[type] = %v; want %s", fe.Context["type"], tt.typ)
			}
			if h.Generator != nil {
				t.Error("Generator should be nil on error")
			}
		})
	}
}

func TestRegisterGenerator_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFactory(Config{})
	register(t, f, "a", newStub("a"), DefaultGeneratorConfig())

	mcOnly := newStub("mc")
	mcOnly.types = []domain.ExerciseType{domain.TypeMultipleChoice}

	bad := DefaultGeneratorConfig()
	bad.Priority = 11

	tests := []struct {
		name string
		typ  domain.ExerciseType
		gen  string
		g    generator.Generator
		cfg  GeneratorConfig
		want domain.FactoryErrorCode
	}{
		{"duplicate", domain.TypeMultipleChoice, "a", newStub("a"), DefaultGeneratorConfig(), domain.CodeDuplicateName},
		{"bad priority", domain.TypeMultipleChoice, "b", newStub("b"), bad, domain.CodeInvalidConfig},
		{"nil generator", domain.TypeMultipleChoice, "c", nil, DefaultGeneratorConfig(), domain.CodeInvalidConfig},
		{"unsupported", domain.TypeDragDrop, "mc", mcOnly, DefaultGeneratorConfig(), domain.CodeUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.RegisterGenerator(ctx, tt.typ, tt.gen, tt.g, tt.cfg)
			var fe *domain.FactoryError
			if !errors.As(err, &fe) || fe.Code != tt.want {
				t.Errorf("error = %v; want code %s", err, tt.want)
			}
		})
	}
}

func TestFactory_LifecycleAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFactory(Config{})
	g := lifecycleStub{newStub("life")}

	if err := f.RegisterGenerator(ctx, domain.TypeMultipleChoice, "life", g, DefaultGeneratorConfig()); err != nil {
		t.Fatal(err)
	}
	if err := f.RegisterGenerator(ctx, domain.TypeTextEntry, "life", g, DefaultGeneratorConfig()); err != nil {
		t.Fatal(err)
	}

	h, _ := f.GetGenerator(ctx, domain.TypeMultipleChoice, SelectionContext{}, "")
	f.Record(h, 10*time.Millisecond, nil)
	h, _ = f.GetGenerator(ctx, domain.TypeTextEntry, SelectionContext{}, "")
	f.Record(h, 30*time.Millisecond, errors.New("failed"))

	s := f.Stats()
	if len(s.Generators) != 1 {
		t.Fatalf("Generators = %+v; want one shared entry", s.Generators)
	}
	gs := s.Generators[0]
	if gs.Requests != 2 || gs.Errors != 1 || gs.SuccessRate != 0.5 {
		t.Errorf("stats = %+v", gs)
	}
	if gs.AvgResponseTime != 20*time.Millisecond {
		t.Errorf("AvgResponseTime = %v; want 20ms", gs.AvgResponseTime)
	}
	if gs.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d; want 0 after records", gs.CurrentLoad)
	}

	if err := f.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if g.disposed.Load() != 1 {
		t.Errorf("disposed %d times; want 1", g.disposed.Load())
	}
	if !f.Unregister(domain.TypeTextEntry, "life") || f.Unregister(domain.TypeTextEntry, "life") {
		t.Error("Unregister should succeed once")
	}
	if f.IsSupported(domain.TypeTextEntry) {
		t.Error("TextEntry still supported after Unregister")
	}
}

func TestSelectionContext_Fingerprint(t *testing.T) {
	a := SelectionContext{UserID: "u", FocusAreas: []string{"famille", "couleurs"}}
	b := SelectionContext{UserID: "u", FocusAreas: []string{"couleurs", "famille"}}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("focus area order should not change the fingerprint")
	}
	if a.Fingerprint() == (SelectionContext{UserID: "v"}).Fingerprint() {
		t.Error("different users should not share a fingerprint")
	}
}
