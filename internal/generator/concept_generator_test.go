package generator

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/felixgeelhaar/coda/internal/concept"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/strategy"
)

func newTestGenerator(t *testing.T, cfg Config) *ConceptGenerator {
	t.Helper()
	cat, err := concept.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	if cfg.Rand == nil {
		cfg.Rand = strategy.NewRand(42)
	}
	return NewConceptGenerator(concept.NewMemoryProvider(cat), strategy.NewSet(cfg.Rand), cfg)
}

func TestConceptGenerator_MultipleChoiceA1(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g := newTestGenerator(t, Config{Now: func() time.Time { return created }})
	ctx := context.Background()

	e, err := g.Generate(ctx, Request{Type: domain.TypeMultipleChoice, Level: domain.LevelA1, Difficulty: 0.2})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if e.Level != domain.LevelA1 {
		t.Errorf("Level = %s; want A1", e.Level)
	}
	if e.ID == "" || !e.CreatedAt.Equal(created) {
		t.Errorf("ID = %q CreatedAt = %v", e.ID, e.CreatedAt)
	}
	mc := e.Content.MultipleChoice
	if mc == nil || len(mc.Options) != strategy.DefaultOptionCount {
		t.Fatalf("options = %+v; want %d", mc, strategy.DefaultOptionCount)
	}

	var correct, wrong string
	for _, o := range mc.Options {
		if o.IsCorrect {
			correct = o.ID
		} else {
			wrong = o.ID
		}
	}

	res, err := g.Evaluate(ctx, e, domain.Response{OptionID: correct})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || res.Score != 1 || res.ExerciseID != e.ID {
		t.Errorf("correct answer: %+v", res)
	}

	res, err = g.Evaluate(ctx, e, domain.Response{OptionID: wrong})
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct || res.Score != 0 {
		t.Errorf("wrong answer: correct=%v score=%v", res.Correct, res.Score)
	}
}

func TestConceptGenerator_AllTypes(t *testing.T) {
	g := newTestGenerator(t, Config{})

	for _, typ := range domain.AllExerciseTypes() {
		for _, level := range domain.AllLevels() {
			e, err := g.Generate(context.Background(), Request{Type: typ, Level: level, Difficulty: 0.5})
			if err != nil {
				t.Errorf("Generate(%s, %s) error = %v", typ, level, err)
				continue
			}
			if e.Content.Kind() != typ {
				t.Errorf("Generate(%s) content kind = %s", typ, e.Content.Kind())
			}
			if len(e.ConceptIDs) == 0 {
				t.Errorf("Generate(%s) recorded no concepts", typ)
			}
		}
	}
}

func TestConceptGenerator_LevelFromDifficulty(t *testing.T) {
	g := newTestGenerator(t, Config{})

	e, err := g.Generate(context.Background(), Request{Type: domain.TypeTextEntry, Difficulty: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if e.Level != domain.LevelC2 {
		t.Errorf("Level = %s; want C2", e.Level)
	}
}

func TestConceptGenerator_ExplicitConcepts(t *testing.T) {
	g := newTestGenerator(t, Config{})

	e, err := g.Generate(context.Background(), Request{
		Type:       domain.TypeSigningPractice,
		Level:      domain.LevelA1,
		ConceptIDs: []string{"merci"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(e.ConceptIDs, []string{"merci"}) {
		t.Errorf("ConceptIDs = %v; want [merci]", e.ConceptIDs)
	}
	if e.Content.SigningPractice.ConceptID != "merci" {
		t.Errorf("ConceptID = %s; want merci", e.Content.SigningPractice.ConceptID)
	}
}

func TestConceptGenerator_FocusAreas(t *testing.T) {
	g := newTestGenerator(t, Config{})

	for range 10 {
		e, err := g.Generate(context.Background(), Request{
			Type:       domain.TypeTextEntry,
			Level:      domain.LevelA1,
			FocusAreas: []string{"couleurs"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if id := e.ConceptIDs[0]; id != "rouge" && id != "bleu" {
			t.Errorf("target = %s; want a colour", id)
		}
	}
}

func TestConceptGenerator_NoConcept(t *testing.T) {
	g := newTestGenerator(t, Config{})

	_, err := g.Generate(context.Background(), Request{
		Type:       domain.TypeMultipleChoice,
		Level:      domain.LevelA1,
		ConceptIDs: []string{"does-not-exist"},
	})
	var ge *domain.GenerationError
	if !errors.As(err, &ge) || !errors.Is(err, domain.ErrConceptNotFound) {
		t.Errorf("error = %v; want GenerationError wrapping ErrConceptNotFound", err)
	}
}

func TestConceptGenerator_UnsupportedType(t *testing.T) {
	g := newTestGenerator(t, Config{Types: []domain.ExerciseType{domain.TypeMultipleChoice}})

	if got := g.SupportedTypes(); !slices.Equal(got, []domain.ExerciseType{domain.TypeMultipleChoice}) {
		t.Errorf("SupportedTypes() = %v", got)
	}
	_, err := g.Generate(context.Background(), Request{Type: domain.TypeDragDrop, Level: domain.LevelA1})
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("error = %v; want ErrUnsupportedType", err)
	}
}

func TestConceptGenerator_Lifecycle(t *testing.T) {
	ctx := context.Background()

	var g Generator = newTestGenerator(t, Config{})
	lc, ok := g.(Lifecycle)
	if !ok {
		t.Fatal("ConceptGenerator should implement Lifecycle")
	}
	if err := lc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !g.IsHealthy(ctx) {
		t.Error("IsHealthy() = false after Initialize")
	}
	if err := lc.Dispose(ctx); err != nil {
		t.Fatal(err)
	}
	if g.IsHealthy(ctx) {
		t.Error("IsHealthy() = true after Dispose")
	}
}

func TestConceptGenerator_UnavailableProvider(t *testing.T) {
	ctx := context.Background()
	g := NewConceptGenerator(concept.NewMemoryProvider(nil), strategy.NewSet(strategy.NewRand(1)), Config{})

	if g.IsHealthy(ctx) {
		t.Error("IsHealthy() = true with an empty provider")
	}
	if err := g.Initialize(ctx); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Errorf("Initialize() error = %v; want ErrProviderUnavailable", err)
	}
	_, err := g.Generate(ctx, Request{Type: domain.TypeMultipleChoice, Level: domain.LevelA1})
	if !domain.IsRetryable(err) {
		t.Errorf("Generate() error = %v; want retryable provider error", err)
	}
}

func TestConceptGenerator_EvaluateMismatchedContent(t *testing.T) {
	g := newTestGenerator(t, Config{})
	e := &domain.Exercise{
		ID:      "x",
		Type:    domain.TypeDragDrop,
		Content: domain.Content{TextEntry: &domain.TextEntryContent{Prompt: "?"}},
	}
	if _, err := g.Evaluate(context.Background(), e, domain.Response{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Evaluate() error = %v; want ErrInvalidInput", err)
	}
}
