package concept

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func testCatalog() *Catalog {
	return &Catalog{
		Concepts: []domain.Concept{
			{ID: "bonjour", Text: "bonjour", Level: domain.LevelA1, Categories: []string{"salutations"}, Difficulty: 0.05, Frequency: 90, VideoURL: "v1"},
			{ID: "merci", Text: "merci", Level: domain.LevelA1, Categories: []string{"politesse"}, Difficulty: 0.1, Frequency: 99},
			{ID: "maman", Text: "maman", Level: domain.LevelA1, Categories: []string{"famille"}, Difficulty: 0.15, Frequency: 50, ImageURL: "i1"},
			{ID: "frere", Text: "frère", Level: domain.LevelA2, Categories: []string{"famille"}, Difficulty: 0.25, Frequency: 70},
			{ID: "sourd", Text: "sourd", Level: domain.LevelB2, Categories: []string{"culture sourde"}, Difficulty: 0.55, Frequency: 80, VideoURL: "v2"},
		},
		Details: map[string]domain.ConceptDetails{
			"bonjour": {Examples: []string{"Bonjour Léa.", "Bonjour à tous."}, Synonyms: []string{"salut"}},
			"merci":   {Explanation: "main au menton"},
		},
	}
}

func ids(concepts []domain.Concept) []string {
	out := make([]string, len(concepts))
	for i, c := range concepts {
		out[i] = c.ID
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestFilter(t *testing.T) {
	concepts := testCatalog().Concepts

	tests := []struct {
		name     string
		criteria domain.SearchCriteria
		want     []string
	}{
		{"no criteria", domain.SearchCriteria{}, []string{"bonjour", "merci", "maman", "frere", "sourd"}},
		{"level", domain.SearchCriteria{Level: domain.LevelA1}, []string{"bonjour", "merci", "maman"}},
		{"categories any match", domain.SearchCriteria{Categories: []string{"famille", "politesse"}}, []string{"merci", "maman", "frere"}},
		{"difficulty bounds", domain.SearchCriteria{MinDifficulty: ptr(0.1), MaxDifficulty: ptr(0.3)}, []string{"merci", "maman", "frere"}},
		{"exclusions", domain.SearchCriteria{Level: domain.LevelA1, ExcludeIDs: []string{"merci"}}, []string{"bonjour", "maman"}},
		{"text on display text", domain.SearchCriteria{SearchText: "BON"}, []string{"bonjour"}},
		{"text on categories", domain.SearchCriteria{SearchText: "culture"}, []string{"sourd"}},
		{"media", domain.SearchCriteria{RequireMedia: true}, []string{"bonjour", "maman", "sourd"}},
		{"frequency sort", domain.SearchCriteria{Level: domain.LevelA1, SortByFrequency: true}, []string{"merci", "bonjour", "maman"}},
		{"limit after sort", domain.SearchCriteria{SortByFrequency: true, Limit: 2}, []string{"merci", "bonjour"}},
		{"nothing matches", domain.SearchCriteria{Level: domain.LevelC2}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(concepts, tt.criteria))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilter_DoesNotMutateInput(t *testing.T) {
	concepts := testCatalog().Concepts
	before := ids(concepts)
	Filter(concepts, domain.SearchCriteria{SortByFrequency: true})
	if diff := cmp.Diff(before, ids(concepts)); diff != "" {
		t.Errorf("input reordered (-before +after):\n%s", diff)
	}
}

type fixedRand struct{ n int }

func (r fixedRand) IntN(bound int) int { return r.n % bound }

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(testCatalog())

	c, err := p.GetByID(ctx, "merci")
	if err != nil || c == nil || c.Text != "merci" {
		t.Fatalf("GetByID(merci) = %v, %v", c, err)
	}

	c, err = p.GetByID(ctx, "absent")
	if err != nil || c != nil {
		t.Errorf("GetByID(absent) = %v, %v; want nil, nil", c, err)
	}

	many, err := p.GetByIDs(ctx, []string{"sourd", "absent", "bonjour"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if diff := cmp.Diff([]string{"sourd", "bonjour"}, ids(many)); diff != "" {
		t.Errorf("GetByIDs() mismatch (-want +got):\n%s", diff)
	}

	d, err := p.GetDetails(ctx, "bonjour")
	if err != nil || d == nil {
		t.Fatalf("GetDetails(bonjour) = %v, %v", d, err)
	}
	if d.Concept.ID != "bonjour" || len(d.Synonyms) != 1 {
		t.Errorf("GetDetails(bonjour) = %+v", d)
	}

	d, err = p.GetDetails(ctx, "maman")
	if err != nil || d == nil || d.Concept.ID != "maman" {
		t.Errorf("GetDetails(maman) without details record = %v, %v", d, err)
	}
}

func TestMemoryProvider_GetRandomExample(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(testCatalog())
	p.SetRand(fixedRand{n: 1})

	got, err := p.GetRandomExample(ctx, "bonjour")
	if err != nil {
		t.Fatalf("GetRandomExample() error = %v", err)
	}
	if got != "Bonjour à tous." {
		t.Errorf("GetRandomExample() = %q; want %q", got, "Bonjour à tous.")
	}

	got, err = p.GetRandomExample(ctx, "merci")
	if err != nil || got != "" {
		t.Errorf("GetRandomExample(no examples) = %q, %v; want empty", got, err)
	}
}

func TestMemoryProvider_Uninitialized(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(nil)

	_, err := p.Search(ctx, domain.SearchCriteria{})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("Search() on empty provider error = %v; want ErrProviderUnavailable", err)
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Errorf("error should be a *domain.ProviderError, got %T", err)
	}

	p.Replace(testCatalog())
	got, err := p.Search(ctx, domain.SearchCriteria{Level: domain.LevelB2})
	if err != nil || len(got) != 1 {
		t.Errorf("Search() after Replace = %v, %v", got, err)
	}
}
