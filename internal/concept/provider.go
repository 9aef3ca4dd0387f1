// Package concept supplies the LSF vocabulary exercises are built from.
package concept

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// Provider is the read-only concept lookup contract.
//
// Misses are not errors: GetByID and GetDetails return nil, GetByIDs drops
// unknown ids and Search returns an empty slice. A *domain.ProviderError is
// returned only when the source itself is unavailable.
type Provider interface {
	GetByID(ctx context.Context, id string) (*domain.Concept, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Concept, error)
	Search(ctx context.Context, criteria domain.SearchCriteria) ([]domain.Concept, error)
	// GetRandomExample returns an example sentence for the concept, or ""
	// when the concept has none.
	GetRandomExample(ctx context.Context, id string) (string, error)
	GetDetails(ctx context.Context, id string) (*domain.ConceptDetails, error)
}

// Filter applies criteria to concepts in the fixed order: level, categories,
// difficulty bounds, exclusions, text, media, frequency sort, limit.
// The input slice is not modified.
func Filter(concepts []domain.Concept, c domain.SearchCriteria) []domain.Concept {
	out := make([]domain.Concept, 0, len(concepts))
	text := strings.ToLower(strings.TrimSpace(c.SearchText))

	for _, concept := range concepts {
		if c.Level != "" && concept.Level != c.Level {
			continue
		}
		if len(c.Categories) > 0 && !concept.HasCategory(c.Categories...) {
			continue
		}
		if c.MinDifficulty != nil && concept.Difficulty < *c.MinDifficulty {
			continue
		}
		if c.MaxDifficulty != nil && concept.Difficulty > *c.MaxDifficulty {
			continue
		}
		if slices.Contains(c.ExcludeIDs, concept.ID) {
			continue
		}
		if text != "" && !matchesText(concept, text) {
			continue
		}
		if c.RequireMedia && !concept.HasMedia() {
			continue
		}
		out = append(out, concept)
	}

	if c.SortByFrequency {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Frequency > out[j].Frequency
		})
	}

	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out
}

func matchesText(c domain.Concept, lowered string) bool {
	if strings.Contains(strings.ToLower(c.Text), lowered) {
		return true
	}
	for _, cat := range c.Categories {
		if strings.Contains(strings.ToLower(cat), lowered) {
			return true
		}
	}
	return false
}

func unavailable(op string) error {
	return &domain.ProviderError{Op: op, Err: domain.ErrProviderUnavailable}
}
