package concept

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// Catalog is a complete set of concepts with their teaching details
type Catalog struct {
	Concepts []domain.Concept
	Details  map[string]domain.ConceptDetails
}

// Len returns the number of concepts in the catalog
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Concepts)
}

// IntN is the randomness MemoryProvider needs to pick examples
type IntN interface {
	IntN(n int) int
}

// MemoryProvider serves concepts from an in-memory catalog.
// A provider constructed without a catalog reports ErrProviderUnavailable
// until Replace is called.
type MemoryProvider struct {
	mu       sync.RWMutex
	concepts []domain.Concept
	byID     map[string]int
	details  map[string]domain.ConceptDetails
	ready    bool

	randMu sync.Mutex
	rand   IntN
}

// NewMemoryProvider creates a provider seeded with catalog, which may be nil
func NewMemoryProvider(catalog *Catalog) *MemoryProvider {
	p := &MemoryProvider{
		rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	if catalog != nil {
		p.Replace(catalog)
	}
	return p
}

// SetRand replaces the randomness source used by GetRandomExample
func (p *MemoryProvider) SetRand(r IntN) {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	p.rand = r
}

// Replace swaps the whole catalog atomically
func (p *MemoryProvider) Replace(catalog *Catalog) {
	concepts := slices.Clone(catalog.Concepts)
	byID := make(map[string]int, len(concepts))
	for i, c := range concepts {
		byID[c.ID] = i
	}
	details := make(map[string]domain.ConceptDetails, len(catalog.Details))
	for id, d := range catalog.Details {
		details[id] = d
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.concepts = concepts
	p.byID = byID
	p.details = details
	p.ready = true
}

// Len returns the number of concepts served
func (p *MemoryProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.concepts)
}

// GetByID returns the concept or nil when unknown
func (p *MemoryProvider) GetByID(_ context.Context, id string) (*domain.Concept, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, unavailable("get")
	}
	i, ok := p.byID[id]
	if !ok {
		return nil, nil
	}
	c := p.concepts[i]
	return &c, nil
}

// GetByIDs returns known concepts in request order, dropping misses
func (p *MemoryProvider) GetByIDs(_ context.Context, ids []string) ([]domain.Concept, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, unavailable("get many")
	}
	out := make([]domain.Concept, 0, len(ids))
	for _, id := range ids {
		if i, ok := p.byID[id]; ok {
			out = append(out, p.concepts[i])
		}
	}
	return out, nil
}

// Search filters the catalog
func (p *MemoryProvider) Search(_ context.Context, criteria domain.SearchCriteria) ([]domain.Concept, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, unavailable("search")
	}
	return Filter(p.concepts, criteria), nil
}

// GetRandomExample picks one example sentence of the concept
func (p *MemoryProvider) GetRandomExample(_ context.Context, id string) (string, error) {
	p.mu.RLock()
	if !p.ready {
		p.mu.RUnlock()
		return "", unavailable("random example")
	}
	examples := p.details[id].Examples
	p.mu.RUnlock()

	if len(examples) == 0 {
		return "", nil
	}

	p.randMu.Lock()
	i := p.rand.IntN(len(examples))
	p.randMu.Unlock()
	return examples[i], nil
}

// GetDetails returns the concept with its teaching material, or nil
func (p *MemoryProvider) GetDetails(_ context.Context, id string) (*domain.ConceptDetails, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.ready {
		return nil, unavailable("details")
	}
	i, ok := p.byID[id]
	if !ok {
		return nil, nil
	}
	d, ok := p.details[id]
	if !ok {
		d = domain.ConceptDetails{}
	}
	d.Concept = p.concepts[i]
	return &d, nil
}
