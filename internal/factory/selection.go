package factory

import (
	"slices"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// Strategy names a generator selection policy
type Strategy string

const (
	FirstAvailable   Strategy = "first-available"
	HighestPriority  Strategy = "highest-priority"
	BestQuality      Strategy = "best-quality"
	ContextAware     Strategy = "context-aware"
	LoadBalanced     Strategy = "load-balanced"
	PerformanceBased Strategy = "performance-based"
	RoundRobin       Strategy = "round-robin"
	WeightedRandom   Strategy = "weighted-random"
)

// AllStrategies lists every selection policy
func AllStrategies() []Strategy {
	return []Strategy{
		FirstAvailable, HighestPriority, BestQuality, ContextAware,
		LoadBalanced, PerformanceBased, RoundRobin, WeightedRandom,
	}
}

func (s Strategy) IsValid() bool {
	return slices.Contains(AllStrategies(), s)
}

// Rand is the randomness used by WeightedRandom
type Rand interface {
	Float64() float64
}

// selector picks one of cands, which is never empty and is in
// registration order.
type selector func(f *Factory, t domain.ExerciseType, cands []*registration, sc SelectionContext) *registration

var selectors = map[Strategy]selector{
	FirstAvailable:   selectFirst,
	HighestPriority:  selectHighestPriority,
	BestQuality:      selectBestQuality,
	ContextAware:     selectContextAware,
	LoadBalanced:     selectLeastLoaded,
	PerformanceBased: selectBestPerformance,
	RoundRobin:       selectRoundRobin,
	WeightedRandom:   selectWeightedRandom,
}

func selectFirst(_ *Factory, _ domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	return cands[0]
}

// maxBy returns the first candidate with the highest score
func maxBy(cands []*registration, score func(*registration) float64) *registration {
	best := cands[0]
	bestScore := score(best)
	for _, r := range cands[1:] {
		if s := score(r); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best
}

func selectHighestPriority(_ *Factory, _ domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	return maxBy(cands, func(r *registration) float64 { return float64(r.config.Priority) })
}

func selectBestQuality(_ *Factory, _ domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	return maxBy(cands, func(r *registration) float64 {
		return float64(r.config.Quality) + r.stats.successRate()
	})
}

// selectContextAware honours a preferred generator, then keeps candidates
// that offer every required capability, then weighs quality, priority and
// observed success.
func selectContextAware(_ *Factory, _ domain.ExerciseType, cands []*registration, sc SelectionContext) *registration {
	if sc.PreferredGenerator != "" {
		for _, r := range cands {
			if r.name == sc.PreferredGenerator {
				return r
			}
		}
	}

	pool := cands
	if len(sc.RequiredCapabilities) > 0 {
		capable := slices.DeleteFunc(slices.Clone(cands), func(r *registration) bool {
			caps := r.gen.Metadata().Capabilities
			for _, c := range sc.RequiredCapabilities {
				if !slices.Contains(caps, c) {
					return true
				}
			}
			return false
		})
		if len(capable) > 0 {
			pool = capable
		}
	}

	return maxBy(pool, func(r *registration) float64 {
		return 0.4*float64(r.config.Quality) + 0.3*float64(r.config.Priority) + 3*r.stats.successRate()
	})
}

// selectLeastLoaded picks the lowest load relative to load weight
func selectLeastLoaded(_ *Factory, _ domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	return maxBy(cands, func(r *registration) float64 {
		return -float64(r.stats.load) / float64(r.config.LoadWeight)
	})
}

// selectBestPerformance prefers success rate, then the faster average
func selectBestPerformance(_ *Factory, _ domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	best := cands[0]
	for _, r := range cands[1:] {
		rs, bs := r.stats.successRate(), best.stats.successRate()
		if rs > bs || (rs == bs && r.stats.avgResponse() < best.stats.avgResponse()) {
			best = r
		}
	}
	return best
}

func selectRoundRobin(f *Factory, t domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	i := f.rr[t] % len(cands)
	f.rr[t]++
	return cands[i]
}

// selectWeightedRandom draws with probability proportional to priority
func selectWeightedRandom(f *Factory, _ domain.ExerciseType, cands []*registration, _ SelectionContext) *registration {
	var total float64
	for _, r := range cands {
		total += float64(r.config.Priority)
	}
	x := f.rand.Float64() * total
	for _, r := range cands {
		x -= float64(r.config.Priority)
		if x < 0 {
			return r
		}
	}
	return cands[len(cands)-1]
}
