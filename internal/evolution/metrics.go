// Package evolution detects growth events in a simulated learner and folds
// them into its evolution metrics.
package evolution

import "github.com/felixgeelhaar/coda/internal/domain"

// Metric names one dimension of a learner's evolution
type Metric string

const (
	LearningSpeed           Metric = "learning_speed"
	Adaptability            Metric = "adaptability"
	GlobalConfidence        Metric = "global_confidence"
	EmotionalResilience     Metric = "emotional_resilience"
	CulturalProgress        Metric = "cultural_progress"
	IntellectualCuriosity   Metric = "intellectual_curiosity"
	CommunicationEfficiency Metric = "communication_efficiency"
)

// InitialValue is where every metric starts for a new learner
const InitialValue = 0.3

// AllMetrics lists the metrics in a stable order
func AllMetrics() []Metric {
	return []Metric{
		LearningSpeed,
		Adaptability,
		GlobalConfidence,
		EmotionalResilience,
		CulturalProgress,
		IntellectualCuriosity,
		CommunicationEfficiency,
	}
}

// Metrics holds one value in [0,1] per metric
type Metrics map[Metric]float64

// NewMetrics returns every metric at InitialValue
func NewMetrics() Metrics {
	m := make(Metrics, len(AllMetrics()))
	for _, k := range AllMetrics() {
		m[k] = InitialValue
	}
	return m
}

func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Average is the mean over all known metrics
func (m Metrics) Average() float64 {
	var sum float64
	for _, k := range AllMetrics() {
		sum += m[k]
	}
	return sum / float64(len(AllMetrics()))
}

// Valid reports whether every metric is within [0,1]
func (m Metrics) Valid() bool {
	for _, v := range m {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func (m Metrics) add(k Metric, delta float64) (before, after float64) {
	before = m[k]
	after = domain.Clamp01(before + delta)
	m[k] = after
	return before, after
}
