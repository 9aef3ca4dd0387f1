package evolution

import (
	"math"
	"time"
)

// Event records one metric change caused by a detector
type Event struct {
	Type       EventType `json:"type"`
	Metric     Metric    `json:"metric"`
	Previous   float64   `json:"previous"`
	Value      float64   `json:"value"`
	Trigger    string    `json:"trigger"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Engine runs a table of rules
type Engine struct {
	rules []Rule
	now   func() time.Time
}

// NewEngine creates an engine over rules, or DefaultRules when none given
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{rules: rules, now: time.Now}
}

// Rules returns the rule table
func (e *Engine) Rules() []Rule { return e.rules }

// Apply runs every detector against the metrics as they were on entry,
// then applies each positive impact in table order. Impacts are capped per
// rule and values are clamped to [0,1]; metrics never decrease. The input
// is not modified.
func (e *Engine) Apply(m Metrics, f Factors) (Metrics, []Event) {
	out := m.Clone()
	now := e.now()

	var events []Event
	for _, r := range e.rules {
		impact := r.Detect(f, m)
		v := math.Min(impact.Value, r.Cap)
		if !(v > 0) {
			continue
		}
		before, after := out.add(r.Metric, v)
		events = append(events, Event{
			Type:       r.Type,
			Metric:     r.Metric,
			Previous:   before,
			Value:      after,
			Trigger:    impact.Trigger,
			Confidence: impact.Confidence,
			At:         now,
		})
	}
	return out, events
}
