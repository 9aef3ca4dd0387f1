package evolution

import "testing"

func TestEngine_RepeatedBreakthroughsStayInRange(t *testing.T) {
	e := NewEngine()
	m := NewMetrics()

	adversarial := Factors{
		Score:                1,
		SuccessRate:          1,
		PreviousSuccessRate:  0,
		PlateauLength:        50,
		PlateauMean:          0,
		ConceptMastery:       1,
		ConceptAttempts:      100,
		ConsecutiveSuccesses: 100,
		FailuresBefore:       100,
		MethodsTried:         6,
		BestMethodRate:       1,
		MethodAverage:        0,
		MethodTries:          100,
		MoodDelta:            1,
		Cultural:             true,
		NewCategory:          true,
	}

	for i := range 500 {
		var events []Event
		m, events = e.Apply(m, adversarial)
		if !m.Valid() {
			t.Fatalf("iteration %d: metrics left [0,1]: %v", i, m)
		}
		for _, ev := range events {
			if ev.Value < ev.Previous {
				t.Fatalf("iteration %d: %s decreased %s from %v to %v", i, ev.Type, ev.Metric, ev.Previous, ev.Value)
			}
			if ev.Value > 1 {
				t.Fatalf("iteration %d: %s above 1", i, ev.Metric)
			}
		}
	}

	if m[LearningSpeed] != 1 {
		t.Errorf("LearningSpeed = %v; want saturated at 1", m[LearningSpeed])
	}
}

func TestEngine_AllDetectorsFire(t *testing.T) {
	e := NewEngine()
	f := Factors{
		Score:                0.95,
		SuccessRate:          0.9,
		PreviousSuccessRate:  0.4,
		PlateauLength:        4,
		PlateauMean:          0.5,
		ConceptMastery:       0.9,
		ConceptAttempts:      4,
		ConsecutiveSuccesses: 4,
		FailuresBefore:       2,
		MethodsTried:         3,
		BestMethodRate:       0.9,
		MethodAverage:        0.6,
		BestMethod:           "SigningPractice",
		MethodTries:          3,
		MoodDelta:            0.3,
		Cultural:             true,
		NewCategory:          true,
	}

	_, events := e.Apply(NewMetrics(), f)

	fired := map[EventType]bool{}
	for _, ev := range events {
		fired[ev.Type] = true
		if ev.Trigger == "" {
			t.Errorf("%s has no trigger description", ev.Type)
		}
		if ev.Confidence <= 0 || ev.Confidence > 1 {
			t.Errorf("%s confidence = %v", ev.Type, ev.Confidence)
		}
	}
	for _, r := range DefaultRules {
		if !fired[r.Type] {
			t.Errorf("%s did not fire", r.Type)
		}
	}
}

func TestEngine_NothingFiresOnQuietInteraction(t *testing.T) {
	m := NewMetrics()
	out, events := NewEngine().Apply(m, Factors{Score: 0.5, SuccessRate: 0.5, PreviousSuccessRate: 0.5})

	if len(events) != 0 {
		t.Errorf("events = %+v; want none", events)
	}
	for _, k := range AllMetrics() {
		if out[k] != m[k] {
			t.Errorf("%s changed from %v to %v", k, m[k], out[k])
		}
	}
}

func TestEngine_CumulativeOnSameMetric(t *testing.T) {
	e := NewEngine()
	f := Factors{
		Score:               0.9,
		SuccessRate:         0.9,
		PreviousSuccessRate: 0.5,
		PlateauLength:       3,
		PlateauMean:         0.5,
	}

	m := NewMetrics()
	out, events := e.Apply(m, f)

	if len(events) != 2 {
		t.Fatalf("events = %+v; want breakthrough and plateau_breakthrough", events)
	}
	if events[1].Previous != events[0].Value {
		t.Errorf("second event starts at %v; want %v from the first", events[1].Previous, events[0].Value)
	}
	if out[LearningSpeed] != events[1].Value {
		t.Errorf("LearningSpeed = %v; want %v", out[LearningSpeed], events[1].Value)
	}
	if m[LearningSpeed] != InitialValue {
		t.Error("input metrics were modified")
	}
}

func TestRules_CapImpact(t *testing.T) {
	huge := Rule{
		Type:   Breakthrough,
		Metric: LearningSpeed,
		Cap:    0.05,
		Detect: func(Factors, Metrics) Impact { return Impact{Value: 10, Trigger: "x", Confidence: 1} },
	}
	negative := Rule{
		Type:   CuriositySpark,
		Metric: IntellectualCuriosity,
		Cap:    0.05,
		Detect: func(Factors, Metrics) Impact { return Impact{Value: -1} },
	}

	out, events := NewEngine(huge, negative).Apply(NewMetrics(), Factors{})
	if len(events) != 1 {
		t.Fatalf("events = %+v; want only the capped one", events)
	}
	if got := out[LearningSpeed] - InitialValue; got < 0.0499 || got > 0.0501 {
		t.Errorf("growth = %v; want capped at 0.05", got)
	}
	if out[IntellectualCuriosity] != InitialValue {
		t.Error("negative impact changed a metric")
	}
}

func TestDetectors_Thresholds(t *testing.T) {
	tests := []struct {
		name   string
		detect DetectFunc
		below  Factors
		at     Factors
	}{
		{"breakthrough", detectBreakthrough,
			Factors{SuccessRate: 0.65, PreviousSuccessRate: 0.4},
			Factors{SuccessRate: 0.75, PreviousSuccessRate: 0.4}},
		{"skill mastery", detectSkillMastery,
			Factors{ConceptMastery: 0.9, ConceptAttempts: 2},
			Factors{ConceptMastery: 0.9, ConceptAttempts: 3}},
		{"confidence", detectConfidenceBoost,
			Factors{ConsecutiveSuccesses: 2},
			Factors{ConsecutiveSuccesses: 3}},
		{"resilience", detectResilience,
			Factors{FailuresBefore: 1, Score: 1},
			Factors{FailuresBefore: 2, Score: 1}},
		{"cultural", detectCulturalAwakening,
			Factors{Cultural: true, Score: 0.6},
			Factors{Cultural: true, Score: 0.8}},
		{"curiosity", detectCuriosity,
			Factors{NewCategory: false, Score: 1},
			Factors{NewCategory: true, Score: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.detect(tt.below, NewMetrics()); got.Value != 0 {
				t.Errorf("below threshold impact = %v; want 0", got.Value)
			}
			if got := tt.detect(tt.at, NewMetrics()); got.Value <= 0 {
				t.Errorf("at threshold impact = %v; want > 0", got.Value)
			}
		})
	}
}
