package evolution

import (
	"fmt"
	"math"
)

// EventType names a detector
type EventType string

const (
	Breakthrough         EventType = "breakthrough"
	PlateauBreakthrough  EventType = "plateau_breakthrough"
	SkillMastery         EventType = "skill_mastery"
	ConfidenceBoost      EventType = "confidence_boost"
	AdaptabilityIncrease EventType = "adaptability_increase"
	EmotionalGrowth      EventType = "emotional_growth"
	CulturalAwakening    EventType = "cultural_awakening"
	MethodPreference     EventType = "method_preference"
	ResilienceBuild      EventType = "resilience_build"
	CuriositySpark       EventType = "curiosity_spark"
)

// Detector trigger conditions
const (
	BreakthroughJump         = 0.3
	PlateauMinLength         = 3
	PlateauJump              = 0.2
	MasteryScore             = 0.85
	MasteryMinAttempts       = 3
	ConfidenceStreak         = 3
	AdaptabilityMinMethods   = 3
	AdaptabilityMinSuccess   = 0.6
	EmotionalGrowthDelta     = 0.2
	CulturalMinScore         = 0.7
	MethodPreferenceGap      = 0.2
	MethodPreferenceMinTries = 2
	ResilienceMinFailures    = 2
	ResilienceMinScore       = 0.7
	CuriosityMinScore        = 0.5
)

// Factors summarise the learner's recent history for the detectors
type Factors struct {
	// Score of the interaction being folded in
	Score float64
	// Mean score of the recent window and of the window before it
	SuccessRate         float64
	PreviousSuccessRate float64
	// PlateauLength counts the prior interactions whose scores stayed
	// within a narrow band; PlateauMean is their mean
	PlateauLength int
	PlateauMean   float64
	// ConceptMastery is the mean score on the current concept
	ConceptMastery  float64
	ConceptAttempts int
	// ConsecutiveSuccesses includes the current interaction
	ConsecutiveSuccesses int
	// FailuresBefore counts the failures right before the current one
	FailuresBefore int
	MethodsTried   int
	// BestMethodRate and MethodAverage compare per-method success
	BestMethodRate float64
	MethodAverage  float64
	BestMethod     string
	MethodTries    int
	MoodDelta      float64
	Cultural       bool
	NewCategory    bool
}

// Impact is a detector's output. A zero Value means it did not fire.
type Impact struct {
	Value      float64
	Trigger    string
	Confidence float64
}

// DetectFunc is a pure detector
type DetectFunc func(f Factors, m Metrics) Impact

// Rule binds a detector to the metric it grows and its per-event cap
type Rule struct {
	Type   EventType
	Metric Metric
	Cap    float64
	Detect DetectFunc
}

// DefaultRules is the built-in detector table
var DefaultRules = []Rule{
	{Breakthrough, LearningSpeed, 0.15, detectBreakthrough},
	{PlateauBreakthrough, LearningSpeed, 0.10, detectPlateauBreakthrough},
	{SkillMastery, CommunicationEfficiency, 0.12, detectSkillMastery},
	{ConfidenceBoost, GlobalConfidence, 0.10, detectConfidenceBoost},
	{AdaptabilityIncrease, Adaptability, 0.10, detectAdaptability},
	{EmotionalGrowth, EmotionalResilience, 0.08, detectEmotionalGrowth},
	{CulturalAwakening, CulturalProgress, 0.12, detectCulturalAwakening},
	{MethodPreference, Adaptability, 0.06, detectMethodPreference},
	{ResilienceBuild, EmotionalResilience, 0.10, detectResilience},
	{CuriositySpark, IntellectualCuriosity, 0.08, detectCuriosity},
}

func confidence(v float64) float64 {
	return math.Round(math.Min(1, math.Max(0, v))*100) / 100
}

func detectBreakthrough(f Factors, _ Metrics) Impact {
	jump := f.SuccessRate - f.PreviousSuccessRate
	if jump < BreakthroughJump {
		return Impact{}
	}
	return Impact{
		Value:      jump * 0.5,
		Trigger:    fmt.Sprintf("success rate rose from %.0f%% to %.0f%%", f.PreviousSuccessRate*100, f.SuccessRate*100),
		Confidence: confidence(jump + 0.4),
	}
}

func detectPlateauBreakthrough(f Factors, _ Metrics) Impact {
	if f.PlateauLength < PlateauMinLength || f.Score-f.PlateauMean < PlateauJump {
		return Impact{}
	}
	return Impact{
		Value:      (f.Score - f.PlateauMean) * 0.4,
		Trigger:    fmt.Sprintf("broke a %d-interaction plateau", f.PlateauLength),
		Confidence: confidence(0.5 + 0.05*float64(f.PlateauLength)),
	}
}

func detectSkillMastery(f Factors, _ Metrics) Impact {
	if f.ConceptAttempts < MasteryMinAttempts || f.ConceptMastery < MasteryScore {
		return Impact{}
	}
	return Impact{
		Value:      f.ConceptMastery * 0.1,
		Trigger:    fmt.Sprintf("mastered a concept after %d attempts", f.ConceptAttempts),
		Confidence: confidence(f.ConceptMastery),
	}
}

// detectConfidenceBoost grows less as confidence is already high
func detectConfidenceBoost(f Factors, m Metrics) Impact {
	if f.ConsecutiveSuccesses < ConfidenceStreak {
		return Impact{}
	}
	return Impact{
		Value:      0.03 * float64(f.ConsecutiveSuccesses) * (1 - m[GlobalConfidence]),
		Trigger:    fmt.Sprintf("%d successes in a row", f.ConsecutiveSuccesses),
		Confidence: confidence(0.6 + 0.05*float64(f.ConsecutiveSuccesses)),
	}
}

func detectAdaptability(f Factors, _ Metrics) Impact {
	if f.MethodsTried < AdaptabilityMinMethods || f.SuccessRate < AdaptabilityMinSuccess {
		return Impact{}
	}
	return Impact{
		Value:      0.02 * float64(f.MethodsTried),
		Trigger:    fmt.Sprintf("succeeds across %d exercise types", f.MethodsTried),
		Confidence: confidence(f.SuccessRate),
	}
}

func detectEmotionalGrowth(f Factors, _ Metrics) Impact {
	if f.MoodDelta < EmotionalGrowthDelta {
		return Impact{}
	}
	return Impact{
		Value:      f.MoodDelta * 0.3,
		Trigger:    "mood improved noticeably",
		Confidence: confidence(0.5 + f.MoodDelta),
	}
}

func detectCulturalAwakening(f Factors, m Metrics) Impact {
	if !f.Cultural || f.Score < CulturalMinScore {
		return Impact{}
	}
	return Impact{
		Value:      0.1 * (1 - m[CulturalProgress]/2),
		Trigger:    "understood a Deaf culture concept",
		Confidence: confidence(f.Score),
	}
}

func detectMethodPreference(f Factors, _ Metrics) Impact {
	if f.MethodTries < MethodPreferenceMinTries || f.BestMethodRate-f.MethodAverage < MethodPreferenceGap {
		return Impact{}
	}
	return Impact{
		Value:      (f.BestMethodRate - f.MethodAverage) * 0.2,
		Trigger:    fmt.Sprintf("learns best with %s", f.BestMethod),
		Confidence: confidence(0.4 + f.BestMethodRate/2),
	}
}

func detectResilience(f Factors, _ Metrics) Impact {
	if f.FailuresBefore < ResilienceMinFailures || f.Score < ResilienceMinScore {
		return Impact{}
	}
	return Impact{
		Value:      0.03 * float64(f.FailuresBefore),
		Trigger:    fmt.Sprintf("succeeded after %d failures", f.FailuresBefore),
		Confidence: confidence(0.5 + 0.1*float64(f.FailuresBefore)),
	}
}

func detectCuriosity(f Factors, _ Metrics) Impact {
	if !f.NewCategory || f.Score < CuriosityMinScore {
		return Impact{}
	}
	return Impact{
		Value:      0.05,
		Trigger:    "explored a new theme",
		Confidence: 0.6,
	}
}
