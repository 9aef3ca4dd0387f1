package domain

import "time"

// PassingScore is the score at or above which a response counts as correct
// unless a strategy defines its own rule.
const PassingScore = 0.7

// EvaluationResult is the outcome of scoring one submitted response
type EvaluationResult struct {
	ExerciseID   string             `json:"exercise_id"`
	ExerciseType ExerciseType       `json:"exercise_type"`
	Correct      bool               `json:"correct"`
	Score        float64            `json:"score"`
	SkillScores  map[string]float64 `json:"skill_scores,omitempty"`
	Explanation  string             `json:"explanation,omitempty"`
	Feedback     *Feedback          `json:"feedback,omitempty"`
	NeedsHelp    bool               `json:"needs_help,omitempty"`
	Suggestions  []string           `json:"suggestions,omitempty"`
	EvaluatedAt  time.Time          `json:"evaluated_at"`
}

// Feedback is structured advice attached to an evaluation
type Feedback struct {
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
	NextSteps    []string `json:"next_steps,omitempty"`
}

// IsEmpty reports whether the feedback carries no advice
func (f *Feedback) IsEmpty() bool {
	return f == nil || len(f.Strengths)+len(f.Improvements)+len(f.NextSteps) == 0
}
