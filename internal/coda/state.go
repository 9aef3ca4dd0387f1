// Package coda simulates a virtual CODA learner: a student whose mood,
// level and evolution metrics change as it is taught.
package coda

import (
	"slices"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/evolution"
)

// Mood is the learner's current emotional state
type Mood string

const (
	MoodExcited    Mood = "excited"
	MoodConfident  Mood = "confident"
	MoodCurious    Mood = "curious"
	MoodNeutral    Mood = "neutral"
	MoodFrustrated Mood = "frustrated"
)

// History bounds and progression rules
const (
	MaxExperiences      = 100
	MaxEmotionalHistory = 50
	// InitialValence is the mood score of a new learner
	InitialValence = 0.5
	// LevelUpWindow experiences at the current level averaging at least
	// LevelUpScore move the learner to the next level
	LevelUpWindow = 8
	LevelUpScore  = 0.8
	// CulturalCategory marks concepts about Deaf culture
	CulturalCategory = "culture sourde"
)

// Experience is one taught concept and how it went
type Experience struct {
	ConceptID  string              `json:"concept_id"`
	Categories []string            `json:"categories,omitempty"`
	Method     domain.ExerciseType `json:"method"`
	Level      domain.CECRLLevel   `json:"level"`
	Score      float64             `json:"score"`
	Challenges []string            `json:"challenges,omitempty"`
	At         time.Time           `json:"at"`
}

// Success reports whether the score reached the passing mark
func (e Experience) Success() bool { return e.Score >= domain.PassingScore }

// EmotionalSnapshot records a mood change
type EmotionalSnapshot struct {
	Mood    Mood      `json:"mood"`
	Valence float64   `json:"valence"`
	Trigger string    `json:"trigger"`
	At      time.Time `json:"at"`
}

// State is the persisted learner
type State struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	MentorID           string              `json:"mentor_id,omitempty"`
	Level              domain.CECRLLevel   `json:"level"`
	Mood               Mood                `json:"mood"`
	Valence            float64             `json:"valence"`
	Metrics            evolution.Metrics   `json:"metrics"`
	Experiences        []Experience        `json:"experiences,omitempty"`
	EmotionalHistory   []EmotionalSnapshot `json:"emotional_history,omitempty"`
	ExploredCategories []string            `json:"explored_categories,omitempty"`
	SessionsCompleted  int                 `json:"sessions_completed"`
	ActiveSessionID    string              `json:"active_session_id,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	out := *s
	out.Metrics = s.Metrics.Clone()
	out.Experiences = slices.Clone(s.Experiences)
	for i := range out.Experiences {
		out.Experiences[i].Categories = slices.Clone(out.Experiences[i].Categories)
		out.Experiences[i].Challenges = slices.Clone(out.Experiences[i].Challenges)
	}
	out.EmotionalHistory = slices.Clone(s.EmotionalHistory)
	out.ExploredCategories = slices.Clone(s.ExploredCategories)
	return &out
}

// Session is one teaching session
type Session struct {
	ID             string                       `json:"id"`
	CodaID         string                       `json:"coda_id"`
	StartedAt      time.Time                    `json:"started_at"`
	EndedAt        *time.Time                   `json:"ended_at,omitempty"`
	Interactions   int                          `json:"interactions"`
	TotalScore     float64                      `json:"total_score"`
	Events         []evolution.Event            `json:"events,omitempty"`
	MetricsAtStart evolution.Metrics            `json:"metrics_at_start"`
	Growth         map[evolution.Metric]float64 `json:"growth,omitempty"`
	LevelAtStart   domain.CECRLLevel            `json:"level_at_start"`
	LevelAtEnd     domain.CECRLLevel            `json:"level_at_end,omitempty"`
}

func (s *Session) Active() bool { return s.EndedAt == nil }

// MeanScore is the average interaction score, 0 when there were none
func (s *Session) MeanScore() float64 {
	if s.Interactions == 0 {
		return 0
	}
	return s.TotalScore / float64(s.Interactions)
}

// Interaction is a single teaching step reported to the learner
type Interaction struct {
	ConceptID  string              `json:"concept_id"`
	Categories []string            `json:"categories,omitempty"`
	Method     domain.ExerciseType `json:"method"`
	Level      domain.CECRLLevel   `json:"level,omitempty"`
	Score      float64             `json:"score"`
	Challenges []string            `json:"challenges,omitempty"`
}

func (i Interaction) Validate() error {
	if i.ConceptID == "" {
		return domain.NewValidationError("concept_id", "is required")
	}
	if !i.Method.IsValid() {
		return domain.NewValidationError("method", "unknown exercise type %q", i.Method)
	}
	if i.Level != "" && !i.Level.IsValid() {
		return domain.NewValidationError("level", "unknown level %q", i.Level)
	}
	if !(i.Score >= 0 && i.Score <= 1) {
		return domain.NewValidationError("score", "%v outside [0,1]", i.Score)
	}
	return nil
}

// InteractionResult is the learner after an interaction
type InteractionResult struct {
	State   *State            `json:"state"`
	Events  []evolution.Event `json:"events"`
	LevelUp bool              `json:"level_up"`
}
