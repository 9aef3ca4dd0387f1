package domain

import (
	"slices"
	"time"
)

// ExerciseType identifies one of the supported exercise kinds
type ExerciseType string

const (
	TypeMultipleChoice  ExerciseType = "MultipleChoice"
	TypeDragDrop        ExerciseType = "DragDrop"
	TypeFillBlank       ExerciseType = "FillBlank"
	TypeTextEntry       ExerciseType = "TextEntry"
	TypeVideoResponse   ExerciseType = "VideoResponse"
	TypeSigningPractice ExerciseType = "SigningPractice"
)

// AllExerciseTypes returns every supported type in a stable order
func AllExerciseTypes() []ExerciseType {
	return []ExerciseType{
		TypeMultipleChoice,
		TypeDragDrop,
		TypeFillBlank,
		TypeTextEntry,
		TypeVideoResponse,
		TypeSigningPractice,
	}
}

// IsValid reports whether t is a known exercise type
func (t ExerciseType) IsValid() bool {
	return slices.Contains(AllExerciseTypes(), t)
}

// Exercise is a generated, presentable learning task.
// Exercises are treated as immutable once returned by a generator; the
// difficulty adapter produces a new value rather than editing one in place.
type Exercise struct {
	ID         string       `json:"id"`
	Type       ExerciseType `json:"type"`
	Difficulty float64      `json:"difficulty"`
	Level      CECRLLevel   `json:"level"`
	Content    Content      `json:"content"`
	Answer     Answer       `json:"answer"`
	TimeLimit  int          `json:"time_limit"` // seconds, advisory
	Hints      []string     `json:"hints,omitempty"`
	Skills     []string     `json:"skills,omitempty"`
	ConceptIDs []string     `json:"concept_ids,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Validate reports whether the exercise carries the fields every consumer
// relies on.
func (e *Exercise) Validate() error {
	if e == nil {
		return NewValidationError("exercise", "is nil")
	}
	if e.ID == "" {
		return NewValidationError("id", "is required")
	}
	if !e.Type.IsValid() {
		return NewValidationError("type", "unsupported exercise type %q", e.Type)
	}
	if e.Content.Empty() {
		return NewValidationError("content", "is required")
	}
	if e.Content.Kind() != e.Type {
		return NewValidationError("content", "payload %q does not match type %q", e.Content.Kind(), e.Type)
	}
	return nil
}

// Clone returns a deep copy of the exercise
func (e *Exercise) Clone() *Exercise {
	if e == nil {
		return nil
	}
	c := *e
	c.Content = e.Content.Clone()
	c.Answer = e.Answer.Clone()
	c.Hints = slices.Clone(e.Hints)
	c.Skills = slices.Clone(e.Skills)
	c.ConceptIDs = slices.Clone(e.ConceptIDs)
	return &c
}

// Content holds the type-specific payload of an exercise. Exactly one field
// is set, matching the exercise type.
type Content struct {
	MultipleChoice  *MultipleChoiceContent  `json:"multiple_choice,omitempty"`
	DragDrop        *DragDropContent        `json:"drag_drop,omitempty"`
	FillBlank       *FillBlankContent       `json:"fill_blank,omitempty"`
	TextEntry       *TextEntryContent       `json:"text_entry,omitempty"`
	VideoResponse   *VideoResponseContent   `json:"video_response,omitempty"`
	SigningPractice *SigningPracticeContent `json:"signing_practice,omitempty"`
}

// Kind returns the exercise type of the populated payload
func (c Content) Kind() ExerciseType {
	switch {
	case c.MultipleChoice != nil:
		return TypeMultipleChoice
	case c.DragDrop != nil:
		return TypeDragDrop
	case c.FillBlank != nil:
		return TypeFillBlank
	case c.TextEntry != nil:
		return TypeTextEntry
	case c.VideoResponse != nil:
		return TypeVideoResponse
	case c.SigningPractice != nil:
		return TypeSigningPractice
	default:
		return ""
	}
}

// Empty reports whether no payload is set
func (c Content) Empty() bool {
	return c.Kind() == ""
}

// Clone returns a deep copy of the populated payload
func (c Content) Clone() Content {
	var out Content
	if c.MultipleChoice != nil {
		mc := *c.MultipleChoice
		mc.Options = slices.Clone(mc.Options)
		out.MultipleChoice = &mc
	}
	if c.DragDrop != nil {
		dd := *c.DragDrop
		dd.Items = slices.Clone(dd.Items)
		dd.Targets = slices.Clone(dd.Targets)
		out.DragDrop = &dd
	}
	if c.FillBlank != nil {
		fb := *c.FillBlank
		fb.Blanks = slices.Clone(fb.Blanks)
		fb.Options = slices.Clone(fb.Options)
		out.FillBlank = &fb
	}
	if c.TextEntry != nil {
		te := *c.TextEntry
		out.TextEntry = &te
	}
	if c.VideoResponse != nil {
		vr := *c.VideoResponse
		vr.Criteria = slices.Clone(vr.Criteria)
		out.VideoResponse = &vr
	}
	if c.SigningPractice != nil {
		sp := *c.SigningPractice
		sp.Steps = slices.Clone(sp.Steps)
		sp.Metrics = slices.Clone(sp.Metrics)
		sp.Variations = slices.Clone(sp.Variations)
		for i := range sp.Variations {
			sp.Variations[i].RequiresCompletion = slices.Clone(sp.Variations[i].RequiresCompletion)
		}
		out.SigningPractice = &sp
	}
	return out
}

// Option is a single multiple-choice answer
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ConceptID string `json:"concept_id,omitempty"`
	IsCorrect bool   `json:"is_correct"`
}

// MultipleChoiceContent asks the learner to pick the sign matching a prompt
type MultipleChoiceContent struct {
	Question     string   `json:"question"`
	VideoURL     string   `json:"video_url,omitempty"`
	ImageURL     string   `json:"image_url,omitempty"`
	Options      []Option `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// DragItem is a draggable element
type DragItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DropTarget is a slot a DragItem can be dropped on
type DropTarget struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// DragDropContent asks the learner to match items with targets
type DragDropContent struct {
	Instructions string       `json:"instructions"`
	Items        []DragItem   `json:"items"`
	Targets      []DropTarget `json:"targets"`
}

// Blank is one hidden position inside a fill-blank sentence
type Blank struct {
	Index int    `json:"index"`
	Hint  string `json:"hint,omitempty"`

	// VideoURL and ImageURL show the hidden sign; the sign is the cue
	VideoURL string `json:"video_url,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// FillBlankContent hides concepts inside a sentence
type FillBlankContent struct {
	Text    string   `json:"text"`
	Blanks  []Blank  `json:"blanks"`
	Options []string `json:"options,omitempty"` // word bank; empty when hidden
}

// TextEntryContent asks the learner to type the meaning of a sign
type TextEntryContent struct {
	Prompt    string `json:"prompt"`
	VideoURL  string `json:"video_url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Example   string `json:"example,omitempty"`
	MaxLength int    `json:"max_length"`
}

// Criterion is one rubric line of a video response
type Criterion struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Strictness  float64 `json:"strictness"`
}

// VideoResponseContent asks the learner to record themselves signing a phrase
type VideoResponseContent struct {
	Phrase            string      `json:"phrase"`
	Instructions      string      `json:"instructions"`
	ReferenceVideoURL string      `json:"reference_video_url,omitempty"`
	MinDuration       int         `json:"min_duration"`
	MaxDuration       int         `json:"max_duration"`
	Criteria          []Criterion `json:"criteria"`
}

// PracticeStep is one ordered step of a signing drill
type PracticeStep struct {
	Order       int    `json:"order"`
	Instruction string `json:"instruction"`
	Focus       string `json:"focus,omitempty"`
}

// PerformanceMetric toggles one aspect of signing that gets assessed
type PerformanceMetric struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// Variation is an optional follow-up drill unlocked by completing others
type Variation struct {
	ID                 string   `json:"id"`
	Description        string   `json:"description"`
	Difficulty         float64  `json:"difficulty"`
	RequiresCompletion []string `json:"requires_completion,omitempty"`
}

// SigningPracticeContent is a guided signing drill
type SigningPracticeContent struct {
	ConceptID   string              `json:"concept_id"`
	Sign        string              `json:"sign"`
	VideoURL    string              `json:"video_url,omitempty"`
	Repetitions int                 `json:"repetitions"`
	Steps       []PracticeStep      `json:"steps"`
	Metrics     []PerformanceMetric `json:"metrics"`
	Variations  []Variation         `json:"variations,omitempty"`
}

// EnabledMetrics returns the names of the metrics assessed for this drill
func (c *SigningPracticeContent) EnabledMetrics() []string {
	var names []string
	for _, m := range c.Metrics {
		if m.Enabled {
			names = append(names, m.Name)
		}
	}
	return names
}

// Answer is the expected answer derived deterministically from the content
type Answer struct {
	OptionID  string            `json:"option_id,omitempty"`
	Pairs     map[string]string `json:"pairs,omitempty"`    // item id -> target id
	Blanks    [][]string        `json:"blanks,omitempty"`   // acceptable answers per blank
	Accepted  []string          `json:"accepted,omitempty"` // text-entry variants
	Threshold float64           `json:"threshold,omitempty"`

	// Content kept aside at generation for making the exercise harder
	SpareOption *Option     `json:"spare_option,omitempty"`
	DecoyTarget *DropTarget `json:"decoy_target,omitempty"`
}

// Clone returns a deep copy of the answer
func (a Answer) Clone() Answer {
	out := a
	if a.Pairs != nil {
		out.Pairs = make(map[string]string, len(a.Pairs))
		for k, v := range a.Pairs {
			out.Pairs[k] = v
		}
	}
	if a.Blanks != nil {
		out.Blanks = make([][]string, len(a.Blanks))
		for i, b := range a.Blanks {
			out.Blanks[i] = slices.Clone(b)
		}
	}
	out.Accepted = slices.Clone(a.Accepted)
	if a.SpareOption != nil {
		o := *a.SpareOption
		out.SpareOption = &o
	}
	if a.DecoyTarget != nil {
		d := *a.DecoyTarget
		out.DecoyTarget = &d
	}
	return out
}

// Response is what a learner submits for an exercise
type Response struct {
	UserID       string             `json:"user_id,omitempty"`
	OptionID     string             `json:"option_id,omitempty"`
	OptionIndex  *int               `json:"option_index,omitempty"`
	Pairs        map[string]string  `json:"pairs,omitempty"`
	Blanks       []string           `json:"blanks,omitempty"`
	Text         string             `json:"text,omitempty"`
	Criteria     map[string]float64 `json:"criteria,omitempty"` // external rubric scores
	Metrics      map[string]float64 `json:"metrics,omitempty"`  // signing sub-scores
	DurationSecs int                `json:"duration_secs,omitempty"`
}
