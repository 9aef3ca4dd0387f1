// Package strategy turns concepts into exercise content and scores answers,
// one Strategy per exercise type.
package strategy

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// Rand is the randomness a strategy may use. *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// NewRand returns a goroutine-safe seeded source
func NewRand(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomRand returns a goroutine-safe source with a random seed
func NewRandomRand() Rand {
	return NewRand(rand.Uint64())
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

// Options tune generation. Zero values mean "use the level default".
type Options struct {
	OptionCount       int     `json:"option_count,omitempty"`
	PairCount         int     `json:"pair_count,omitempty"`
	BlankCount        int     `json:"blank_count,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	IncludeVariations bool    `json:"include_variations,omitempty"`
}

// Requirements tells a generator how many concepts to fetch
type Requirements struct {
	Targets    int  // concepts wanted
	MinTargets int  // below this generation fails
	Pool       int  // distractor candidates wanted
	Details    bool // whether ConceptDetails are used
}

// Input is everything a strategy needs to build one exercise
type Input struct {
	Concepts   []domain.Concept // targets, most relevant first
	Pool       []domain.Concept // distractor candidates
	Details    map[string]*domain.ConceptDetails
	Level      domain.CECRLLevel
	Difficulty float64
	Options    Options
}

func (in Input) details(id string) *domain.ConceptDetails {
	if d, ok := in.Details[id]; ok && d != nil {
		return d
	}
	return &domain.ConceptDetails{}
}

// Output is the content built by a strategy
type Output struct {
	Content   domain.Content
	Answer    domain.Answer
	Hints     []string
	Skills    []string
	TimeLimit int
}

// Verdict is a scored response with the strategy's explanation
type Verdict struct {
	Score       float64
	Correct     bool
	SkillScores map[string]float64
	Explanation string
	Feedback    *domain.Feedback
	NeedsHelp   bool
	Suggestions []string
}

// Strategy builds and scores one exercise type
type Strategy interface {
	Type() domain.ExerciseType
	Requirements(level domain.CECRLLevel, opts Options) Requirements
	Generate(in Input) (*Output, error)
	// Score returns a value in [0,1]
	Score(content domain.Content, expected domain.Answer, submitted domain.Response) float64
	Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict
	// Simplify and Complicate return adjusted copies; inputs are not modified.
	Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer)
	Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer)
}

// Set maps each exercise type to its strategy
type Set map[domain.ExerciseType]Strategy

// NewSet returns the six built-in strategies sharing r
func NewSet(r Rand) Set {
	if r == nil {
		r = NewRandomRand()
	}
	return Set{
		domain.TypeMultipleChoice:  NewMultipleChoice(r),
		domain.TypeDragDrop:        NewDragDrop(r),
		domain.TypeFillBlank:       NewFillBlank(r),
		domain.TypeTextEntry:       NewTextEntry(r),
		domain.TypeVideoResponse:   NewVideoResponse(r),
		domain.TypeSigningPractice: NewSigningPractice(r),
	}
}

// Get returns the strategy for t
func (s Set) Get(t domain.ExerciseType) (Strategy, bool) {
	st, ok := s[t]
	return st, ok
}

// Types returns the types covered by the set in canonical order
func (s Set) Types() []domain.ExerciseType {
	var out []domain.ExerciseType
	for _, t := range domain.AllExerciseTypes() {
		if _, ok := s[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

func shuffled[T any](r Rand, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func levelIndex(l domain.CECRLLevel) int {
	if i := l.Index(); i >= 0 {
		return i
	}
	return 0
}

// normalize lowercases, trims and collapses inner whitespace
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// mask hides word inside sentence, case-insensitively
func mask(sentence, word string) string {
	if word == "" {
		return sentence
	}
	lower := strings.ToLower(sentence)
	w := strings.ToLower(word)
	var b strings.Builder
	for {
		i := strings.Index(lower, w)
		if i < 0 {
			b.WriteString(sentence)
			return b.String()
		}
		b.WriteString(sentence[:i])
		b.WriteString(BlankMarker)
		sentence = sentence[i+len(w):]
		lower = lower[i+len(w):]
	}
}

func skillScores(skills []string, score float64) map[string]float64 {
	out := make(map[string]float64, len(skills))
	for _, s := range skills {
		out[s] = score
	}
	return out
}

// feedbackFor builds generic feedback from a score
func feedbackFor(score float64, strength, improvement, next string) *domain.Feedback {
	f := &domain.Feedback{}
	switch {
	case score >= 0.8:
		f.Strengths = append(f.Strengths, strength)
		f.NextSteps = append(f.NextSteps, "Passe à un niveau de difficulté supérieur.")
	case score >= domain.PassingScore:
		f.Strengths = append(f.Strengths, strength)
		f.Improvements = append(f.Improvements, improvement)
		f.NextSteps = append(f.NextSteps, next)
	default:
		f.Improvements = append(f.Improvements, improvement)
		f.NextSteps = append(f.NextSteps, next, "Revois la vidéo de référence avant de réessayer.")
	}
	return f
}

func verdict(score float64, skills []string, explanation string, fb *domain.Feedback) Verdict {
	score = domain.Clamp01(score)
	return Verdict{
		Score:       score,
		Correct:     score >= domain.PassingScore,
		SkillScores: skillScores(skills, score),
		Explanation: explanation,
		Feedback:    fb,
	}
}
