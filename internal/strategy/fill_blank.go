package strategy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	MinBlankCount = 1
	MaxBlankCount = 3

	// wordBankMaxDifficulty is the highest difficulty that still shows the word bank
	wordBankMaxDifficulty = 0.66
	// blankHintMaxDifficulty is the highest difficulty that still hints each blank
	blankHintMaxDifficulty = 0.5
)

var fillBlankSkills = []string{"comprehension", "grammar"}

// FillBlank hides concepts inside a level-appropriate sentence
type FillBlank struct {
	rand Rand
}

func NewFillBlank(r Rand) *FillBlank {
	return &FillBlank{rand: r}
}

func (s *FillBlank) Type() domain.ExerciseType { return domain.TypeFillBlank }

func blankCount(level domain.CECRLLevel, requested int) int {
	if requested == 0 {
		return 1 + levelIndex(level)/2
	}
	return clampInt(requested, MinBlankCount, MaxBlankCount)
}

func (s *FillBlank) Requirements(level domain.CECRLLevel, opts Options) Requirements {
	n := blankCount(level, opts.BlankCount)
	return Requirements{
		Targets:    n,
		MinTargets: MinBlankCount,
		Pool:       n * 2,
		Details:    true,
	}
}

func (s *FillBlank) Generate(in Input) (*Output, error) {
	n := blankCount(in.Level, in.Options.BlankCount)
	if len(in.Concepts) < n {
		n = len(in.Concepts)
	}
	if n < MinBlankCount {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: "no concept to hide"}
	}
	concepts := in.Concepts[:n]

	level := in.Level
	if !level.IsValid() {
		level = domain.LevelA1
	}
	candidates := templatesFor(level, n)
	if len(candidates) == 0 {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: fmt.Sprintf("no %s template with %d blanks", level, n)}
	}
	tmpl := candidates[s.rand.IntN(len(candidates))]

	markers := make([]string, n)
	for i := range markers {
		markers[i] = BlankMarker
		if n > 1 {
			markers[i] = fmt.Sprintf("%s (%d)", BlankMarker, i+1)
		}
	}
	text, err := tmpl.Bind(markers...)
	if err != nil {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: "render template", Err: err}
	}

	content := &domain.FillBlankContent{Text: text}
	answer := domain.Answer{Blanks: make([][]string, n)}
	for i, c := range concepts {
		blank := domain.Blank{Index: i, VideoURL: c.VideoURL, ImageURL: c.ImageURL}
		// without a sign to show, the theme is the only cue left
		if (in.Difficulty <= blankHintMaxDifficulty || !hasSign(blank)) && len(c.Categories) > 0 {
			blank.Hint = c.Categories[0]
		}
		content.Blanks = append(content.Blanks, blank)
		answer.Blanks[i] = acceptable(c.Text, in.details(c.ID).Synonyms)
	}

	if in.Difficulty <= wordBankMaxDifficulty {
		content.Options = s.wordBank(concepts, in.Pool)
	}

	return &Output{
		Content:   domain.Content{FillBlank: content},
		Answer:    answer,
		Hints:     []string{"Lis la phrase entière pour deviner le thème."},
		Skills:    fillBlankSkills,
		TimeLimit: 30 + 15*n + 5*levelIndex(level),
	}, nil
}

func hasSign(b domain.Blank) bool {
	return b.VideoURL != "" || b.ImageURL != ""
}

// wordBank mixes the answers with as many distractors
func (s *FillBlank) wordBank(answers, pool []domain.Concept) []string {
	words := make([]string, 0, 2*len(answers))
	used := map[string]bool{}
	for _, c := range answers {
		words = append(words, c.Text)
		used[c.ID] = true
	}
	extra := 0
	for _, c := range shuffled(s.rand, pool) {
		if extra == len(answers) {
			break
		}
		if used[c.ID] || slices.Contains(words, c.Text) {
			continue
		}
		used[c.ID] = true
		words = append(words, c.Text)
		extra++
	}
	return shuffled(s.rand, words)
}

// acceptable returns the concept text followed by its distinct synonyms
func acceptable(text string, synonyms []string) []string {
	out := []string{text}
	for _, syn := range synonyms {
		if !slices.ContainsFunc(out, func(s string) bool { return normalize(s) == normalize(syn) }) {
			out = append(out, syn)
		}
	}
	return out
}

func (s *FillBlank) Score(_ domain.Content, expected domain.Answer, submitted domain.Response) float64 {
	if len(expected.Blanks) == 0 {
		return 0
	}
	hits := 0
	for i, accepted := range expected.Blanks {
		if i >= len(submitted.Blanks) {
			break
		}
		got := normalize(submitted.Blanks[i])
		if got == "" {
			continue
		}
		if slices.ContainsFunc(accepted, func(a string) bool { return normalize(a) == got }) {
			hits++
		}
	}
	return float64(hits) / float64(len(expected.Blanks))
}

func (s *FillBlank) Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict {
	score := s.Score(content, expected, submitted)
	first := make([]string, len(expected.Blanks))
	for i, b := range expected.Blanks {
		if len(b) > 0 {
			first[i] = b[0]
		}
	}
	return verdict(score, fillBlankSkills,
		"Réponses attendues : "+strings.Join(first, ", ")+".",
		feedbackFor(score, "Tu comprends la structure de la phrase.", "Vérifie l'orthographe de chaque mot.", "Relis les exemples de ces signes en contexte."))
}

// Simplify restores the word bank and hints every blank
func (s *FillBlank) Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	fb := out.FillBlank
	if fb == nil {
		return out, expected.Clone()
	}
	if len(fb.Options) == 0 {
		for _, b := range expected.Blanks {
			if len(b) > 0 {
				fb.Options = append(fb.Options, b[0])
			}
		}
		slices.Sort(fb.Options)
	}
	for i := range fb.Blanks {
		if fb.Blanks[i].Hint == "" && i < len(expected.Blanks) && len(expected.Blanks[i]) > 0 {
			fb.Blanks[i].Hint = fmt.Sprintf("%d lettres", len([]rune(expected.Blanks[i][0])))
		}
	}
	return out, expected.Clone()
}

// Complicate hides the word bank and the hints of blanks that show a sign
func (s *FillBlank) Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	if fb := out.FillBlank; fb != nil {
		fb.Options = nil
		for i := range fb.Blanks {
			if hasSign(fb.Blanks[i]) {
				fb.Blanks[i].Hint = ""
			}
		}
	}
	return out, expected.Clone()
}
