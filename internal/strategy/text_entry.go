package strategy

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	// DefaultSimilarityThreshold is the similarity at which a typed answer is accepted
	DefaultSimilarityThreshold = 0.7
	MinSimilarityThreshold     = 0.5
	MaxSimilarityThreshold     = 0.95
	thresholdStep              = 0.1

	// exampleMaxDifficulty is the highest difficulty that still shows an example sentence
	exampleMaxDifficulty = 0.5
)

var textEntrySkills = []string{"recognition", "written_expression"}

// TextEntry asks the learner to type what a sign means
type TextEntry struct {
	rand Rand
}

func NewTextEntry(r Rand) *TextEntry {
	return &TextEntry{rand: r}
}

func (s *TextEntry) Type() domain.ExerciseType { return domain.TypeTextEntry }

func (s *TextEntry) Requirements(domain.CECRLLevel, Options) Requirements {
	return Requirements{Targets: 1, MinTargets: 1, Details: true}
}

func (s *TextEntry) Generate(in Input) (*Output, error) {
	if len(in.Concepts) == 0 {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: "no target concept"}
	}
	target := in.Concepts[0]
	d := in.details(target.ID)

	threshold := DefaultSimilarityThreshold
	if in.Options.Threshold > 0 {
		threshold = clampFloat(in.Options.Threshold, MinSimilarityThreshold, MaxSimilarityThreshold)
	}

	content := &domain.TextEntryContent{
		Prompt:    "Écris le mot ou l'expression correspondant à ce signe.",
		VideoURL:  target.VideoURL,
		ImageURL:  target.ImageURL,
		MaxLength: 100,
	}
	if in.Difficulty <= exampleMaxDifficulty && len(d.Examples) > 0 {
		content.Example = mask(d.Examples[s.rand.IntN(len(d.Examples))], target.Text)
	}

	var hints []string
	if len(target.Categories) > 0 {
		hints = append(hints, "Thème : "+target.Categories[0])
	}
	if r := []rune(target.Text); len(r) > 0 {
		hints = append(hints, fmt.Sprintf("Commence par « %c ».", r[0]))
	}

	return &Output{
		Content: domain.Content{TextEntry: content},
		Answer: domain.Answer{
			Accepted:  Variants(target.Text, d.Synonyms),
			Threshold: threshold,
		},
		Hints:     hints,
		Skills:    textEntrySkills,
		TimeLimit: 45 + 5*levelIndex(in.Level),
	}, nil
}

// Variants returns the text and synonyms with their case and punctuation
// variants, without duplicates.
func Variants(text string, synonyms []string) []string {
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	for _, base := range append([]string{text}, synonyms...) {
		add(base)
		add(strings.ToLower(base))
		add(stripPunctuation(base))
		add(strings.ToLower(stripPunctuation(base)))
	}
	return out
}

func stripPunctuation(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Similarity returns the best normalised Levenshtein similarity between
// submitted and any accepted variant.
func Similarity(submitted string, accepted []string) float64 {
	got := normalize(stripPunctuation(submitted))
	if got == "" {
		return 0
	}
	best := 0.0
	for _, a := range accepted {
		sim := levenshtein.Similarity(got, normalize(stripPunctuation(a)), nil)
		if sim > best {
			best = sim
		}
	}
	return domain.Clamp01(best)
}

func (s *TextEntry) Score(_ domain.Content, expected domain.Answer, submitted domain.Response) float64 {
	return Similarity(submitted.Text, expected.Accepted)
}

func (s *TextEntry) Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict {
	score := s.Score(content, expected, submitted)
	threshold := expected.Threshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}

	v := verdict(score, textEntrySkills, "", feedbackFor(score,
		"Ta réponse est proche de l'attendu.",
		"Vérifie l'orthographe de ta réponse.",
		"Associe ce signe à un mot-clé pour le mémoriser."))
	v.Correct = score >= threshold
	switch {
	case score == 1:
		v.Explanation = "Réponse exacte."
	case v.Correct:
		v.Explanation = "Réponse acceptée, l'orthographe attendue est « " + first(expected.Accepted) + " »."
	default:
		v.Explanation = "La réponse attendue était « " + first(expected.Accepted) + " »."
	}
	return v
}

// Simplify lowers the matching threshold
func (s *TextEntry) Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	ans := expected.Clone()
	ans.Threshold = clampFloat(thresholdOrDefault(ans.Threshold)-thresholdStep, MinSimilarityThreshold, MaxSimilarityThreshold)
	return content.Clone(), ans
}

// Complicate raises the matching threshold and removes the example sentence
func (s *TextEntry) Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out, ans := content.Clone(), expected.Clone()
	ans.Threshold = clampFloat(thresholdOrDefault(ans.Threshold)+thresholdStep, MinSimilarityThreshold, MaxSimilarityThreshold)
	if te := out.TextEntry; te != nil {
		te.Example = ""
	}
	return out, ans
}

func thresholdOrDefault(t float64) float64 {
	if t <= 0 {
		return DefaultSimilarityThreshold
	}
	return t
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
