package strategy

import (
	"fmt"
	"slices"

	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	DefaultOptionCount = 4
	MinOptionCount     = 2
	MaxOptionCount     = 10
)

var multipleChoiceSkills = []string{"recognition", "vocabulary"}

// MultipleChoice asks which word a sign means
type MultipleChoice struct {
	rand Rand
}

func NewMultipleChoice(r Rand) *MultipleChoice {
	return &MultipleChoice{rand: r}
}

func (s *MultipleChoice) Type() domain.ExerciseType { return domain.TypeMultipleChoice }

// OptionCount clamps the requested count to [2,10], defaulting to 4
func OptionCount(requested int) int {
	if requested == 0 {
		return DefaultOptionCount
	}
	return clampInt(requested, MinOptionCount, MaxOptionCount)
}

func (s *MultipleChoice) Requirements(_ domain.CECRLLevel, opts Options) Requirements {
	return Requirements{
		Targets:    1,
		MinTargets: 1,
		Pool:       OptionCount(opts.OptionCount) * 3,
		Details:    true,
	}
}

func (s *MultipleChoice) Generate(in Input) (*Output, error) {
	if len(in.Concepts) == 0 {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: "no target concept"}
	}
	target := in.Concepts[0]
	n := OptionCount(in.Options.OptionCount)

	// one distractor beyond the option count is kept aside for Complicate
	distractors := s.pickDistractors(target, in.Pool, n)
	if len(distractors) < n-1 {
		return nil, &domain.GenerationError{
			Type:   s.Type(),
			Reason: fmt.Sprintf("need %d distractors for %q, found %d", n-1, target.ID, len(distractors)),
		}
	}
	var spare *domain.Option
	if len(distractors) == n {
		c := distractors[n-1]
		distractors = distractors[:n-1]
		spare = &domain.Option{ID: fmt.Sprintf("opt-%d", n+1), Text: c.Text, ConceptID: c.ID}
	}

	choices := shuffled(s.rand, append([]domain.Concept{target}, distractors...))
	content := &domain.MultipleChoiceContent{
		Question: "Quel est le sens de ce signe ?",
		VideoURL: target.VideoURL,
		ImageURL: target.ImageURL,
		Options:  make([]domain.Option, len(choices)),
	}
	answer := domain.Answer{SpareOption: spare}
	for i, c := range choices {
		opt := domain.Option{
			ID:        fmt.Sprintf("opt-%d", i+1),
			Text:      c.Text,
			ConceptID: c.ID,
			IsCorrect: c.ID == target.ID,
		}
		if opt.IsCorrect {
			content.CorrectIndex = i
			answer.OptionID = opt.ID
		}
		content.Options[i] = opt
	}

	var hints []string
	if d := in.details(target.ID); d.Explanation != "" {
		hints = append(hints, d.Explanation)
	}
	if len(target.Categories) > 0 {
		hints = append(hints, "Thème : "+target.Categories[0])
	}

	return &Output{
		Content:   domain.Content{MultipleChoice: content},
		Answer:    answer,
		Hints:     hints,
		Skills:    multipleChoiceSkills,
		TimeLimit: 30 + 5*levelIndex(in.Level),
	}, nil
}

// pickDistractors prefers related concepts, then same-level concepts of
// another category, then anything else. Each tier is shuffled.
func (s *MultipleChoice) pickDistractors(target domain.Concept, pool []domain.Concept, want int) []domain.Concept {
	var related, sameLevel, rest []domain.Concept
	seen := map[string]bool{target.ID: true}
	texts := map[string]bool{normalize(target.Text): true}

	for _, c := range pool {
		if seen[c.ID] || texts[normalize(c.Text)] {
			continue
		}
		seen[c.ID] = true
		texts[normalize(c.Text)] = true
		switch {
		case target.IsRelatedTo(c.ID) || c.IsRelatedTo(target.ID):
			related = append(related, c)
		case c.Level == target.Level && !c.HasCategory(target.Categories...):
			sameLevel = append(sameLevel, c)
		default:
			rest = append(rest, c)
		}
	}

	var out []domain.Concept
	for _, tier := range [][]domain.Concept{related, sameLevel, rest} {
		for _, c := range shuffled(s.rand, tier) {
			if len(out) == want {
				return out
			}
			out = append(out, c)
		}
	}
	return out
}

func (s *MultipleChoice) Score(content domain.Content, expected domain.Answer, submitted domain.Response) float64 {
	mc := content.MultipleChoice
	if mc == nil {
		return 0
	}
	if submitted.OptionID != "" {
		if submitted.OptionID == expected.OptionID {
			return 1
		}
		return 0
	}
	if submitted.OptionIndex != nil && *submitted.OptionIndex == mc.CorrectIndex {
		return 1
	}
	return 0
}

func (s *MultipleChoice) Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict {
	score := s.Score(content, expected, submitted)
	explanation := "Bonne réponse."
	if score < 1 {
		explanation = "Mauvaise réponse."
		if mc := content.MultipleChoice; mc != nil && mc.CorrectIndex < len(mc.Options) {
			explanation = fmt.Sprintf("Mauvaise réponse : le signe voulait dire « %s ».", mc.Options[mc.CorrectIndex].Text)
		}
	}
	v := verdict(score, multipleChoiceSkills, explanation,
		feedbackFor(score, "Tu reconnais ce signe.", "Observe la configuration de la main.", "Revois les signes du même thème."))
	v.Correct = score == 1
	return v
}

// Simplify drops one distractor while keeping at least two options
func (s *MultipleChoice) Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	mc := out.MultipleChoice
	if mc == nil {
		return out, expected.Clone()
	}
	mc.Question = "Regarde bien la vidéo : quel mot correspond ?"
	if len(mc.Options) > MinOptionCount {
		for i := len(mc.Options) - 1; i >= 0; i-- {
			if !mc.Options[i].IsCorrect {
				mc.Options = slices.Delete(mc.Options, i, i+1)
				break
			}
		}
		for i, o := range mc.Options {
			if o.IsCorrect {
				mc.CorrectIndex = i
			}
		}
	}
	return out, expected.Clone()
}

// Complicate removes the still image so only the video remains and adds
// the distractor kept aside at generation, up to MaxOptionCount
func (s *MultipleChoice) Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out, ans := content.Clone(), expected.Clone()
	mc := out.MultipleChoice
	if mc == nil {
		return out, ans
	}
	mc.Question = "Sans indice visuel, quel est le sens de ce signe ?"
	mc.ImageURL = ""

	sp := ans.SpareOption
	if sp == nil || len(mc.Options) >= MaxOptionCount ||
		slices.ContainsFunc(mc.Options, func(o domain.Option) bool { return o.ID == sp.ID }) {
		return out, ans
	}
	mc.Options = slices.Insert(mc.Options, s.rand.IntN(len(mc.Options)+1), *sp)
	for i, o := range mc.Options {
		if o.IsCorrect {
			mc.CorrectIndex = i
		}
	}
	ans.SpareOption = nil
	return out, ans
}
