package strategy

import (
	"fmt"
	"slices"

	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	MinPairCount = 2
	MaxPairCount = 8
)

var dragDropSkills = []string{"association", "comprehension"}

// DragDrop matches signs with the example sentences they complete
type DragDrop struct {
	rand Rand
}

func NewDragDrop(r Rand) *DragDrop {
	return &DragDrop{rand: r}
}

func (s *DragDrop) Type() domain.ExerciseType { return domain.TypeDragDrop }

func pairCount(level domain.CECRLLevel, requested int) int {
	if requested == 0 {
		return 3 + levelIndex(level)/2
	}
	return clampInt(requested, MinPairCount, MaxPairCount)
}

func (s *DragDrop) Requirements(level domain.CECRLLevel, opts Options) Requirements {
	// one concept beyond the pairs becomes the decoy target
	return Requirements{
		Targets:    pairCount(level, opts.PairCount) + 1,
		MinTargets: MinPairCount,
		Details:    true,
	}
}

func (s *DragDrop) Generate(in Input) (*Output, error) {
	n := pairCount(in.Level, in.Options.PairCount)
	concepts := in.Concepts
	var spare []domain.Concept
	if len(concepts) > n {
		concepts, spare = concepts[:n], concepts[n:]
	}
	if len(concepts) < MinPairCount {
		return nil, &domain.GenerationError{
			Type:   s.Type(),
			Reason: fmt.Sprintf("need at least %d concepts, found %d", MinPairCount, len(concepts)),
		}
	}

	content := &domain.DragDropContent{
		Instructions: "Associe chaque signe à la phrase qu'il complète.",
	}
	answer := domain.Answer{Pairs: make(map[string]string, len(concepts))}
	targets := make([]domain.DropTarget, 0, len(concepts))

	for i, c := range concepts {
		item := domain.DragItem{ID: fmt.Sprintf("item-%d", i+1), Text: c.Text}
		target := domain.DropTarget{ID: fmt.Sprintf("target-%d", i+1), Text: s.targetText(c, in.details(c.ID))}
		content.Items = append(content.Items, item)
		targets = append(targets, target)
		answer.Pairs[item.ID] = target.ID
	}
	answer.DecoyTarget = s.decoy(spare, in, targets)
	content.Targets = shuffled(s.rand, targets)

	return &Output{
		Content:   domain.Content{DragDrop: content},
		Answer:    answer,
		Hints:     []string{"Cherche d'abord les phrases que tu reconnais sans hésiter."},
		Skills:    dragDropSkills,
		TimeLimit: 20 * len(concepts),
	}, nil
}

// decoy builds a target that matches no item from the first usable spare
// concept
func (s *DragDrop) decoy(spare []domain.Concept, in Input, targets []domain.DropTarget) *domain.DropTarget {
	for _, c := range spare {
		text := s.targetText(c, in.details(c.ID))
		if text == BlankMarker || slices.ContainsFunc(targets, func(t domain.DropTarget) bool { return t.Text == text }) {
			continue
		}
		return &domain.DropTarget{ID: fmt.Sprintf("target-%d", len(targets)+1), Text: text}
	}
	return nil
}

// targetText picks an example sentence with the concept masked, falling back
// to the explanation and then to the concept's theme.
func (s *DragDrop) targetText(c domain.Concept, d *domain.ConceptDetails) string {
	if len(d.Examples) > 0 {
		return mask(d.Examples[s.rand.IntN(len(d.Examples))], c.Text)
	}
	if d.Explanation != "" {
		return d.Explanation
	}
	if len(c.Categories) > 0 {
		return "Un signe du thème « " + c.Categories[0] + " »"
	}
	return BlankMarker
}

func (s *DragDrop) Score(_ domain.Content, expected domain.Answer, submitted domain.Response) float64 {
	if len(expected.Pairs) == 0 {
		return 0
	}
	matched := 0
	for item, target := range expected.Pairs {
		if submitted.Pairs[item] == target {
			matched++
		}
	}
	return float64(matched) / float64(len(expected.Pairs))
}

func (s *DragDrop) Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict {
	score := s.Score(content, expected, submitted)
	matched := int(score*float64(len(expected.Pairs)) + 0.5)
	return verdict(score, dragDropSkills,
		fmt.Sprintf("%d association(s) correcte(s) sur %d.", matched, len(expected.Pairs)),
		feedbackFor(score, "Tu relies bien les signes à leur contexte.", "Relis chaque phrase en entier avant de placer le signe.", "Entraîne-toi avec les exemples de chaque signe."))
}

// Simplify removes the last pair while keeping at least two
func (s *DragDrop) Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out, ans := content.Clone(), expected.Clone()
	dd := out.DragDrop
	if dd == nil || len(dd.Items) <= MinPairCount {
		return out, ans
	}
	last := dd.Items[len(dd.Items)-1]
	dd.Items = dd.Items[:len(dd.Items)-1]
	targetID := ans.Pairs[last.ID]
	delete(ans.Pairs, last.ID)
	for i, t := range dd.Targets {
		if t.ID == targetID {
			dd.Targets = append(dd.Targets[:i:i], dd.Targets[i+1:]...)
			break
		}
	}
	dd.Instructions = "Associe chaque signe à sa phrase. Prends ton temps."
	return out, ans
}

// Complicate drops the reassuring instructions and adds the decoy target
// kept aside at generation
func (s *DragDrop) Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out, ans := content.Clone(), expected.Clone()
	dd := out.DragDrop
	if dd == nil {
		return out, ans
	}
	dd.Instructions = "Associe les signes aux phrases."
	if d := ans.DecoyTarget; d != nil && !slices.ContainsFunc(dd.Targets, func(t domain.DropTarget) bool { return t.ID == d.ID }) {
		dd.Targets = slices.Insert(dd.Targets, s.rand.IntN(len(dd.Targets)+1), *d)
		dd.Instructions = "Associe les signes aux phrases. Une phrase ne correspond à aucun signe."
		ans.DecoyTarget = nil
	}
	return out, ans
}
