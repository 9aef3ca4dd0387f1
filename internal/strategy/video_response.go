package strategy

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	minCriteria = 2
	// strictnessStep is how much Simplify and Complicate move strictness
	strictnessStep = 0.1
	minStrictness  = 0.3
)

var videoResponseSkills = []string{"expression", "production"}

// rubric lists every criterion in the order they are added as difficulty grows
var rubric = []domain.Criterion{
	{ID: "hand_configuration", Name: "Configuration", Description: "La forme de la main correspond au signe."},
	{ID: "movement", Name: "Mouvement", Description: "La trajectoire et l'amplitude sont justes."},
	{ID: "facial_expression", Name: "Expression", Description: "Le visage porte l'intention de la phrase."},
	{ID: "rhythm", Name: "Rythme", Description: "Le débit est régulier et naturel."},
	{ID: "location", Name: "Emplacement", Description: "Le signe est réalisé au bon endroit."},
	{ID: "orientation", Name: "Orientation", Description: "La paume est orientée correctement."},
	{ID: "fluidity", Name: "Fluidité", Description: "Les signes s'enchaînent sans rupture."},
	{ID: "spatial_grammar", Name: "Grammaire spatiale", Description: "Les références spatiales sont cohérentes."},
}

// VideoResponse asks the learner to record a signed phrase. It only defines
// the rubric; criterion scores come from an external evaluator.
type VideoResponse struct {
	rand Rand
}

func NewVideoResponse(r Rand) *VideoResponse {
	return &VideoResponse{rand: r}
}

func (s *VideoResponse) Type() domain.ExerciseType { return domain.TypeVideoResponse }

func (s *VideoResponse) Requirements(domain.CECRLLevel, Options) Requirements {
	return Requirements{Targets: 1, MinTargets: 1, Details: true}
}

func criteriaCount(difficulty float64) int {
	return clampInt(minCriteria+int(math.Round(domain.Clamp01(difficulty)*6)), minCriteria, len(rubric))
}

func strictness(difficulty float64) float64 {
	return math.Round((0.5+0.5*domain.Clamp01(difficulty))*100) / 100
}

func buildCriteria(n int, strict float64) []domain.Criterion {
	out := make([]domain.Criterion, n)
	for i := range out {
		c := rubric[i]
		c.Weight = 1 / float64(n)
		c.Strictness = strict
		out[i] = c
	}
	return out
}

func (s *VideoResponse) Generate(in Input) (*Output, error) {
	if len(in.Concepts) == 0 {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: "no target concept"}
	}
	target := in.Concepts[0]
	d := in.details(target.ID)
	idx := levelIndex(in.Level)

	phrase := target.Text
	if len(d.Examples) > 0 {
		phrase = d.Examples[s.rand.IntN(len(d.Examples))]
	}

	content := &domain.VideoResponseContent{
		Phrase:            phrase,
		Instructions:      "Filme-toi en train de signer la phrase ci-dessous.",
		ReferenceVideoURL: target.VideoURL,
		MinDuration:       3 + idx,
		MaxDuration:       15 + 5*idx,
		Criteria:          buildCriteria(criteriaCount(in.Difficulty), strictness(in.Difficulty)),
	}

	hints := []string{"Regarde la vidéo de référence avant d'enregistrer."}
	if d.Explanation != "" {
		hints = append(hints, d.Explanation)
	}

	return &Output{
		Content:   domain.Content{VideoResponse: content},
		Hints:     hints,
		Skills:    videoResponseSkills,
		TimeLimit: content.MaxDuration + 60,
	}, nil
}

// Score is the weighted mean of the externally supplied criterion scores,
// or 0 when none were supplied.
func (s *VideoResponse) Score(content domain.Content, _ domain.Answer, submitted domain.Response) float64 {
	vr := content.VideoResponse
	if vr == nil || len(submitted.Criteria) == 0 {
		return 0
	}
	var sum, weights float64
	for _, c := range vr.Criteria {
		w := c.Weight
		if w <= 0 {
			w = 1
		}
		sum += w * domain.Clamp01(submitted.Criteria[c.ID])
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return domain.Clamp01(sum / weights)
}

func (s *VideoResponse) Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict {
	score := s.Score(content, expected, submitted)
	if len(submitted.Criteria) == 0 {
		return Verdict{Explanation: "En attente d'évaluation de la vidéo."}
	}

	v := verdict(score, nil, fmt.Sprintf("Note globale : %.0f%%.", score*100), &domain.Feedback{})
	v.SkillScores = map[string]float64{}
	if vr := content.VideoResponse; vr != nil {
		for _, c := range vr.Criteria {
			cs := domain.Clamp01(submitted.Criteria[c.ID])
			v.SkillScores[c.ID] = cs
			switch {
			case cs >= 0.8:
				v.Feedback.Strengths = append(v.Feedback.Strengths, c.Name)
			case cs < c.Strictness:
				v.Feedback.Improvements = append(v.Feedback.Improvements, c.Name+" : "+c.Description)
			}
		}
	}
	if len(v.Feedback.Improvements) > 0 {
		v.Feedback.NextSteps = append(v.Feedback.NextSteps, "Réenregistre la phrase en te concentrant sur un critère à la fois.")
	}
	return v
}

// Simplify drops the last criterion and lowers strictness
func (s *VideoResponse) Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	vr := out.VideoResponse
	if vr == nil {
		return out, expected.Clone()
	}
	n := len(vr.Criteria)
	if n > minCriteria {
		n--
	}
	strict := minStrictness
	if len(vr.Criteria) > 0 {
		strict = math.Max(minStrictness, vr.Criteria[0].Strictness-strictnessStep)
	}
	vr.Criteria = buildCriteria(n, strict)
	vr.MaxDuration = vr.MaxDuration + vr.MaxDuration/2
	return out, expected.Clone()
}

// Complicate adds the next rubric criterion and raises strictness
func (s *VideoResponse) Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	vr := out.VideoResponse
	if vr == nil {
		return out, expected.Clone()
	}
	n := min(len(vr.Criteria)+1, len(rubric))
	strict := 1.0
	if len(vr.Criteria) > 0 {
		strict = math.Min(1, vr.Criteria[0].Strictness+strictnessStep)
	}
	vr.Criteria = buildCriteria(n, strict)
	return out, expected.Clone()
}
