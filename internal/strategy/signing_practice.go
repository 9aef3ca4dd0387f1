package strategy

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/coda/internal/domain"
)

const (
	// NeedsHelpBelow flags a drill whose average metric score is under it
	NeedsHelpBelow = 0.8
	// SuggestBelow triggers a targeted suggestion for a metric under it
	SuggestBelow = 0.6

	minSteps          = 3
	minEnabledMetrics = 1
)

var practiceSteps = []domain.PracticeStep{
	{Instruction: "Observe la vidéo de référence sans signer.", Focus: "observation"},
	{Instruction: "Forme la configuration de la main.", Focus: "hand_shape"},
	{Instruction: "Place la main à l'emplacement de départ.", Focus: "location"},
	{Instruction: "Réalise le mouvement lentement.", Focus: "movement"},
	{Instruction: "Vérifie l'orientation de la paume.", Focus: "orientation"},
	{Instruction: "Ajoute l'expression du visage.", Focus: "facial_expression"},
	{Instruction: "Signe à vitesse naturelle.", Focus: "fluidity"},
	{Instruction: "Utilise le signe dans une phrase.", Focus: "context"},
}

var performanceMetrics = []string{"hand_shape", "movement", "location", "orientation", "facial_expression", "fluidity"}

var metricSuggestions = map[string]string{
	"hand_shape":        "Travaille la configuration devant un miroir, doigt par doigt.",
	"movement":          "Décompose le mouvement en étapes avant de l'enchaîner.",
	"location":          "Repère l'emplacement du signe par rapport à ton visage ou ton buste.",
	"orientation":       "Vérifie la direction de ta paume au début et à la fin du signe.",
	"facial_expression": "Exagère l'expression du visage pour la rendre lisible.",
	"fluidity":          "Répète le signe plusieurs fois de suite pour gagner en fluidité.",
}

var variationTemplates = []domain.Variation{
	{ID: "slow", Description: "Signe très lentement en contrôlant chaque paramètre."},
	{ID: "mirror", Description: "Signe avec la main non dominante."},
	{ID: "context", Description: "Intègre le signe dans une phrase complète."},
}

// SigningPractice is a guided, step-by-step signing drill
type SigningPractice struct {
	rand Rand
}

func NewSigningPractice(r Rand) *SigningPractice {
	return &SigningPractice{rand: r}
}

func (s *SigningPractice) Type() domain.ExerciseType { return domain.TypeSigningPractice }

func (s *SigningPractice) Requirements(domain.CECRLLevel, Options) Requirements {
	return Requirements{Targets: 1, MinTargets: 1, Details: true}
}

func buildSteps(n int) []domain.PracticeStep {
	out := make([]domain.PracticeStep, n)
	for i := range out {
		out[i] = practiceSteps[i]
		out[i].Order = i + 1
	}
	return out
}

func buildMetrics(enabled int) []domain.PerformanceMetric {
	out := make([]domain.PerformanceMetric, len(performanceMetrics))
	for i, name := range performanceMetrics {
		out[i] = domain.PerformanceMetric{Name: name, Enabled: i < enabled}
	}
	return out
}

// buildVariations chains each variation on the previous one
func buildVariations(n int, difficulty float64) []domain.Variation {
	out := make([]domain.Variation, n)
	for i := range out {
		v := variationTemplates[i]
		v.Difficulty = math.Round(domain.Clamp01(difficulty+0.1*float64(i+1))*100) / 100
		if i > 0 {
			v.RequiresCompletion = []string{variationTemplates[i-1].ID}
		}
		out[i] = v
	}
	return out
}

func (s *SigningPractice) Generate(in Input) (*Output, error) {
	if len(in.Concepts) == 0 {
		return nil, &domain.GenerationError{Type: s.Type(), Reason: "no target concept"}
	}
	target := in.Concepts[0]
	idx := levelIndex(in.Level)

	variations := 0
	if idx >= 2 {
		variations = min(idx-1, len(variationTemplates))
	}
	if in.Options.IncludeVariations && variations == 0 {
		variations = 1
	}

	content := &domain.SigningPracticeContent{
		ConceptID:   target.ID,
		Sign:        target.Text,
		VideoURL:    target.VideoURL,
		Repetitions: 3 + (len(practiceSteps)-minSteps-idx)/2,
		Steps:       buildSteps(min(minSteps+idx, len(practiceSteps))),
		Metrics:     buildMetrics(min(2+idx, len(performanceMetrics))),
		Variations:  buildVariations(variations, in.Difficulty),
	}

	var hints []string
	if d := in.details(target.ID); d.Explanation != "" {
		hints = append(hints, d.Explanation)
	}
	hints = append(hints, "Commence lentement, la vitesse viendra ensuite.")

	skills := append([]string{"production"}, content.EnabledMetrics()...)
	return &Output{
		Content:   domain.Content{SigningPractice: content},
		Hints:     hints,
		Skills:    skills,
		TimeLimit: 60 + 30*len(content.Steps),
	}, nil
}

// Score averages the sub-scores of enabled metrics; missing ones count as 0
func (s *SigningPractice) Score(content domain.Content, _ domain.Answer, submitted domain.Response) float64 {
	sp := content.SigningPractice
	if sp == nil {
		return 0
	}
	enabled := sp.EnabledMetrics()
	if len(enabled) == 0 {
		return 0
	}
	var sum float64
	for _, m := range enabled {
		sum += domain.Clamp01(submitted.Metrics[m])
	}
	return domain.Clamp01(sum / float64(len(enabled)))
}

func (s *SigningPractice) Evaluate(content domain.Content, expected domain.Answer, submitted domain.Response) Verdict {
	score := s.Score(content, expected, submitted)
	v := verdict(score, nil, fmt.Sprintf("Moyenne des critères : %.0f%%.", score*100), &domain.Feedback{})
	v.NeedsHelp = score < NeedsHelpBelow
	v.SkillScores = map[string]float64{}

	if sp := content.SigningPractice; sp != nil {
		for _, m := range sp.EnabledMetrics() {
			ms := domain.Clamp01(submitted.Metrics[m])
			v.SkillScores[m] = ms
			if ms < SuggestBelow {
				v.Suggestions = append(v.Suggestions, metricSuggestions[m])
				v.Feedback.Improvements = append(v.Feedback.Improvements, m)
			} else if ms >= NeedsHelpBelow {
				v.Feedback.Strengths = append(v.Feedback.Strengths, m)
			}
		}
		if !v.NeedsHelp && len(sp.Variations) > 0 {
			v.Feedback.NextSteps = append(v.Feedback.NextSteps, "Essaie la variation « "+sp.Variations[0].ID+" ».")
		}
	}
	if v.NeedsHelp {
		v.Feedback.NextSteps = append(v.Feedback.NextSteps, "Refais l'exercice en suivant chaque étape lentement.")
	}
	return v
}

// Simplify assesses one metric less, drops the last step and the variations
func (s *SigningPractice) Simplify(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	sp := out.SigningPractice
	if sp == nil {
		return out, expected.Clone()
	}
	if n := len(sp.EnabledMetrics()); n > minEnabledMetrics {
		sp.Metrics = buildMetrics(n - 1)
	}
	if n := len(sp.Steps); n > minSteps {
		sp.Steps = buildSteps(n - 1)
	}
	sp.Variations = nil
	return out, expected.Clone()
}

// Complicate assesses one more metric and adds the next step
func (s *SigningPractice) Complicate(content domain.Content, expected domain.Answer) (domain.Content, domain.Answer) {
	out := content.Clone()
	sp := out.SigningPractice
	if sp == nil {
		return out, expected.Clone()
	}
	sp.Metrics = buildMetrics(min(len(sp.EnabledMetrics())+1, len(performanceMetrics)))
	sp.Steps = buildSteps(min(len(sp.Steps)+1, len(practiceSteps)))
	return out, expected.Clone()
}
