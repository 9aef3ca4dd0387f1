package strategy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// BlankMarker replaces hidden words in rendered text
const BlankMarker = "____"

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Template is a sentence with named placeholders, e.g. "Je signe {a}."
type Template struct {
	Text         string
	Placeholders []string // in order of first appearance
}

// NewTemplate parses the placeholders of text
func NewTemplate(text string) Template {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return Template{Text: text, Placeholders: names}
}

// Bind substitutes values positionally, one per placeholder
func (t Template) Bind(values ...string) (string, error) {
	if len(values) != len(t.Placeholders) {
		return "", fmt.Errorf("template %q wants %d values, got %d", t.Text, len(t.Placeholders), len(values))
	}
	pairs := make([]string, 0, 2*len(values))
	for i, name := range t.Placeholders {
		pairs = append(pairs, "{"+name+"}", values[i])
	}
	return strings.NewReplacer(pairs...).Replace(t.Text), nil
}

func templates(texts ...string) []Template {
	out := make([]Template, len(texts))
	for i, s := range texts {
		out[i] = NewTemplate(s)
	}
	return out
}

// sentenceTemplates escalate in syntactic complexity from A1 to C2. Every
// level offers templates with one, two and three placeholders.
var sentenceTemplates = map[domain.CECRLLevel][]Template{
	domain.LevelA1: templates(
		"Le signe du jour est {a}.",
		"Je signe {a}.",
		"Je connais {a} et {b}.",
		"Je signe {a}, {b} et {c}.",
	),
	domain.LevelA2: templates(
		"Chaque matin, je signe {a} à ma famille.",
		"Au marché, on utilise {a} et {b}.",
		"Avec mes amis, je signe {a}, {b} puis {c}.",
	),
	domain.LevelB1: templates(
		"Quand on parle de {a}, il faut regarder l'expression du visage.",
		"Hier, j'ai appris à signer {a} et {b} avec mon professeur.",
		"Pendant le cours, nous avons révisé {a}, {b} et {c} avant la pause.",
	),
	domain.LevelB2: templates(
		"Bien qu'il soit fréquent, le signe {a} reste difficile à placer dans l'espace.",
		"Si tu veux expliquer {a}, commence par montrer {b}.",
		"Lors de la réunion, l'interprète a enchaîné {a}, {b} et {c} sans hésiter.",
	),
	domain.LevelC1: templates(
		"Le choix de {a} dépend du contexte dans lequel le récit s'inscrit.",
		"Pour rendre {a} plus vivant, le signeur s'appuie sur {b} et modifie son regard.",
		"Dans ce récit, {a} introduit le personnage, {b} situe l'action et {c} conclut la scène.",
	),
	domain.LevelC2: templates(
		"Comprendre {a} suppose de connaître l'histoire de la communauté sourde.",
		"Les linguistes rapprochent {a} de {b} pour décrire la grammaire spatiale.",
		"En évoquant {a}, {b} et {c}, la conférencière retrace un siècle de luttes linguistiques.",
	),
}

// templatesFor returns the templates of level with exactly n placeholders
func templatesFor(level domain.CECRLLevel, n int) []Template {
	var out []Template
	for _, t := range sentenceTemplates[level] {
		if len(t.Placeholders) == n {
			out = append(out, t)
		}
	}
	return out
}
