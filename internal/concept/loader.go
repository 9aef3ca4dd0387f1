package concept

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// CatalogFile represents the YAML structure of a concept catalog
type CatalogFile struct {
	Version  int           `yaml:"version"`
	Concepts []ConceptFile `yaml:"concepts"`
}

// ConceptFile represents one concept entry in a catalog file
type ConceptFile struct {
	ID           string   `yaml:"id"`
	Text         string   `yaml:"text"`
	Level        string   `yaml:"level"`
	Categories   []string `yaml:"categories"`
	Related      []string `yaml:"related"`
	Difficulty   float64  `yaml:"difficulty"`
	Frequency    int      `yaml:"frequency"`
	VideoURL     string   `yaml:"video_url"`
	ImageURL     string   `yaml:"image_url"`
	Explanation  string   `yaml:"explanation"`
	Examples     []string `yaml:"examples"`
	Synonyms     []string `yaml:"synonyms"`
	Contexts     []string `yaml:"contexts"`
	GrammarNotes []string `yaml:"grammar_notes"`
}

// DefaultCatalog returns the built-in LSF catalog
func DefaultCatalog() (*Catalog, error) {
	cat, err := Parse(defaultCatalogYAML)
	if err != nil {
		return nil, fmt.Errorf("parse default catalog: %w", err)
	}
	return cat, nil
}

// LoadFile reads and validates a catalog file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}
	return file.toCatalog(), nil
}

// Validate reports every problem in the file at once
func (f *CatalogFile) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Concepts))

	for i, c := range f.Concepts {
		where := fmt.Sprintf("concepts[%d]", i)
		if c.ID == "" {
			errs = append(errs, domain.NewValidationError(where+".id", "is required"))
			continue
		}
		where = c.ID
		if seen[c.ID] {
			errs = append(errs, domain.NewValidationError(where, "duplicate id"))
		}
		seen[c.ID] = true
		if c.Text == "" {
			errs = append(errs, domain.NewValidationError(where+".text", "is required"))
		}
		if !domain.CECRLLevel(c.Level).IsValid() {
			errs = append(errs, domain.NewValidationError(where+".level", "unknown level %q", c.Level))
		}
		if c.Difficulty < 0 || c.Difficulty > 1 {
			errs = append(errs, domain.NewValidationError(where+".difficulty", "%v outside [0,1]", c.Difficulty))
		}
	}

	for _, c := range f.Concepts {
		for _, rel := range c.Related {
			if !seen[rel] {
				errs = append(errs, domain.NewValidationError(c.ID+".related", "unknown concept %q", rel))
			}
		}
	}

	return errors.Join(errs...)
}

func (f *CatalogFile) toCatalog() *Catalog {
	now := time.Now()
	cat := &Catalog{
		Concepts: make([]domain.Concept, 0, len(f.Concepts)),
		Details:  make(map[string]domain.ConceptDetails, len(f.Concepts)),
	}

	for _, c := range f.Concepts {
		concept := domain.Concept{
			ID:         c.ID,
			Text:       c.Text,
			VideoURL:   c.VideoURL,
			ImageURL:   c.ImageURL,
			Level:      domain.CECRLLevel(c.Level),
			Categories: c.Categories,
			RelatedIDs: c.Related,
			Difficulty: c.Difficulty,
			Frequency:  c.Frequency,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		cat.Concepts = append(cat.Concepts, concept)
		cat.Details[c.ID] = domain.ConceptDetails{
			Concept:      concept,
			Explanation:  c.Explanation,
			Examples:     c.Examples,
			Synonyms:     c.Synonyms,
			Contexts:     c.Contexts,
			GrammarNotes: c.GrammarNotes,
		}
	}
	return cat
}
