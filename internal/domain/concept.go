package domain

import (
	"slices"
	"time"
)

// Concept is a vocabulary or sign item with media and metadata.
// Concepts come from a read-only catalog and are never mutated in place.
type Concept struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	VideoURL   string     `json:"video_url,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	Level      CECRLLevel `json:"level"`
	Categories []string   `json:"categories,omitempty"`
	RelatedIDs []string   `json:"related_ids,omitempty"`
	Difficulty float64    `json:"difficulty"`
	Frequency  int        `json:"frequency"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasMedia reports whether a video or image is attached
func (c Concept) HasMedia() bool {
	return c.VideoURL != "" || c.ImageURL != ""
}

// HasCategory reports whether the concept belongs to any of the given categories
func (c Concept) HasCategory(categories ...string) bool {
	for _, want := range categories {
		if slices.Contains(c.Categories, want) {
			return true
		}
	}
	return false
}

// IsRelatedTo reports whether id is listed as a related concept
func (c Concept) IsRelatedTo(id string) bool {
	return slices.Contains(c.RelatedIDs, id)
}

// ConceptDetails extends a concept with teaching material
type ConceptDetails struct {
	Concept      Concept  `json:"concept"`
	Explanation  string   `json:"explanation,omitempty"`
	Examples     []string `json:"examples,omitempty"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Contexts     []string `json:"contexts,omitempty"`
	GrammarNotes []string `json:"grammar_notes,omitempty"`
}

// SearchCriteria filters a concept search. Zero values disable a filter.
type SearchCriteria struct {
	Level           CECRLLevel `json:"level,omitempty"`
	Categories      []string   `json:"categories,omitempty"`
	MinDifficulty   *float64   `json:"min_difficulty,omitempty"`
	MaxDifficulty   *float64   `json:"max_difficulty,omitempty"`
	ExcludeIDs      []string   `json:"exclude_ids,omitempty"`
	SearchText      string     `json:"search_text,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	SortByFrequency bool       `json:"sort_by_frequency,omitempty"`
	RequireMedia    bool       `json:"require_media,omitempty"`
}
