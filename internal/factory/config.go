package factory

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/coda/internal/domain"
)

// Scores for priority, quality and load weight lie in [MinScore, MaxScore]
const (
	MinScore = 1
	MaxScore = 10
)

// GeneratorConfig is the per-registration selection data
type GeneratorConfig struct {
	Priority        int               `json:"priority" yaml:"priority"`
	Quality         int               `json:"quality" yaml:"quality"`
	LoadWeight      int               `json:"load_weight" yaml:"load_weight"`
	Enabled         bool              `json:"enabled" yaml:"enabled"`
	MaxConcurrent   int               `json:"max_concurrent" yaml:"max_concurrent"`
	AvgResponseTime time.Duration     `json:"avg_response_time" yaml:"avg_response_time"`
	Settings        map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// DefaultGeneratorConfig returns a mid-range enabled configuration
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Priority:      5,
		Quality:       5,
		LoadWeight:    5,
		Enabled:       true,
		MaxConcurrent: 10,
	}
}

// Validate checks every score is in range
func (c GeneratorConfig) Validate() error {
	scores := []struct {
		name  string
		value int
	}{
		{"priority", c.Priority},
		{"quality", c.Quality},
		{"load_weight", c.LoadWeight},
	}
	for _, s := range scores {
		if s.value < MinScore || s.value > MaxScore {
			return domain.NewValidationError(s.name, "%d outside [%d,%d]", s.value, MinScore, MaxScore)
		}
	}
	if c.MaxConcurrent < 0 {
		return domain.NewValidationError("max_concurrent", "must not be negative")
	}
	return nil
}

// SelectionContext describes the caller of GetGenerator. It is part of the
// instance cache key.
type SelectionContext struct {
	UserID               string            `json:"user_id,omitempty"`
	Level                domain.CECRLLevel `json:"level,omitempty"`
	Difficulty           float64           `json:"difficulty,omitempty"`
	FocusAreas           []string          `json:"focus_areas,omitempty"`
	PreferredGenerator   string            `json:"preferred_generator,omitempty"`
	RequiredCapabilities []string          `json:"required_capabilities,omitempty"`
}

// Fingerprint is a stable string for the context. Slice order does not matter.
func (c SelectionContext) Fingerprint() string {
	focus := slices.Clone(c.FocusAreas)
	slices.Sort(focus)
	caps := slices.Clone(c.RequiredCapabilities)
	slices.Sort(caps)
	return fmt.Sprintf("u=%s|l=%s|d=%.2f|f=%s|p=%s|c=%s",
		c.UserID, c.Level, c.Difficulty,
		strings.Join(focus, ","), c.PreferredGenerator, strings.Join(caps, ","))
}
