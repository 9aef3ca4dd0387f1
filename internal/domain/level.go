package domain

import "slices"

// CECRLLevel is a step of the six-tier proficiency scale, A1 easiest
type CECRLLevel string

const (
	LevelA1 CECRLLevel = "A1"
	LevelA2 CECRLLevel = "A2"
	LevelB1 CECRLLevel = "B1"
	LevelB2 CECRLLevel = "B2"
	LevelC1 CECRLLevel = "C1"
	LevelC2 CECRLLevel = "C2"
)

var levels = []CECRLLevel{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

// AllLevels returns the levels from easiest to hardest
func AllLevels() []CECRLLevel {
	return slices.Clone(levels)
}

// IsValid reports whether l is one of the six levels
func (l CECRLLevel) IsValid() bool {
	return slices.Contains(levels, l)
}

// Index returns the position of the level on the scale, or -1
func (l CECRLLevel) Index() int {
	return slices.Index(levels, l)
}

// Next returns the following level, or l itself at C2
func (l CECRLLevel) Next() CECRLLevel {
	i := l.Index()
	if i < 0 || i == len(levels)-1 {
		return l
	}
	return levels[i+1]
}

// Difficulty thresholds for MapDifficultyToCECRL. Each bound is inclusive.
const (
	thresholdA1 = 0.16
	thresholdA2 = 0.33
	thresholdB1 = 0.50
	thresholdB2 = 0.66
	thresholdC1 = 0.83
)

// MapDifficultyToCECRL maps a difficulty in [0,1] to a level
func MapDifficultyToCECRL(d float64) CECRLLevel {
	switch {
	case d <= thresholdA1:
		return LevelA1
	case d <= thresholdA2:
		return LevelA2
	case d <= thresholdB1:
		return LevelB1
	case d <= thresholdB2:
		return LevelB2
	case d <= thresholdC1:
		return LevelC1
	default:
		return LevelC2
	}
}

// Clamp01 restricts v to [0,1]
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
