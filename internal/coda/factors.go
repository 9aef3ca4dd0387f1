package coda

import (
	"slices"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/evolution"
)

const (
	// RecentWindow is the number of experiences in a success-rate window
	RecentWindow = 5
	// PlateauBand is the widest score spread still counted as a plateau
	PlateauBand = 0.15
	// moodSmoothing weighs a new score against the previous valence
	moodSmoothing = 0.3
)

func mean(xs []Experience) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x.Score
	}
	return sum / float64(len(xs))
}

func tail[T any](xs []T, n int) []T {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// factors summarises history (oldest first, excluding cur) for the detectors
func factors(history []Experience, cur Experience, explored []string, moodDelta float64) evolution.Factors {
	all := append(slices.Clone(history), cur)

	f := evolution.Factors{
		Score:     cur.Score,
		MoodDelta: moodDelta,
		Cultural:  slices.Contains(cur.Categories, CulturalCategory),
	}

	recent := tail(all, RecentWindow)
	f.SuccessRate = mean(recent)
	f.PreviousSuccessRate = f.SuccessRate
	if len(all) > RecentWindow {
		f.PreviousSuccessRate = mean(tail(all[:len(all)-RecentWindow], RecentWindow))
	}

	// widest run of trailing prior scores within PlateauBand
	lo, hi := 1.0, 0.0
	for i := len(history) - 1; i >= 0; i-- {
		s := history[i].Score
		if max(hi, s)-min(lo, s) > PlateauBand {
			break
		}
		lo, hi = min(lo, s), max(hi, s)
		f.PlateauLength++
	}
	if f.PlateauLength > 0 {
		f.PlateauMean = mean(history[len(history)-f.PlateauLength:])
	}

	var onConcept []Experience
	for _, e := range all {
		if e.ConceptID == cur.ConceptID {
			onConcept = append(onConcept, e)
		}
	}
	f.ConceptAttempts = len(onConcept)
	f.ConceptMastery = mean(onConcept)

	for i := len(all) - 1; i >= 0 && all[i].Success(); i-- {
		f.ConsecutiveSuccesses++
	}
	if cur.Success() {
		for i := len(history) - 1; i >= 0 && !history[i].Success(); i-- {
			f.FailuresBefore++
		}
	}

	byMethod := map[domain.ExerciseType][]Experience{}
	succeeded := map[domain.ExerciseType]bool{}
	for _, e := range all {
		byMethod[e.Method] = append(byMethod[e.Method], e)
		if e.Success() {
			succeeded[e.Method] = true
		}
	}
	f.MethodsTried = len(succeeded)
	if len(byMethod) > 1 {
		var sum float64
		for _, t := range domain.AllExerciseTypes() {
			es, ok := byMethod[t]
			if !ok {
				continue
			}
			rate := mean(es)
			sum += rate
			if rate > f.BestMethodRate {
				f.BestMethodRate, f.BestMethod, f.MethodTries = rate, string(t), len(es)
			}
		}
		f.MethodAverage = sum / float64(len(byMethod))
	}

	for _, c := range cur.Categories {
		if !slices.Contains(explored, c) {
			f.NewCategory = true
			break
		}
	}
	return f
}

// nextMood smooths the score into valence and names the resulting mood
func nextMood(valence, score float64) (Mood, float64) {
	v := domain.Clamp01((1-moodSmoothing)*valence + moodSmoothing*score)
	switch {
	case score >= 0.9 && v >= 0.6:
		return MoodExcited, v
	case v >= 0.7:
		return MoodConfident, v
	case v >= 0.5:
		return MoodCurious, v
	case v >= 0.35:
		return MoodNeutral, v
	default:
		return MoodFrustrated, v
	}
}

// levelUp reports whether the latest experiences at level justify moving on
func levelUp(experiences []Experience, level domain.CECRLLevel) bool {
	if level.Next() == level {
		return false
	}
	var atLevel []Experience
	for _, e := range experiences {
		if e.Level == level {
			atLevel = append(atLevel, e)
		}
	}
	if len(atLevel) < LevelUpWindow {
		return false
	}
	return mean(tail(atLevel, LevelUpWindow)) >= LevelUpScore
}
