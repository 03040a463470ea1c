// Package classify derives display-only scores from a consensus result.
// Nothing here is statistical: the scores come from a fixed keyword table
// and must stay bit-exact with it.
package classify

import (
	"math"
	"strings"

	"neural_consensus/internal/domain"
)

type Scores struct {
	Logic      int
	Creativity int
	Safety     int
	// Present is false when there was no reasoning text to score.
	Present bool
}

type axis struct {
	base     int
	boosted  int
	keywords []string
}

var (
	logicAxis      = axis{base: 70, boosted: 95, keywords: []string{"logic", "evidence", "flaw"}}
	creativityAxis = axis{base: 60, boosted: 90, keywords: []string{"creative", "novel", "theory"}}
	safetyAxis     = axis{base: 75, boosted: 85, keywords: []string{"safety", "risk", "clear"}}
)

func (a axis) score(text string) int {
	for _, kw := range a.keywords {
		if strings.Contains(text, kw) {
			return a.boosted
		}
	}
	return a.base
}

// Classify scores reasoning text. Matching is a case-sensitive substring
// test, so "Evidence" does not boost logic.
func Classify(reasoning string) Scores {
	if reasoning == "" {
		return Scores{}
	}
	return Scores{
		Logic:      logicAxis.score(reasoning),
		Creativity: creativityAxis.score(reasoning),
		Safety:     safetyAxis.score(reasoning),
		Present:    true,
	}
}

// RiskTier maps the backend's hallucination label to a display tier.
func RiskTier(label string) domain.RiskTier {
	switch domain.RiskTier(label) {
	case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
		return domain.RiskTier(label)
	default:
		return domain.RiskUnknown
	}
}

type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

func ControversyBand(score float64) Band {
	switch {
	case score > 7:
		return BandHigh
	case score > 4:
		return BandMedium
	default:
		return BandLow
	}
}

// Confidence returns the confidence score clamped to [0,100], 0 when absent.
func Confidence(r domain.RunResult) float64 {
	if r.ConfidenceScore == nil {
		return 0
	}
	return clamp(*r.ConfidenceScore, 0, 100)
}

// Controversy returns the controversy score clamped to [0,10], 0 when absent.
func Controversy(r domain.RunResult) float64 {
	if r.ControversyScore == nil {
		return 0
	}
	return clamp(*r.ControversyScore, 0, 10)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
