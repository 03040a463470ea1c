package classify

import (
	"testing"

	"neural_consensus/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Scores
	}{
		{name: "empty is all default", in: "", want: Scores{}},
		{name: "no keywords", in: "the experts mostly agreed", want: Scores{Logic: 70, Creativity: 60, Safety: 75, Present: true}},
		{name: "novel theory boosts creativity only", in: "a novel theory of mind", want: Scores{Logic: 70, Creativity: 90, Safety: 75, Present: true}},
		{name: "evidence boosts logic", in: "strong evidence was cited", want: Scores{Logic: 95, Creativity: 60, Safety: 75, Present: true}},
		{name: "clear boosts safety", in: "the answer is clear", want: Scores{Logic: 70, Creativity: 60, Safety: 85, Present: true}},
		{name: "case sensitive", in: "Evidence and Safety and Novel", want: Scores{Logic: 70, Creativity: 60, Safety: 75, Present: true}},
		{name: "substring match", in: "logically unclear creativeness", want: Scores{Logic: 95, Creativity: 90, Safety: 85, Present: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.in)
			if got != tc.want {
				t.Fatalf("Classify(%q)=%+v want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestRiskTier(t *testing.T) {
	cases := map[string]domain.RiskTier{
		"Low":    domain.RiskLow,
		"Medium": domain.RiskMedium,
		"High":   domain.RiskHigh,
		"":       domain.RiskUnknown,
		"low":    domain.RiskUnknown,
		"Severe": domain.RiskUnknown,
	}
	for in, want := range cases {
		if got := RiskTier(in); got != want {
			t.Fatalf("RiskTier(%q)=%q want %q", in, got, want)
		}
	}
}

func TestControversyBand(t *testing.T) {
	if ControversyBand(8) != BandHigh || ControversyBand(7) != BandMedium || ControversyBand(4.5) != BandMedium || ControversyBand(4) != BandLow {
		t.Fatalf("unexpected banding")
	}
}

func TestScoresClampAndDefault(t *testing.T) {
	var r domain.RunResult
	if Confidence(r) != 0 || Controversy(r) != 0 {
		t.Fatalf("absent scores should be zero")
	}
	hi, lo := 140.0, -3.0
	r.ConfidenceScore = &hi
	r.ControversyScore = &lo
	if Confidence(r) != 100 {
		t.Fatalf("confidence=%v want 100", Confidence(r))
	}
	if Controversy(r) != 0 {
		t.Fatalf("controversy=%v want 0", Controversy(r))
	}
}
