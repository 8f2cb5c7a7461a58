package scoring

import (
	"context"
	"math"

	"quantetf/internal/domain"
)

// Compile-time interface check.
var _ Scorer = (*RuleBased)(nil)

// Weights of the rule-based components. They sum to 100.
const (
	weightRSI    = 30
	weightTrend  = 30
	weightMACD   = 20
	weightVolume = 20

	// minHistory is the number of bars required before a score is issued.
	minHistory = 30
)

// RuleBased is a transparent weighted-rule scorer:
//
//   - RSI14 below 30 earns the full RSI weight, below 50 half of it.
//   - Close above MA20 earns the trend weight.
//   - A fresh MACD golden cross earns the MACD weight, an established one
//     half of it.
//   - An up day on above-average volume earns the volume weight.
//
// The total is normalised to [0, 1] and rounded to 2 decimal places.
type RuleBased struct{}

// NewRuleBased creates a RuleBased scorer.
func NewRuleBased() *RuleBased { return &RuleBased{} }

// Name returns "rule".
func (s *RuleBased) Name() string { return "rule" }

// Score scores every bar from its own history. Bars with fewer than 30 bars
// of history score 0.
func (s *RuleBased) Score(_ context.Context, _ string, bars []domain.FeatureBar) ([]float64, error) {
	out := make([]float64, len(bars))
	for i := minHistory - 1; i < len(bars); i++ {
		out[i] = scoreBar(bars[i], bars[i-1])
	}
	return out, nil
}

func scoreBar(cur, prev domain.FeatureBar) float64 {
	var score float64

	switch {
	case cur.RSI14 < 30:
		score += weightRSI
	case cur.RSI14 < 50:
		score += weightRSI * 0.5
	}

	if cur.Close > cur.MA20 {
		score += weightTrend
	}

	if cur.MACD > cur.MACDSignal {
		if prev.MACD <= prev.MACDSignal {
			score += weightMACD
		} else {
			score += weightMACD * 0.5
		}
	}

	if cur.Close > prev.Close && float64(cur.Volume) > cur.VolumeMA5 {
		score += weightVolume
	}

	total := float64(weightRSI + weightTrend + weightMACD + weightVolume)
	return math.Round(score/total*100) / 100
}
