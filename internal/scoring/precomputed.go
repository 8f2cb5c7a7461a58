package scoring

import (
	"context"
	"fmt"

	"quantetf/internal/domain"
)

// Compile-time interface check.
var _ Scorer = (*Precomputed)(nil)

// ScoreSource supplies externally produced scores keyed by trading date.
type ScoreSource interface {
	ReadScores(ctx context.Context, market domain.Market, symbol string) (map[string]float64, error)
}

// Precomputed aligns scores produced by an external model with the bar
// series. Dates without a stored score get 0, which never meets a buy
// threshold.
type Precomputed struct {
	src    ScoreSource
	market domain.Market
}

// NewPrecomputed creates a Precomputed scorer reading from src.
func NewPrecomputed(src ScoreSource, market domain.Market) *Precomputed {
	return &Precomputed{src: src, market: market}
}

// Name returns "model".
func (s *Precomputed) Name() string { return "model" }

// Score looks up each bar's date in the stored score series.
func (s *Precomputed) Score(ctx context.Context, symbol string, bars []domain.FeatureBar) ([]float64, error) {
	byDate, err := s.src.ReadScores(ctx, s.market, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading scores for %s: %w", symbol, err)
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = byDate[b.Date()]
	}
	return out, nil
}
