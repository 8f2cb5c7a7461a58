package strategy

import (
	"context"
	"fmt"
	"time"

	"quantetf/internal/domain"
	"quantetf/internal/indicator"
	"quantetf/internal/regime"
	"quantetf/internal/scoring"
)

// Series is one instrument's simulation input: complete feature bars and
// the aligned raw scores.
type Series struct {
	Instrument domain.Instrument
	Bars       []domain.FeatureBar
	Scores     []float64
}

// SeriesLoader supplies simulation inputs per instrument.
type SeriesLoader interface {
	Series(ctx context.Context, inst domain.Instrument) (*Series, error)
}

// BarReader reads stored daily bars.
type BarReader interface {
	ReadBars(ctx context.Context, market domain.Market, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// Loader builds Series from stored bars: indicators are computed over the
// whole history, warm-up rows with undefined values are dropped, and the
// scorer runs over what remains.
type Loader struct {
	bars      BarReader
	scorer    scoring.Scorer
	market    domain.Market
	atrPeriod int
	start     time.Time
	end       time.Time
}

// NewLoader creates a Loader reading bars dated within [start, end].
func NewLoader(bars BarReader, scorer scoring.Scorer, market domain.Market, atrPeriod int, start, end time.Time) *Loader {
	return &Loader{
		bars:      bars,
		scorer:    scorer,
		market:    market,
		atrPeriod: atrPeriod,
		start:     start,
		end:       end,
	}
}

// Series loads, annotates and scores inst.
func (l *Loader) Series(ctx context.Context, inst domain.Instrument) (*Series, error) {
	raw, err := l.bars.ReadBars(ctx, l.market, inst.Symbol, l.start, l.end)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", inst.Symbol, err)
	}
	feats := indicator.DropIncomplete(indicator.Compute(raw, l.atrPeriod))
	if len(feats) == 0 {
		return nil, fmt.Errorf("%s: no complete bars: %w", inst.Symbol, ErrInsufficientBars)
	}
	scores, err := l.scorer.Score(ctx, inst.Symbol, feats)
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", inst.Symbol, err)
	}
	return &Series{Instrument: inst, Bars: feats, Scores: scores}, nil
}

// Regime builds the bull/bear map from the index series. Warm-up rows are
// kept; their undefined MA60 classifies as bull.
func (l *Loader) Regime(ctx context.Context, indexSymbol string) (*regime.Map, error) {
	raw, err := l.bars.ReadBars(ctx, l.market, indexSymbol, l.start, l.end)
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", indexSymbol, err)
	}
	return regime.Classify(indicator.Compute(raw, l.atrPeriod)), nil
}
