// Package strategy drives the backtest simulation: the per-instrument
// orchestrator, walk-forward policy selection, multi-instrument runs and
// their aggregate summaries.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/engine"
	"quantetf/internal/threshold"
)

// ErrInsufficientBars is returned when a series is too short to simulate.
var ErrInsufficientBars = errors.New("insufficient bars")

// BacktestResult holds the outcome of one (instrument, policy) simulation.
// It is never mutated after Run returns.
type BacktestResult struct {
	Instrument     domain.Instrument    `json:"instrument"`
	Policy         threshold.Kind       `json:"policy"`
	Mode           threshold.Mode       `json:"mode"`
	StartDate      string               `json:"start_date"`
	EndDate        string               `json:"end_date"`
	Bars           int                  `json:"bars"`
	InitialCapital float64              `json:"initial_capital"`
	SuppressedDays int                  `json:"suppressed_days"`
	Trades         []domain.Trade       `json:"trades"`
	Equity         []domain.EquityPoint `json:"equity"`
	Metrics
}

// LegacyWins reconstructs the win count from the rounded rate, as older
// reports did. It can differ from Wins only through rounding.
func (r *BacktestResult) LegacyWins() int {
	return int(math.RoundToEven(r.WinRate * float64(r.NumTrades)))
}

// Backtester replays a scored bar series through the position state
// machine and computes performance metrics. It holds only immutable
// configuration and is safe for concurrent use.
type Backtester struct {
	cfg  config.BacktestConfig
	risk *engine.RiskManager
}

// NewBacktester creates a Backtester with the given settings.
func NewBacktester(cfg config.BacktestConfig, risk *engine.RiskManager) *Backtester {
	return &Backtester{cfg: cfg, risk: risk}
}

// Run simulates inst over bars with the aligned raw scores, resolving the
// threshold for every bar through p.
//
// The decision for bar i is executed at bar i+1's open. The equity curve is
// marked at each bar's close before that bar's decision executes, and ends
// with the final equity at the last bar. A position still open at the end
// is closed with SELL_EOD at the last close.
func (bt *Backtester) Run(inst domain.Instrument, bars []domain.FeatureBar, scores []float64, p threshold.Policy) (*BacktestResult, error) {
	if len(bars) != len(scores) {
		return nil, fmt.Errorf("%s: %d bars but %d scores", inst.Symbol, len(bars), len(scores))
	}
	if len(bars) < 2 || len(bars) < bt.cfg.MinBars {
		return nil, fmt.Errorf("%s: %d bars: %w", inst.Symbol, len(bars), ErrInsufficientBars)
	}
	for _, b := range bars {
		if math.IsNaN(b.ATR) {
			return nil, fmt.Errorf("%s: undefined ATR on %s", inst.Symbol, b.Date())
		}
	}

	dates := make([]string, len(bars))
	for i, b := range bars {
		dates[i] = b.Date()
	}
	sig := threshold.Apply(p, dates, scores)

	eng := engine.New(bt.risk, bt.cfg.InitialCapital, bt.cfg.ExitThreshold, inst.Aggressive)
	equity := make([]domain.EquityPoint, 0, len(bars))
	last := len(bars) - 1
	for i := 0; i < last; i++ {
		equity = append(equity, domain.EquityPoint{Date: dates[i], Equity: eng.Equity(bars[i].Close)})
		eng.Step(i, bars[i], bars[i+1], sig.Scores[i], sig.Thresholds[i])
	}
	eng.Liquidate(last, bars[last], sig.Scores[last])
	equity = append(equity, domain.EquityPoint{Date: dates[last], Equity: eng.Cash()})

	trades := eng.Trades()
	mode := threshold.ModeFixed
	if sig.Base == threshold.KindDynamic {
		mode = threshold.ModeDynamic
	}
	return &BacktestResult{
		Instrument:     inst,
		Policy:         sig.Policy,
		Mode:           mode,
		StartDate:      dates[0],
		EndDate:        dates[last],
		Bars:           len(bars),
		InitialCapital: bt.cfg.InitialCapital,
		SuppressedDays: sig.Suppressed,
		Trades:         trades,
		Equity:         equity,
		Metrics: ComputeMetrics(bt.cfg.InitialCapital, equity, trades,
			bt.cfg.AnnualizationFactor, bt.cfg.RiskFreeRate),
	}, nil
}

// Window returns the bars (and aligned scores) dated within days calendar
// days of the last bar. A non-positive days returns the inputs unchanged.
func Window(bars []domain.FeatureBar, scores []float64, days int) ([]domain.FeatureBar, []float64) {
	if days <= 0 || len(bars) == 0 {
		return bars, scores
	}
	start := bars[len(bars)-1].Timestamp.AddDate(0, 0, -days)
	return From(bars, scores, start)
}

// From returns the suffix of bars (and aligned scores) dated on or after
// start.
func From(bars []domain.FeatureBar, scores []float64, start time.Time) ([]domain.FeatureBar, []float64) {
	i := 0
	for i < len(bars) && bars[i].Timestamp.Before(start) {
		i++
	}
	return bars[i:], scores[i:]
}
