package strategy

import (
	"fmt"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/threshold"
)

// Selection is the outcome of walk-forward policy selection for one
// instrument.
type Selection struct {
	Symbol   string         `json:"symbol"`
	Mode     threshold.Mode `json:"mode"`
	Fallback bool           `json:"fallback"`

	// TrainDynamic and TrainFixed are nil on fallback.
	TrainDynamic *BacktestResult `json:"train_dynamic,omitempty"`
	TrainFixed   *BacktestResult `json:"train_fixed,omitempty"`

	// Result is the evaluation-window run, or the full-window run on
	// fallback.
	Result *BacktestResult `json:"result"`
}

// SplitDays returns the train and evaluation lengths in calendar days. When
// the lookback is shorter than train+test the split is re-balanced to two
// thirds training, with floors of 30 and 10 days.
func SplitDays(lookback, train, test int) (int, int) {
	if lookback > 0 && lookback < train+test {
		train = max(30, lookback*2/3)
		test = max(10, lookback-train)
	}
	return train, test
}

// ChooseDynamic reports whether the dynamic training run beats the fixed
// one: strictly higher Sharpe, or equal Sharpe and strictly higher return.
func ChooseDynamic(dynamic, fixed Metrics) bool {
	if dynamic.Sharpe > fixed.Sharpe {
		return true
	}
	return dynamic.Sharpe == fixed.Sharpe && dynamic.TotalReturn > fixed.TotalReturn
}

// Selector chooses between the dynamic and fixed threshold families per
// instrument on a training sub-window and applies the winner, unmodified,
// to the later evaluation sub-window.
type Selector struct {
	bt       *Backtester
	resolver *threshold.Resolver
	cfg      config.WalkForwardConfig
}

// NewSelector creates a Selector.
func NewSelector(bt *Backtester, resolver *threshold.Resolver, cfg config.WalkForwardConfig) *Selector {
	return &Selector{bt: bt, resolver: resolver, cfg: cfg}
}

// Select runs walk-forward selection over a series already restricted to
// the lookback window of lookbackDays.
//
// The evaluation sub-window covers the last test days and the training
// sub-window the train days before it. Training runs the dynamic family
// without overrides and the fixed family with them. The evaluation run
// starts from a fresh score history so no training-window score feeds its
// thresholds. A training window under MinTrainBars or an evaluation window
// under MinTestBars falls back to the full window under the default policy.
func (s *Selector) Select(inst domain.Instrument, bars []domain.FeatureBar, scores []float64, lookbackDays int, overrides map[string]float64) (*Selection, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", inst.Symbol, ErrInsufficientBars)
	}
	trainDays, testDays := SplitDays(lookbackDays, s.cfg.TrainDays, s.cfg.TestDays)
	evalStart := bars[len(bars)-1].Timestamp.AddDate(0, 0, -testDays)
	trainStart := evalStart.AddDate(0, 0, -trainDays)

	first, split := 0, 0
	for split < len(bars) && bars[split].Timestamp.Before(evalStart) {
		if bars[split].Timestamp.Before(trainStart) {
			first++
		}
		split++
	}
	trainBars, trainScores := bars[first:split], scores[first:split]
	evalBars, evalScores := bars[split:], scores[split:]

	if len(trainBars) < s.cfg.MinTrainBars || len(evalBars) < s.cfg.MinTestBars {
		mode := s.resolver.DefaultMode(inst, overrides)
		res, err := s.bt.Run(inst, bars, scores, s.resolver.Policy(inst, mode, overrides))
		if err != nil {
			return nil, err
		}
		return &Selection{Symbol: inst.Symbol, Mode: mode, Fallback: true, Result: res}, nil
	}

	dyn, err := s.bt.Run(inst, trainBars, trainScores, s.resolver.Policy(inst, threshold.ModeDynamic, nil))
	if err != nil {
		return nil, fmt.Errorf("training dynamic: %w", err)
	}
	fix, err := s.bt.Run(inst, trainBars, trainScores, s.resolver.Policy(inst, threshold.ModeFixed, overrides))
	if err != nil {
		return nil, fmt.Errorf("training fixed: %w", err)
	}

	mode := threshold.ModeFixed
	evalOverrides := overrides
	if ChooseDynamic(dyn.Metrics, fix.Metrics) {
		mode = threshold.ModeDynamic
		evalOverrides = nil
	}
	res, err := s.bt.Run(inst, evalBars, evalScores, s.resolver.Policy(inst, mode, evalOverrides))
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", mode, err)
	}
	return &Selection{
		Symbol:       inst.Symbol,
		Mode:         mode,
		TrainDynamic: dyn,
		TrainFixed:   fix,
		Result:       res,
	}, nil
}
