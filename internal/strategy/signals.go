package strategy

import (
	"context"
	"sort"

	"quantetf/internal/domain"
	"quantetf/internal/engine"
	"quantetf/internal/threshold"
)

// SignalAction is the daily recommendation for an instrument.
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalWait SignalAction = "WAIT"
)

// Strength labels attached to a Signal.
const (
	StrengthStrong     = "Strong Buy"
	StrengthBuy        = "Buy"
	StrengthWeak       = "Weak Buy"
	StrengthBearFilter = "Bear Filter"
	StrengthLowScore   = "Low Score"
)

// Signal is the resolved recommendation for one instrument on one day.
// Score is the raw score; Threshold and Suppressed come from the policy
// evaluated at that bar.
type Signal struct {
	Date       string            `json:"date"`
	Instrument domain.Instrument `json:"instrument"`
	Close      float64           `json:"close"`
	Score      float64           `json:"score"`
	Threshold  float64           `json:"threshold"`
	Policy     threshold.Kind    `json:"policy"`
	Market     string            `json:"market"`
	Action     SignalAction      `json:"action"`
	Strength   string            `json:"strength"`
	Suppressed bool              `json:"suppressed"`
	Levels     *engine.Levels    `json:"levels,omitempty"`
}

// Strength grades a decision. Buys are graded by raw score; waits are
// attributed to the bear gate when it suppressed the bar.
func Strength(action SignalAction, score float64, suppressed bool) string {
	switch {
	case action == SignalBuy && score > 0.7:
		return StrengthStrong
	case action == SignalBuy && score > 0.6:
		return StrengthBuy
	case action == SignalBuy:
		return StrengthWeak
	case suppressed:
		return StrengthBearFilter
	}
	return StrengthLowScore
}

// Signals evaluates every instrument's resolved policy over the trailing
// window of days (zero means the latest bar only) and reports one Signal
// per bar. The threshold is computed against the full loaded score history
// so the dynamic window is filled on the first reported day. Stop levels
// are attached to a bar whenever its ATR is defined.
//
// Rows are ordered newest date first, then by descending score.
func (r *Runner) Signals(ctx context.Context, insts []domain.Instrument, days int, opts Options) ([]Signal, error) {
	perInst, err := fanOut(ctx, r, insts, func(s *Series) ([]Signal, error) {
		if len(s.Bars) == 0 || len(s.Bars) != len(s.Scores) {
			return nil, ErrInsufficientBars
		}
		mode := opts.Mode
		if mode == "" {
			mode = r.resolver.DefaultMode(s.Instrument, opts.Overrides)
		}
		p := r.resolver.Policy(s.Instrument, mode, opts.Overrides)

		first := len(s.Bars) - 1
		if days > 0 {
			window, _ := Window(s.Bars, s.Scores, days)
			first = len(s.Bars) - len(window)
		}

		out := make([]Signal, 0, len(s.Bars)-first)
		for i := first; i < len(s.Bars); i++ {
			out = append(out, r.signalAt(s, p, i))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	var rows []Signal
	for _, sigs := range perInst {
		rows = append(rows, sigs...)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date > rows[j].Date
		}
		return rows[i].Score > rows[j].Score
	})
	return rows, nil
}

func (r *Runner) signalAt(s *Series, p threshold.Policy, i int) Signal {
	bar := s.Bars[i]
	date := bar.Date()
	d := p.Evaluate(s.Scores, i, date)

	action := SignalWait
	if d.Score >= d.Threshold {
		action = SignalBuy
	}
	sig := Signal{
		Date:       date,
		Instrument: s.Instrument,
		Close:      bar.Close,
		Score:      s.Scores[i],
		Threshold:  d.Threshold,
		Policy:     p.Kind(),
		Market:     r.resolver.Status(date),
		Action:     action,
		Strength:   Strength(action, s.Scores[i], d.Suppressed),
		Suppressed: d.Suppressed,
	}
	if lv, err := r.bt.risk.Levels(s.Bars[:i+1], 0, s.Instrument.Aggressive); err == nil {
		sig.Levels = &lv
	}
	return sig
}

// LatestSignals keeps only the most recent row per instrument.
func LatestSignals(rows []Signal) []Signal {
	seen := make(map[string]bool)
	var out []Signal
	for _, s := range rows {
		if seen[s.Instrument.Symbol] {
			continue
		}
		seen[s.Instrument.Symbol] = true
		out = append(out, s)
	}
	return out
}
