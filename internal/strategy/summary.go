package strategy

import (
	"quantetf/internal/domain"
	"quantetf/internal/threshold"
)

// Summary aggregates a set of per-instrument results.
//
// WinRate is computed from the raw win and loss counts. LegacyWins and
// LegacyWinRate reproduce the older reconstruction that re-derived each
// instrument's wins as round(win_rate * num_trades).
type Summary struct {
	Label           string  `json:"label"`
	Count           int     `json:"count"`
	Trades          int     `json:"trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	SuppressedDays  int     `json:"suppressed_days"`
	MeanReturn      float64 `json:"mean_return"`
	WinRate         float64 `json:"win_rate"`
	LegacyWins      int     `json:"legacy_wins"`
	LegacyWinRate   float64 `json:"legacy_win_rate"`
	MeanMaxDrawdown float64 `json:"mean_max_drawdown"`
	MeanVolatility  float64 `json:"mean_volatility"`
	MeanSharpe      float64 `json:"mean_sharpe"`
}

// Summarize aggregates results under label. An empty input yields a zero
// Summary with only the label set.
func Summarize(label string, results []*BacktestResult) Summary {
	s := Summary{Label: label, Count: len(results)}
	if len(results) == 0 {
		return s
	}
	var ret, dd, vol, sharpe float64
	for _, r := range results {
		s.Trades += r.NumTrades
		s.Wins += r.Wins
		s.Losses += r.Losses
		s.LegacyWins += r.LegacyWins()
		s.SuppressedDays += r.SuppressedDays
		ret += r.TotalReturn
		dd += r.MaxDrawdown
		vol += r.Volatility
		sharpe += r.Sharpe
	}
	n := float64(len(results))
	s.MeanReturn = ret / n
	s.MeanMaxDrawdown = dd / n
	s.MeanVolatility = vol / n
	s.MeanSharpe = sharpe / n
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
		s.LegacyWinRate = float64(s.LegacyWins) / float64(s.Trades)
	}
	return s
}

// Group labels used by SummarizeByClass.
const (
	GroupWideIndex  = "wide"
	GroupSector     = "sector"
	GroupAggressive = "aggressive"
)

// SummarizeByClass summarizes the wide-index, sector and aggressive
// groups. An instrument can belong to more than one group; empty groups
// are omitted.
func SummarizeByClass(results []*BacktestResult) []Summary {
	groups := map[string][]*BacktestResult{}
	for _, r := range results {
		switch r.Instrument.Class {
		case domain.ClassWideIndex:
			groups[GroupWideIndex] = append(groups[GroupWideIndex], r)
		case domain.ClassSector:
			groups[GroupSector] = append(groups[GroupSector], r)
		}
		if r.Instrument.Aggressive {
			groups[GroupAggressive] = append(groups[GroupAggressive], r)
		}
	}
	var out []Summary
	for _, label := range []string{GroupWideIndex, GroupSector, GroupAggressive} {
		if g := groups[label]; len(g) > 0 {
			out = append(out, Summarize(label, g))
		}
	}
	return out
}

// DiffSummary is the per-group mean of a dynamic/fixed comparison.
type DiffSummary struct {
	Label       string  `json:"label"`
	Count       int     `json:"count"`
	MeanDynamic float64 `json:"mean_dynamic"`
	MeanFixed   float64 `json:"mean_fixed"`
	MeanDiff    float64 `json:"mean_diff"`
}

// SummarizeDiff groups diff rows by instrument class.
func SummarizeDiff(rows []DiffRow) []DiffSummary {
	var out []DiffSummary
	for _, class := range []domain.InstrumentClass{domain.ClassWideIndex, domain.ClassSector} {
		d := DiffSummary{Label: string(class)}
		for _, row := range rows {
			if row.Instrument.Class != class {
				continue
			}
			d.Count++
			d.MeanDynamic += row.Dynamic.TotalReturn
			d.MeanFixed += row.Fixed.TotalReturn
			d.MeanDiff += row.Diff
		}
		if d.Count == 0 {
			continue
		}
		n := float64(d.Count)
		d.MeanDynamic /= n
		d.MeanFixed /= n
		d.MeanDiff /= n
		out = append(out, d)
	}
	return out
}

// ModeCounts tallies the families chosen by walk-forward selection.
func ModeCounts(sels []*Selection) (dynamic, fixed int) {
	for _, s := range sels {
		if s.Mode == threshold.ModeDynamic {
			dynamic++
		} else {
			fixed++
		}
	}
	return dynamic, fixed
}

// SelectionResults extracts the final result of each selection.
func SelectionResults(sels []*Selection) []*BacktestResult {
	out := make([]*BacktestResult, len(sels))
	for i, s := range sels {
		out[i] = s.Result
	}
	return out
}
