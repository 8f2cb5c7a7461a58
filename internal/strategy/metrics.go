package strategy

import (
	"math"

	"quantetf/internal/domain"
)

// Metrics are the performance statistics derived from one simulation.
type Metrics struct {
	TotalReturn float64 `json:"total_return"`
	WinRate     float64 `json:"win_rate"`
	NumTrades   int     `json:"num_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	FinalEquity float64 `json:"final_equity"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Volatility  float64 `json:"volatility"`
	Sharpe      float64 `json:"sharpe"`
}

// ComputeMetrics derives Metrics from an equity curve and trade log.
//
// Wins and losses count sell trades with a PnL; a zero PnL is a loss.
// Volatility is the sample standard deviation of period-over-period equity
// returns scaled by sqrt(annualization). Sharpe is the annualized mean
// excess return over volatility. Every ratio with a zero denominator is 0.
func ComputeMetrics(initial float64, equity []domain.EquityPoint, trades []domain.Trade, annualization, riskFree float64) Metrics {
	var m Metrics

	m.FinalEquity = initial
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1].Equity
	}
	if initial != 0 {
		m.TotalReturn = (m.FinalEquity - initial) / initial
	}

	for _, t := range trades {
		if !t.Action.IsSell() || t.PnL == nil {
			continue
		}
		if *t.PnL > 0 {
			m.Wins++
		} else {
			m.Losses++
		}
	}
	m.NumTrades = m.Wins + m.Losses
	if m.NumTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.NumTrades)
	}

	m.MaxDrawdown = MaxDrawdown(equity)

	if annualization <= 0 {
		annualization = 1
	}
	rets := periodReturns(equity)
	sd := sampleStd(rets)
	m.Volatility = sd * math.Sqrt(annualization)
	if m.Volatility > 0 {
		excess := mean(rets) - riskFree/annualization
		m.Sharpe = excess * annualization / m.Volatility
	}
	return m
}

// MaxDrawdown returns the largest peak-to-trough decline of the curve as a
// positive fraction of the peak.
func MaxDrawdown(equity []domain.EquityPoint) float64 {
	var peak, worst float64
	for i, p := range equity {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-p.Equity)/peak)
		}
	}
	return worst
}

func periodReturns(equity []domain.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i].Equity/prev-1)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
