// Package threshold resolves the buy-score cutoff applied to each bar: fixed
// per-instrument values, a rolling-quantile dynamic threshold, explicit
// overrides, and the bear-market gate.
package threshold

import (
	"math"
	"sort"
)

// Dynamic computes an adaptive threshold from the trailing score window.
type Dynamic struct {
	Lookback int
	Quantile float64
	Min      float64
	Max      float64
}

// Window returns the trailing Lookback scores ending at and including i.
// Fewer are returned near the start of the series; nothing after i is ever
// included.
func (d Dynamic) Window(scores []float64, i int) []float64 {
	if i < 0 || i >= len(scores) {
		return nil
	}
	start := 0
	if d.Lookback > 0 {
		start = max(0, i-d.Lookback+1)
	}
	return scores[start : i+1]
}

// Compute returns clamp(quantile(window, q), Min, Max). An empty window
// yields Max.
func (d Dynamic) Compute(window []float64) float64 {
	if len(window) == 0 {
		return d.Max
	}
	return Clamp(Quantile(window, d.Quantile), d.Min, d.Max)
}

// At is Compute over Window(scores, i).
func (d Dynamic) At(scores []float64, i int) float64 {
	return d.Compute(d.Window(scores, i))
}

// Quantile returns the q-th quantile of xs using linear interpolation
// between closest ranks. NaN values are ignored; an empty input yields NaN.
func Quantile(xs []float64, q float64) float64 {
	sorted := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			sorted = append(sorted, x)
		}
	}
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)

	q = Clamp(q, 0, 1)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Clamp bounds v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
