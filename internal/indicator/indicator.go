// Package indicator annotates daily bars with the technical indicators the
// scoring models and the simulation consume.
package indicator

import (
	"math"

	"quantetf/internal/domain"
)

// Compute returns bars annotated with moving averages, RSI, MACD, Bollinger
// bands, ATR and volume MA. Bars must be in ascending date order. Values
// without enough history are NaN.
func Compute(bars []domain.Bar, atrPeriod int) []domain.FeatureBar {
	n := len(bars)
	out := make([]domain.FeatureBar, n)
	if n == 0 {
		return out
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}

	ma5 := SMA(closes, 5)
	ma20 := SMA(closes, 20)
	ma60 := SMA(closes, 60)
	rsi6 := RSI(closes, 6)
	rsi14 := RSI(closes, 14)
	macd, signal, hist := MACD(closes, 12, 26, 9)
	std20 := RollingStd(closes, 20)
	atr := ATR(bars, atrPeriod)
	volMA5 := SMA(volumes, 5)

	for i, b := range bars {
		out[i] = domain.FeatureBar{
			Bar: b,
			Indicators: domain.Indicators{
				MA5:        ma5[i],
				MA20:       ma20[i],
				MA60:       ma60[i],
				RSI6:       rsi6[i],
				RSI14:      rsi14[i],
				MACD:       macd[i],
				MACDSignal: signal[i],
				MACDHist:   hist[i],
				BBMiddle:   ma20[i],
				BBUpper:    ma20[i] + 2*std20[i],
				BBLower:    ma20[i] - 2*std20[i],
				ATR:        atr[i],
				VolumeMA5:  volMA5[i],
			},
		}
	}
	return out
}

// DropIncomplete removes warm-up rows whose indicators are not all defined,
// so the simulation never sees an undefined ATR.
func DropIncomplete(bars []domain.FeatureBar) []domain.FeatureBar {
	out := make([]domain.FeatureBar, 0, len(bars))
	for _, b := range bars {
		if b.Indicators.Complete() {
			out = append(out, b)
		}
	}
	return out
}

// SMA is the simple moving average over period values.
func SMA(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= period {
			sum -= xs[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// RollingStd is the sample standard deviation over period values.
func RollingStd(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period < 2 {
		return out
	}
	for i := period - 1; i < len(xs); i++ {
		window := xs[i-period+1 : i+1]
		var mean float64
		for _, x := range window {
			mean += x
		}
		mean /= float64(period)
		var ss float64
		for _, x := range window {
			ss += (x - mean) * (x - mean)
		}
		out[i] = math.Sqrt(ss / float64(period-1))
	}
	return out
}

// EMA is an exponential moving average with alpha 2/(span+1), seeded with
// the first value.
func EMA(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2 / (float64(span) + 1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI uses simple rolling means of gains and losses rather than Wilder
// smoothing. A window with no losses yields 100.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	gains := nanSlice(n)
	losses := nanSlice(n)
	for i := 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		gains[i], losses[i] = math.Max(d, 0), math.Max(-d, 0)
	}

	out := nanSlice(n)
	for i := period; i < n; i++ {
		var g, l float64
		for j := i - period + 1; j <= i; j++ {
			g += gains[j]
			l += losses[j]
		}
		switch {
		case l == 0 && g == 0:
			// flat window: leave undefined
		case l == 0:
			out[i] = 100
		default:
			rs := g / l
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// MACD returns the fast-slow EMA difference, its signal EMA and histogram.
func MACD(closes []float64, fast, slow, signalSpan int) (macd, signal, hist []float64) {
	ef := EMA(closes, fast)
	es := EMA(closes, slow)
	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = ef[i] - es[i]
	}
	signal = EMA(macd, signalSpan)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = macd[i] - signal[i]
	}
	return macd, signal, hist
}

// ATR is the rolling mean of the true range over period bars. The first bar
// has no previous close, so its true range is just high - low.
func ATR(bars []domain.Bar, period int) []float64 {
	n := len(bars)
	tr := make([]float64, n)
	if n > 0 {
		tr[0] = bars[0].High - bars[0].Low
	}
	for i := 1; i < n; i++ {
		prev := bars[i-1].Close
		tr[i] = math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prev), math.Abs(bars[i].Low-prev)))
	}

	out := nanSlice(n)
	if period <= 0 {
		return out
	}
	for i := period - 1; i < n; i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += tr[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// RollingMax is the maximum over the trailing period values.
func RollingMax(xs []float64, period int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(xs); i++ {
		m := math.Inf(-1)
		for _, x := range xs[i-period+1 : i+1] {
			m = math.Max(m, x)
		}
		out[i] = m
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
