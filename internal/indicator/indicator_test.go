package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantetf/internal/domain"
)

func risingBars(n int) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		if i%3 == 0 {
			c -= 2 // keep RSI losses non-zero
		}
		bars[i] = domain.Bar{
			Symbol:    "510300.SH",
			Timestamp: start.AddDate(0, 0, i),
			Open:      c - 0.2,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    int64(1000 + i),
		}
	}
	return bars
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-12)
	assert.InDelta(t, 3.0, got[3], 1e-12)
	assert.InDelta(t, 4.0, got[4], 1e-12)
}

func TestRollingStdSample(t *testing.T) {
	got := RollingStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	// sample std of the classic example (population std is 2).
	assert.InDelta(t, math.Sqrt(32.0/7.0), got[7], 1e-12)
}

func TestEMASeededWithFirstValue(t *testing.T) {
	got := EMA([]float64{10, 20}, 3) // alpha 0.5
	assert.Equal(t, 10.0, got[0])
	assert.InDelta(t, 15.0, got[1], 1e-12)
}

func TestRSI(t *testing.T) {
	up := RSI([]float64{1, 2, 3, 4}, 3)
	assert.True(t, math.IsNaN(up[2]), "needs period deltas")
	assert.Equal(t, 100.0, up[3], "no losses")

	mixed := RSI([]float64{10, 11, 10, 12}, 3) // gains 3, losses 1
	assert.InDelta(t, 75.0, mixed[3], 1e-9)
}

func TestATR(t *testing.T) {
	bars := []domain.Bar{
		{High: 11, Low: 9, Close: 10},
		{High: 12, Low: 10, Close: 11}, // tr = 2
		{High: 15, Low: 12, Close: 14}, // tr = max(3, 4, 1) = 4
		{High: 14, Low: 10, Close: 10}, // tr = max(4, 0, 4) = 4
	}
	got := ATR(bars, 2)
	assert.True(t, math.IsNaN(got[0]))
	assert.InDelta(t, 2.0, got[1], 1e-12) // (2 + 2) / 2, first tr is high-low
	assert.InDelta(t, 3.0, got[2], 1e-12)
	assert.InDelta(t, 4.0, got[3], 1e-12)
}

func TestRollingMax(t *testing.T) {
	got := RollingMax([]float64{1, 5, 3, 2}, 2)
	assert.Equal(t, []float64{5, 5, 3}, got[1:])
}

func TestComputeAndDropIncomplete(t *testing.T) {
	bars := risingBars(80)
	feats := Compute(bars, 14)
	require.Len(t, feats, 80)

	assert.True(t, math.IsNaN(feats[58].MA60))
	assert.False(t, math.IsNaN(feats[59].MA60))
	assert.InDelta(t, feats[30].MA20, feats[30].BBMiddle, 1e-12)
	assert.Greater(t, feats[30].BBUpper, feats[30].BBLower)

	complete := DropIncomplete(feats)
	require.Len(t, complete, 21, "MA60 warm-up drops the first 59 rows")
	assert.Equal(t, bars[59].Timestamp, complete[0].Timestamp)
	for _, f := range complete {
		assert.False(t, math.IsNaN(f.ATR))
	}
}

func TestComputeEmpty(t *testing.T) {
	assert.Empty(t, Compute(nil, 14))
}
