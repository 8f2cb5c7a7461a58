package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantetf/internal/config"
	"quantetf/internal/domain"
)

func bar(day int, o, h, l, c, atr float64) domain.FeatureBar {
	return domain.FeatureBar{
		Bar: domain.Bar{
			Symbol:    "510300.SH",
			Timestamp: time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
			Open:      o, High: h, Low: l, Close: c,
		},
		Indicators: domain.Indicators{ATR: atr},
	}
}

func testRisk(mult float64) *RiskManager {
	return NewRiskManager(config.RiskConfig{
		ATRMultiplier:           mult,
		ATRMultiplierAggressive: mult * 2,
		ExitLookbackPeriod:      22,
		LotSize:                 100,
		CashUtilization:         0.99,
	})
}

func TestStopRatchetAndStopExit(t *testing.T) {
	bars := []domain.FeatureBar{
		bar(3, 100, 101, 99, 100, 5),
		bar(4, 105, 105, 104, 105, 5),
		bar(5, 110, 110, 108, 110, 5),
		bar(6, 96, 97, 95, 95, 5),
		bar(7, 92, 93, 89, 90, 5),
	}
	scores := []float64{0.8, 0.5, 0.5, 0.5, 0.5}
	e := New(testRisk(2), 100000, 0.4, false)

	buy := e.Step(0, bars[0], bars[1], scores[0], 0.6)
	require.NotNil(t, buy)
	assert.Equal(t, domain.ActionBuy, buy.Action)
	assert.Equal(t, 105.0, buy.Price)
	assert.Equal(t, int64(900), buy.Shares)
	pos, ok := e.Position()
	require.True(t, ok)
	assert.Equal(t, 95.0, pos.InitialStop)
	assert.Equal(t, 95.0, pos.TrailingStop)

	assert.Nil(t, e.Step(1, bars[1], bars[2], scores[1], 0.6))
	pos, _ = e.Position()
	assert.Equal(t, 95.0, pos.TrailingStop)

	// low of 95 equals the stop: not a hit.
	assert.Nil(t, e.Step(2, bars[2], bars[3], scores[2], 0.6))
	pos, _ = e.Position()
	assert.Equal(t, 110.0, pos.HighestSinceEntry)
	assert.Equal(t, 100.0, pos.TrailingStop)

	sell := e.Step(3, bars[3], bars[4], scores[3], 0.6)
	require.NotNil(t, sell)
	assert.Equal(t, domain.ActionSellStop, sell.Action)
	assert.Equal(t, "2025-03-07", sell.Date)
	assert.Equal(t, 92.0, sell.Price, "gapped below the stop fills at the open")
	require.NotNil(t, sell.PnL)
	assert.InDelta(t, -11700.0, *sell.PnL, 1e-9)
	assert.InDelta(t, (92.0-105.0)/105.0, *sell.Return, 1e-12)
	assert.Equal(t, 3, *sell.HoldDays)
	assert.Equal(t, Flat, e.State())
	assert.InDelta(t, 100000-11700.0, e.Cash(), 1e-9)
}

func TestStopFillsAtStopWhenOpenAbove(t *testing.T) {
	e := New(testRisk(2), 100000, 0.4, false)
	require.NotNil(t, e.Step(0, bar(3, 100, 100, 100, 100, 5), bar(4, 100, 100, 100, 100, 5), 0.9, 0.6))

	sell := e.Step(1, bar(4, 100, 100, 100, 100, 5), bar(5, 99, 99, 80, 85, 5), 0.9, 0.6)
	require.NotNil(t, sell)
	assert.Equal(t, domain.ActionSellStop, sell.Action)
	assert.Equal(t, 90.0, sell.Price)
}

func TestSignalExitAtNextOpen(t *testing.T) {
	e := New(testRisk(2), 100000, 0.4, false)
	require.NotNil(t, e.Step(0, bar(3, 100, 100, 100, 100, 1), bar(4, 100, 101, 99, 100, 1), 0.9, 0.6))

	sell := e.Step(1, bar(4, 100, 101, 99, 100, 1), bar(5, 102, 103, 101, 102, 1), 0.3, 0.6)
	require.NotNil(t, sell)
	assert.Equal(t, domain.ActionSellSignal, sell.Action)
	assert.Equal(t, 102.0, sell.Price)
}

func TestStopHasPriorityOverSignal(t *testing.T) {
	e := New(testRisk(2), 100000, 0.4, false)
	require.NotNil(t, e.Step(0, bar(3, 100, 100, 100, 100, 1), bar(4, 100, 100, 100, 100, 1), 0.9, 0.6))

	sell := e.Step(1, bar(4, 100, 100, 100, 100, 1), bar(5, 97, 97, 90, 92, 1), 0.1, 0.6)
	require.NotNil(t, sell)
	assert.Equal(t, domain.ActionSellStop, sell.Action)
}

func TestTrailingStopNeverDecreases(t *testing.T) {
	e := New(testRisk(2), 100000, 0.4, false)
	bars := []domain.FeatureBar{bar(3, 100, 100, 99, 100, 1)}
	highs := []float64{100, 104, 103, 108, 106, 107, 109, 105}
	atrs := []float64{1, 1, 3, 1, 4, 0.5, 2, 6}
	for i, h := range highs {
		bars = append(bars, bar(4+i, h-1, h, h-0.5, h-0.5, atrs[i]))
	}

	require.NotNil(t, e.Step(0, bars[0], bars[1], 0.9, 0.6))
	prev := math.Inf(-1)
	for i := 1; i < len(bars)-1; i++ {
		e.Step(i, bars[i], bars[i+1], 0.9, 0.6)
		pos, ok := e.Position()
		if !ok {
			break
		}
		assert.GreaterOrEqual(t, pos.TrailingStop, prev)
		prev = pos.TrailingStop
	}
}

func TestZeroSharesIgnored(t *testing.T) {
	e := New(testRisk(2), 50, 0.4, false)
	assert.Nil(t, e.Step(0, bar(3, 100, 100, 100, 100, 1), bar(4, 100, 100, 100, 100, 1), 0.9, 0.6))
	assert.Equal(t, Flat, e.State())
	assert.Empty(t, e.Trades())
	assert.Equal(t, 50.0, e.Cash())
}

func TestLiquidate(t *testing.T) {
	e := New(testRisk(2), 100000, 0.4, false)
	assert.Nil(t, e.Liquidate(0, bar(3, 1, 1, 1, 1, 1), 0))

	require.NotNil(t, e.Step(0, bar(3, 100, 100, 100, 100, 1), bar(4, 100, 100, 100, 100, 1), 0.9, 0.6))
	eod := e.Liquidate(3, bar(6, 110, 111, 109, 110, 1), 0.7)
	require.NotNil(t, eod)
	assert.Equal(t, domain.ActionSellEOD, eod.Action)
	assert.Equal(t, 110.0, eod.Price)
	assert.Equal(t, 2, *eod.HoldDays)
	assert.Len(t, e.Trades(), 2)
}

func TestShares(t *testing.T) {
	rm := testRisk(2)
	assert.Equal(t, int64(900), rm.Shares(100000, 105))
	assert.Equal(t, int64(0), rm.Shares(100000, 0))
	assert.Equal(t, int64(0), rm.Shares(1000, 100))
	for _, price := range []float64{0.7, 3.21, 55, 999.99} {
		assert.Zero(t, rm.Shares(123456, price)%100)
	}
}

func TestLevels(t *testing.T) {
	rm := testRisk(2)
	bars := []domain.FeatureBar{
		bar(3, 10, 11, 9, 10, 0.5),
		bar(4, 10, 12.3456, 9, 11, 0.5),
		bar(5, 11, 11.5, 10, 11.2, 0.4),
	}
	lv, err := rm.Levels(bars, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 11.2, lv.Entry)
	assert.Equal(t, 10.4, lv.InitialStop)
	assert.Equal(t, 11.546, lv.ChandelierStop)
	assert.Equal(t, 0.8, lv.RiskPerShare)

	agg, err := rm.Levels(bars, 12, true)
	require.NoError(t, err)
	assert.Equal(t, 4.0, agg.Multiplier)
	assert.Equal(t, 10.4, agg.InitialStop)

	_, err = rm.Levels(nil, 0, false)
	assert.ErrorIs(t, err, ErrNoATR)
}
