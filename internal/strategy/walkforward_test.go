package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/engine"
	"quantetf/internal/threshold"
)

func TestSplitDays(t *testing.T) {
	tests := []struct {
		lookback, train, test int
		wantTrain, wantTest   int
	}{
		{270, 180, 90, 180, 90},
		{365, 180, 90, 180, 90},
		{90, 180, 90, 60, 30},
		{20, 180, 90, 30, 10},
		{0, 180, 90, 180, 90},
	}
	for _, tt := range tests {
		gotTrain, gotTest := SplitDays(tt.lookback, tt.train, tt.test)
		assert.Equal(t, tt.wantTrain, gotTrain, "lookback %d", tt.lookback)
		assert.Equal(t, tt.wantTest, gotTest, "lookback %d", tt.lookback)
	}
}

func TestChooseDynamic(t *testing.T) {
	assert.True(t, ChooseDynamic(Metrics{Sharpe: 1.2}, Metrics{Sharpe: 0.9}))
	assert.False(t, ChooseDynamic(Metrics{Sharpe: 0.9}, Metrics{Sharpe: 1.2}))
	assert.True(t, ChooseDynamic(Metrics{Sharpe: 1, TotalReturn: 0.2}, Metrics{Sharpe: 1, TotalReturn: 0.1}))
	assert.False(t, ChooseDynamic(Metrics{Sharpe: 1, TotalReturn: 0.1}, Metrics{Sharpe: 1, TotalReturn: 0.1}))
}

// decliningSeries is a steady downtrend with open == close, so a held
// position only ever loses value.
func decliningSeries(n int) ([]domain.FeatureBar, []float64) {
	bars := make([]domain.FeatureBar, n)
	scores := make([]float64, n)
	for i := range bars {
		c := 100 - 0.1*float64(i)
		bars[i] = domain.FeatureBar{
			Bar: domain.Bar{
				Symbol:    "512480.SH",
				Timestamp: day0.AddDate(0, 0, i),
				Open:      c, High: c + 0.05, Low: c - 0.05, Close: c,
			},
			Indicators: domain.Indicators{ATR: 1},
		}
		scores[i] = 0.5
	}
	return bars, scores
}

func testSelector() *Selector {
	cfg := config.Default()
	cfg.WalkForward.TrainDays = 60
	cfg.WalkForward.TestDays = 30
	bt := NewBacktester(cfg.Backtest, engine.NewRiskManager(cfg.Risk))
	return NewSelector(bt, threshold.NewResolver(cfg.Threshold, nil), cfg.WalkForward)
}

func TestSelectPicksDynamicOnTraining(t *testing.T) {
	inst := domain.Instrument{Symbol: "512480.SH", Class: domain.ClassSector}
	bars, scores := decliningSeries(120)
	// The override only reaches the fixed family: fixed trades the
	// downtrend and loses, dynamic (floor 0.55) never buys.
	overrides := map[string]float64{"512480.SH": 0.3}

	sel, err := testSelector().Select(inst, bars, scores, 120, overrides)
	require.NoError(t, err)
	require.False(t, sel.Fallback)

	require.NotNil(t, sel.TrainFixed)
	require.NotNil(t, sel.TrainDynamic)
	assert.Less(t, sel.TrainFixed.Sharpe, sel.TrainDynamic.Sharpe)
	assert.Empty(t, sel.TrainDynamic.Trades)
	assert.Equal(t, 60, sel.TrainDynamic.Bars)
	assert.Equal(t, threshold.KindOverride, sel.TrainFixed.Policy)

	assert.Equal(t, threshold.ModeDynamic, sel.Mode)
	assert.Equal(t, threshold.ModeDynamic, sel.Result.Mode)
	assert.Equal(t, threshold.KindBearGated, sel.Result.Policy, "overrides dropped for the dynamic winner")
	assert.Equal(t, 31, sel.Result.Bars)
	assert.Equal(t, bars[89].Date(), sel.Result.StartDate)
}

func TestSelectFallsBackOnShortWindow(t *testing.T) {
	inst := domain.Instrument{Symbol: "510300.SH", Class: domain.ClassWideIndex}
	bars, scores := decliningSeries(25)

	sel, err := testSelector().Select(inst, bars, scores, 120, nil)
	require.NoError(t, err)
	assert.True(t, sel.Fallback)
	assert.Nil(t, sel.TrainDynamic)
	assert.Equal(t, threshold.ModeFixed, sel.Mode, "wide index defaults to fixed")
	assert.Equal(t, 25, sel.Result.Bars)
}
