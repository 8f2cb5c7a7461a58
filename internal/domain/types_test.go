package domain

import (
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify Trade can be instantiated with zero values.
	trade := Trade{}
	if trade.PnL != nil || trade.Return != nil || trade.HoldDays != nil {
		t.Error("expected nil PnL/Return/HoldDays for zero-value Trade")
	}

	// Verify enum constants are defined correctly.
	if ActionBuy != "BUY" {
		t.Errorf("ActionBuy = %q, want %q", ActionBuy, "BUY")
	}
	if MarketUS != "us" || MarketCN != "cn" {
		t.Error("Market constants have unexpected values")
	}
}

func TestBarDate(t *testing.T) {
	b := Bar{Timestamp: time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)}
	if got := b.Date(); got != "2025-03-07" {
		t.Errorf("Date() = %q, want %q", got, "2025-03-07")
	}
}

func TestTradeActionIsSell(t *testing.T) {
	cases := map[TradeAction]bool{
		ActionBuy:        false,
		ActionSellStop:   true,
		ActionSellSignal: true,
		ActionSellEOD:    true,
	}
	for action, want := range cases {
		if got := action.IsSell(); got != want {
			t.Errorf("%s.IsSell() = %v, want %v", action, got, want)
		}
	}
}

func TestIndicatorsComplete(t *testing.T) {
	ind := Indicators{}
	if !ind.Complete() {
		t.Error("zero Indicators should be complete")
	}
	ind.ATR = math.NaN()
	if ind.Complete() {
		t.Error("Indicators with NaN ATR should not be complete")
	}
}
