// Package domain defines the core value types shared across the quantetf
// packages: daily bars, indicator annotations, trades, and instrument
// metadata.
package domain

import (
	"math"
	"time"
)

// DateLayout is the canonical trading-date key format.
const DateLayout = "2006-01-02"

// Market identifies the exchange group a bar series belongs to. It doubles
// as the top-level directory in the parquet store.
type Market string

const (
	MarketCN Market = "cn"
	MarketUS Market = "us"
)

// ---------------------------------------------------------------------------
// Bars
// ---------------------------------------------------------------------------

// Bar is a single daily OHLCV record.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Date returns the bar's trading date as a YYYY-MM-DD key.
func (b Bar) Date() string {
	return b.Timestamp.Format(DateLayout)
}

// Indicators holds the technical annotations computed for a bar. Values that
// are not yet defined (insufficient history) are NaN.
type Indicators struct {
	MA5        float64
	MA20       float64
	MA60       float64
	RSI6       float64
	RSI14      float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	ATR        float64
	VolumeMA5  float64
}

// Complete reports whether every indicator is defined.
func (ind Indicators) Complete() bool {
	for _, v := range [...]float64{
		ind.MA5, ind.MA20, ind.MA60, ind.RSI6, ind.RSI14,
		ind.MACD, ind.MACDSignal, ind.MACDHist,
		ind.BBUpper, ind.BBMiddle, ind.BBLower, ind.ATR, ind.VolumeMA5,
	} {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// FeatureBar is a bar annotated with its indicators.
type FeatureBar struct {
	Bar
	Indicators
}

// ---------------------------------------------------------------------------
// Trades
// ---------------------------------------------------------------------------

// TradeAction is the kind of fill recorded in a trade log.
type TradeAction string

const (
	ActionBuy        TradeAction = "BUY"
	ActionSellStop   TradeAction = "SELL_STOP"
	ActionSellSignal TradeAction = "SELL_SIGNAL"
	ActionSellEOD    TradeAction = "SELL_EOD"
)

// IsSell reports whether the action closes a position.
func (a TradeAction) IsSell() bool {
	return a == ActionSellStop || a == ActionSellSignal || a == ActionSellEOD
}

// Trade is an immutable entry in a simulation's trade log. PnL, Return and
// HoldDays are only set on sell actions.
type Trade struct {
	Date     string
	Action   TradeAction
	Price    float64
	Shares   int64
	Score    float64
	PnL      *float64 // absolute: (sell - entry) * shares
	Return   *float64 // relative: (sell - entry) / entry
	HoldDays *int
}

// Position is an open long holding. It exists only between a BUY fill and
// the next sell; TrailingStop never decreases while it is open.
type Position struct {
	EntryDate         string
	EntryIndex        int
	EntryPrice        float64
	Shares            int64
	InitialStop       float64
	TrailingStop      float64
	HighestSinceEntry float64
}

// EquityPoint is one mark-to-market sample of a simulation's equity curve.
type EquityPoint struct {
	Date   string
	Equity float64
}

// ---------------------------------------------------------------------------
// Instruments
// ---------------------------------------------------------------------------

// InstrumentClass groups instruments for policy defaults and summaries.
type InstrumentClass string

const (
	ClassWideIndex InstrumentClass = "wide"
	ClassSector    InstrumentClass = "sector"
	ClassOther     InstrumentClass = ""
)

// Instrument describes a tradable symbol in the configured universe.
type Instrument struct {
	Symbol     string          `yaml:"symbol"`
	Name       string          `yaml:"name"`
	Class      InstrumentClass `yaml:"class"`
	Aggressive bool            `yaml:"-"`
}
