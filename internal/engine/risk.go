package engine

import (
	"errors"
	"math"

	"quantetf/internal/config"
	"quantetf/internal/domain"
)

// ErrNoATR is returned by Levels when the series has no usable ATR.
var ErrNoATR = errors.New("no ATR available")

// RiskManager derives stop levels and position sizes from the risk
// configuration. It is immutable and safe for concurrent use.
type RiskManager struct {
	cfg config.RiskConfig
}

// NewRiskManager creates a RiskManager with the given risk settings.
func NewRiskManager(cfg config.RiskConfig) *RiskManager {
	return &RiskManager{cfg: cfg}
}

// Multiplier returns the ATR stop multiplier for the instrument class.
// Aggressive (high-beta) instruments use the wider multiplier.
func (rm *RiskManager) Multiplier(aggressive bool) float64 {
	return rm.cfg.Multiplier(aggressive)
}

// InitialStop is entry - k*atr.
func (rm *RiskManager) InitialStop(entry, atr float64, aggressive bool) float64 {
	return entry - rm.Multiplier(aggressive)*atr
}

// ChandelierStop is highest - k*atr.
func (rm *RiskManager) ChandelierStop(highest, atr float64, aggressive bool) float64 {
	return highest - rm.Multiplier(aggressive)*atr
}

// Shares returns the lot-rounded share count affordable with cash at price
// after applying the cash utilization factor. The result is always a
// non-negative multiple of the lot size.
func (rm *RiskManager) Shares(cash, price float64) int64 {
	if price <= 0 || cash <= 0 {
		return 0
	}
	lot := rm.cfg.LotSize
	if lot <= 0 {
		lot = 1
	}
	util := rm.cfg.CashUtilization
	if util <= 0 {
		util = 1
	}
	lots := math.Floor(cash * util / price / float64(lot))
	return int64(lots) * lot
}

// Levels is a snapshot of the stop levels for a prospective or held
// position.
type Levels struct {
	Entry          float64 `json:"entry"`
	ATR            float64 `json:"atr"`
	Multiplier     float64 `json:"multiplier"`
	InitialStop    float64 `json:"initial_stop"`
	ChandelierStop float64 `json:"chandelier_stop"`
	HighestHigh    float64 `json:"highest_high"`
	RiskPerShare   float64 `json:"risk_per_share"`
}

// Levels computes stops from the latest bar of the series. The chandelier
// stop uses the highest high over the configured exit lookback period. A
// non-positive entry defaults to the last close. Values are rounded to 3
// decimal places.
func (rm *RiskManager) Levels(bars []domain.FeatureBar, entry float64, aggressive bool) (Levels, error) {
	if len(bars) == 0 {
		return Levels{}, ErrNoATR
	}
	last := bars[len(bars)-1]
	if math.IsNaN(last.ATR) {
		return Levels{}, ErrNoATR
	}
	if entry <= 0 {
		entry = last.Close
	}

	lookback := rm.cfg.ExitLookbackPeriod
	if lookback <= 0 || lookback > len(bars) {
		lookback = len(bars)
	}
	highest := math.Inf(-1)
	for _, b := range bars[len(bars)-lookback:] {
		highest = math.Max(highest, b.High)
	}

	initial := rm.InitialStop(entry, last.ATR, aggressive)
	return Levels{
		Entry:          round3(entry),
		ATR:            round3(last.ATR),
		Multiplier:     rm.Multiplier(aggressive),
		InitialStop:    round3(initial),
		ChandelierStop: round3(rm.ChandelierStop(highest, last.ATR, aggressive)),
		HighestHigh:    round3(highest),
		RiskPerShare:   round3(entry - initial),
	}, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
