// Package engine implements the per-instrument position state machine:
// next-bar entries sized to whole lots, ATR initial stops, chandelier
// trailing stops, and signal exits.
package engine

import (
	"math"

	"quantetf/internal/domain"
)

// State is the position state of an Engine.
type State int

const (
	Flat State = iota
	Long
)

func (s State) String() string {
	if s == Long {
		return "LONG"
	}
	return "FLAT"
}

// Engine owns the cash, the single position slot and the trade log for one
// instrument's simulation. It is not safe for concurrent use; each
// simulation creates its own.
type Engine struct {
	risk          *RiskManager
	aggressive    bool
	exitThreshold float64

	cash   float64
	pos    *domain.Position
	trades []domain.Trade
}

// New creates an Engine in the FLAT state holding initialCash.
func New(risk *RiskManager, initialCash, exitThreshold float64, aggressive bool) *Engine {
	return &Engine{
		risk:          risk,
		aggressive:    aggressive,
		exitThreshold: exitThreshold,
		cash:          initialCash,
	}
}

// State returns FLAT or LONG.
func (e *Engine) State() State {
	if e.pos != nil {
		return Long
	}
	return Flat
}

// Position returns a copy of the open position, if any.
func (e *Engine) Position() (domain.Position, bool) {
	if e.pos == nil {
		return domain.Position{}, false
	}
	return *e.pos, true
}

// Cash returns the uninvested cash balance.
func (e *Engine) Cash() float64 { return e.cash }

// Equity marks the account to market at price.
func (e *Engine) Equity(price float64) float64 {
	if e.pos == nil {
		return e.cash
	}
	return e.cash + float64(e.pos.Shares)*price
}

// Trades returns a copy of the trade log.
func (e *Engine) Trades() []domain.Trade {
	out := make([]domain.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// Step evaluates the decision made at bar i (cur) and executes it at bar
// i+1 (next). score and threshold are the effective values resolved for
// bar i. It returns the trade emitted, if any.
//
// While LONG the exits are checked in priority order: stop hit on the next
// bar's low, then signal exit. When neither fires the trailing stop is
// ratcheted using bar i.
func (e *Engine) Step(i int, cur, next domain.FeatureBar, score, threshold float64) *domain.Trade {
	if e.pos == nil {
		if score >= threshold {
			return e.enter(i+1, next, cur.ATR, score)
		}
		return nil
	}

	if next.Low < e.pos.TrailingStop {
		price := math.Min(next.Open, e.pos.TrailingStop)
		return e.exit(i+1, next.Date(), price, score, domain.ActionSellStop)
	}
	if score < e.exitThreshold {
		return e.exit(i+1, next.Date(), next.Open, score, domain.ActionSellSignal)
	}

	e.pos.HighestSinceEntry = math.Max(e.pos.HighestSinceEntry, cur.High)
	candidate := e.risk.ChandelierStop(e.pos.HighestSinceEntry, cur.ATR, e.aggressive)
	e.pos.TrailingStop = math.Max(e.pos.TrailingStop, candidate)
	return nil
}

// Liquidate closes any open position at the last bar's close with a
// SELL_EOD action. The fill is notional and exists for statistics.
func (e *Engine) Liquidate(i int, last domain.FeatureBar, score float64) *domain.Trade {
	if e.pos == nil {
		return nil
	}
	return e.exit(i, last.Date(), last.Close, score, domain.ActionSellEOD)
}

func (e *Engine) enter(idx int, fill domain.FeatureBar, atr, score float64) *domain.Trade {
	price := fill.Open
	shares := e.risk.Shares(e.cash, price)
	if shares <= 0 {
		return nil
	}

	stop := e.risk.InitialStop(price, atr, e.aggressive)
	e.cash -= float64(shares) * price
	e.pos = &domain.Position{
		EntryDate:         fill.Date(),
		EntryIndex:        idx,
		EntryPrice:        price,
		Shares:            shares,
		InitialStop:       stop,
		TrailingStop:      stop,
		HighestSinceEntry: price,
	}

	t := domain.Trade{
		Date:   fill.Date(),
		Action: domain.ActionBuy,
		Price:  price,
		Shares: shares,
		Score:  score,
	}
	e.trades = append(e.trades, t)
	return &t
}

func (e *Engine) exit(idx int, date string, price, score float64, action domain.TradeAction) *domain.Trade {
	pos := e.pos
	e.cash += float64(pos.Shares) * price
	e.pos = nil

	pnl := (price - pos.EntryPrice) * float64(pos.Shares)
	ret := (price - pos.EntryPrice) / pos.EntryPrice
	hold := idx - pos.EntryIndex

	t := domain.Trade{
		Date:     date,
		Action:   action,
		Price:    price,
		Shares:   pos.Shares,
		Score:    score,
		PnL:      &pnl,
		Return:   &ret,
		HoldDays: &hold,
	}
	e.trades = append(e.trades, t)
	return &t
}
