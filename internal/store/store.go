// Package store defines storage interfaces for persisting and retrieving
// daily bars, externally produced scores, and backtest results.
package store

import (
	"context"
	"errors"
	"time"

	"quantetf/internal/domain"
	"quantetf/internal/strategy"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, market domain.Market, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// ScoreStore persists and retrieves per-date scores produced by an
// external model.
type ScoreStore interface {
	// WriteScores merges scores for symbol, keyed by trading date.
	WriteScores(ctx context.Context, market domain.Market, symbol, model string, scores map[string]float64) error

	// ReadScores returns the stored scores for symbol keyed by trading date.
	ReadScores(ctx context.Context, market domain.Market, symbol string) (map[string]float64, error)
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Symbol string
	Label  string
	Limit  int
}

// ResultStore persists backtest results and their trade logs.
type ResultStore interface {
	// SaveResult stores res under label and returns the new run ID.
	SaveResult(ctx context.Context, label string, res *strategy.BacktestResult) (int64, error)

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id int64) (*Run, error)

	// ListRuns returns the most recent runs matching f.
	ListRuns(ctx context.Context, f RunFilter) ([]Run, error)

	// ListTrades returns the trade log of a run in execution order.
	ListTrades(ctx context.Context, runID int64) ([]TradeRow, error)
}
