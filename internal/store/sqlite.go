package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"

	"quantetf/internal/domain"
	"quantetf/internal/strategy"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	label           TEXT    NOT NULL,
	symbol          TEXT    NOT NULL,
	name            TEXT    NOT NULL DEFAULT '',
	class           TEXT    NOT NULL DEFAULT '',
	policy          TEXT    NOT NULL,
	mode            TEXT    NOT NULL,
	start_date      TEXT    NOT NULL,
	end_date        TEXT    NOT NULL,
	bars            INTEGER NOT NULL,
	initial_capital REAL    NOT NULL,
	final_equity    REAL    NOT NULL,
	total_return    REAL    NOT NULL,
	win_rate        REAL    NOT NULL,
	num_trades      INTEGER NOT NULL,
	wins            INTEGER NOT NULL,
	losses          INTEGER NOT NULL,
	max_drawdown    REAL    NOT NULL,
	volatility      REAL    NOT NULL,
	sharpe          REAL    NOT NULL,
	suppressed_days INTEGER NOT NULL,
	created_at      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol);

CREATE TABLE IF NOT EXISTS trades (
	run_id    INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	date      TEXT    NOT NULL,
	action    TEXT    NOT NULL,
	price     REAL    NOT NULL,
	shares    INTEGER NOT NULL,
	score     REAL    NOT NULL,
	pnl       REAL,
	ret       REAL,
	hold_days INTEGER,
	PRIMARY KEY (run_id, seq)
);
`

// Run is a persisted backtest result summary.
type Run struct {
	ID             int64   `db:"id" json:"id"`
	Label          string  `db:"label" json:"label"`
	Symbol         string  `db:"symbol" json:"symbol"`
	Name           string  `db:"name" json:"name"`
	Class          string  `db:"class" json:"class"`
	Policy         string  `db:"policy" json:"policy"`
	Mode           string  `db:"mode" json:"mode"`
	StartDate      string  `db:"start_date" json:"start_date"`
	EndDate        string  `db:"end_date" json:"end_date"`
	Bars           int     `db:"bars" json:"bars"`
	InitialCapital float64 `db:"initial_capital" json:"initial_capital"`
	FinalEquity    float64 `db:"final_equity" json:"final_equity"`
	TotalReturn    float64 `db:"total_return" json:"total_return"`
	WinRate        float64 `db:"win_rate" json:"win_rate"`
	NumTrades      int     `db:"num_trades" json:"num_trades"`
	Wins           int     `db:"wins" json:"wins"`
	Losses         int     `db:"losses" json:"losses"`
	MaxDrawdown    float64 `db:"max_drawdown" json:"max_drawdown"`
	Volatility     float64 `db:"volatility" json:"volatility"`
	Sharpe         float64 `db:"sharpe" json:"sharpe"`
	SuppressedDays int     `db:"suppressed_days" json:"suppressed_days"`
	CreatedAt      string  `db:"created_at" json:"created_at"`
}

// TradeRow is a persisted trade log entry.
type TradeRow struct {
	RunID    int64    `db:"run_id" json:"run_id"`
	Seq      int      `db:"seq" json:"seq"`
	Date     string   `db:"date" json:"date"`
	Action   string   `db:"action" json:"action"`
	Price    float64  `db:"price" json:"price"`
	Shares   int64    `db:"shares" json:"shares"`
	Score    float64  `db:"score" json:"score"`
	PnL      *float64 `db:"pnl" json:"pnl,omitempty"`
	Return   *float64 `db:"ret" json:"return,omitempty"`
	HoldDays *int     `db:"hold_days" json:"hold_days,omitempty"`
}

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}
	// modernc applies _pragma on every new connection.
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts the run and its trade log in one transaction.
func (s *SQLiteStore) SaveResult(ctx context.Context, label string, res *strategy.BacktestResult) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	run := Run{
		Label:          label,
		Symbol:         res.Instrument.Symbol,
		Name:           res.Instrument.Name,
		Class:          string(res.Instrument.Class),
		Policy:         string(res.Policy),
		Mode:           string(res.Mode),
		StartDate:      res.StartDate,
		EndDate:        res.EndDate,
		Bars:           res.Bars,
		InitialCapital: res.InitialCapital,
		FinalEquity:    res.FinalEquity,
		TotalReturn:    res.TotalReturn,
		WinRate:        res.WinRate,
		NumTrades:      res.NumTrades,
		Wins:           res.Wins,
		Losses:         res.Losses,
		MaxDrawdown:    res.MaxDrawdown,
		Volatility:     res.Volatility,
		Sharpe:         res.Sharpe,
		SuppressedDays: res.SuppressedDays,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	}
	r, err := tx.NamedExecContext(ctx, `
		INSERT INTO runs (label, symbol, name, class, policy, mode, start_date, end_date,
			bars, initial_capital, final_equity, total_return, win_rate, num_trades,
			wins, losses, max_drawdown, volatility, sharpe, suppressed_days, created_at)
		VALUES (:label, :symbol, :name, :class, :policy, :mode, :start_date, :end_date,
			:bars, :initial_capital, :final_equity, :total_return, :win_rate, :num_trades,
			:wins, :losses, :max_drawdown, :volatility, :sharpe, :suppressed_days, :created_at)`, run)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, t := range res.Trades {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO trades (run_id, seq, date, action, price, shares, score, pnl, ret, hold_days)
			VALUES (:run_id, :seq, :date, :action, :price, :shares, :score, :pnl, :ret, :hold_days)`,
			tradeRow(id, i, t)); err != nil {
			return 0, fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// GetRun retrieves a run by ID, returning ErrNotFound when absent.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %d: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns runs newest first. A non-positive limit defaults to 100.
func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT * FROM runs WHERE 1 = 1`
	var args []any
	if f.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, f.Symbol)
	}
	if f.Label != "" {
		query += ` AND label = ?`
		args = append(args, f.Label)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// ListTrades returns the trade log of a run. An unknown run yields
// ErrNotFound.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID int64) ([]TradeRow, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	trades := []TradeRow{}
	if err := s.db.SelectContext(ctx, &trades,
		`SELECT * FROM trades WHERE run_id = ? ORDER BY seq`, runID); err != nil {
		return nil, fmt.Errorf("listing trades for run %d: %w", runID, err)
	}
	return trades, nil
}

func tradeRow(runID int64, seq int, t domain.Trade) TradeRow {
	return TradeRow{
		RunID:    runID,
		Seq:      seq,
		Date:     t.Date,
		Action:   string(t.Action),
		Price:    t.Price,
		Shares:   t.Shares,
		Score:    t.Score,
		PnL:      t.PnL,
		Return:   t.Return,
		HoldDays: t.HoldDays,
	}
}
