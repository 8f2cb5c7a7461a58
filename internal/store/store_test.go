package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quantetf/internal/domain"
	"quantetf/internal/strategy"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("510300.sh", domain.MarketCN, 2024)
	wantBarPath := filepath.Join("/data", "cn", "daily", "510300.SH", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	sp := ps.scorePath("510300.SH", domain.MarketCN)
	wantScorePath := filepath.Join("/data", "cn", "scores", "510300.SH.parquet")
	if sp != wantScorePath {
		t.Errorf("scorePath mismatch:\n  got  %s\n  want %s", sp, wantScorePath)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "510300.SH",
			Timestamp: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
			Open:      3.90,
			High:      3.95,
			Low:       3.88,
			Close:     3.93,
			Volume:    8000000,
		},
		{
			Symbol:    "510300.SH",
			Timestamp: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      3.93,
			High:      3.97,
			Low:       3.85,
			Close:     3.86,
			Volume:    9500000,
		},
	}

	if err := ps.WriteBars(ctx, domain.MarketCN, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	// The range spans two year files.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, domain.MarketCN, "510300.SH", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 3.93 {
		t.Errorf("first bar Close = %v, want 3.93", got[0].Close)
	}
	if got[1].Date() != "2025-01-02" {
		t.Errorf("second bar Date() = %s, want 2025-01-02", got[1].Date())
	}

	last, err := ps.LastBarTime(domain.MarketCN, "510300.SH")
	if err != nil {
		t.Fatalf("LastBarTime: %v", err)
	}
	if !last.Equal(bars[1].Timestamp) {
		t.Errorf("LastBarTime = %v, want %v", last, bars[1].Timestamp)
	}
}

func TestParquetStoreReadMissing(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	got, err := ps.ReadBars(context.Background(), domain.MarketCN, "NONE.SH",
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadBars returned %d bars, want 0", len(got))
	}

	last, err := ps.LastBarTime(domain.MarketCN, "NONE.SH")
	if err != nil || !last.IsZero() {
		t.Errorf("LastBarTime = %v, %v; want zero time, nil", last, err)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := []domain.Bar{{Symbol: "512480.SH", Timestamp: day, Open: 1, High: 1, Low: 1, Close: 1}}
	if err := ps.WriteBars(ctx, domain.MarketCN, first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Same date again plus a new one: the newer record wins.
	second := []domain.Bar{
		{Symbol: "512480.SH", Timestamp: day, Open: 2, High: 2, Low: 2, Close: 2},
		{Symbol: "512480.SH", Timestamp: day.AddDate(0, 0, 3), Open: 3, High: 3, Low: 3, Close: 3},
	}
	if err := ps.WriteBars(ctx, domain.MarketCN, second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, domain.MarketCN, "512480.SH", day, day.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if got[0].Close != 2 {
		t.Errorf("merged bar Close = %v, want 2", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	bars := []domain.Bar{
		{Symbol: "512480.SH", Timestamp: day, Open: 1, High: 1, Low: 1, Close: 1},
		{Symbol: "159915.SZ", Timestamp: day, Open: 2, High: 2, Low: 2, Close: 2},
	}
	if err := ps.WriteBars(ctx, domain.MarketCN, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, domain.MarketCN)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "159915.SZ" || symbols[1] != "512480.SH" {
		t.Errorf("ListSymbols = %v, want [159915.SZ 512480.SH]", symbols)
	}
}

func TestParquetStoreScores(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	if err := ps.WriteScores(ctx, domain.MarketCN, "588000.SH", "xgb", map[string]float64{
		"2025-01-02": 0.61,
		"2025-01-03": 0.40,
	}); err != nil {
		t.Fatalf("WriteScores: %v", err)
	}
	if err := ps.WriteScores(ctx, domain.MarketCN, "588000.SH", "xgb", map[string]float64{
		"2025-01-03": 0.72,
	}); err != nil {
		t.Fatalf("WriteScores (merge): %v", err)
	}

	got, err := ps.ReadScores(ctx, domain.MarketCN, "588000.SH")
	if err != nil {
		t.Fatalf("ReadScores: %v", err)
	}
	if len(got) != 2 || got["2025-01-02"] != 0.61 || got["2025-01-03"] != 0.72 {
		t.Errorf("ReadScores = %v, want 2025-01-02:0.61 2025-01-03:0.72", got)
	}

	empty, err := ps.ReadScores(ctx, domain.MarketCN, "NONE.SH")
	if err != nil || len(empty) != 0 {
		t.Errorf("ReadScores(missing) = %v, %v; want empty, nil", empty, err)
	}
}

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return store
}

func sampleResult(symbol string) *strategy.BacktestResult {
	pnl, ret, hold := -1170.0, -0.1238, 3
	return &strategy.BacktestResult{
		Instrument: domain.Instrument{Symbol: symbol, Name: "CSI 300 ETF", Class: domain.ClassWideIndex},
		Policy:     "fixed",
		Mode:       "fixed",
		StartDate:  "2025-03-03",
		EndDate:    "2025-03-07",
		Bars:       5,
		Trades: []domain.Trade{
			{Date: "2025-03-04", Action: domain.ActionBuy, Price: 105, Shares: 900, Score: 0.8},
			{Date: "2025-03-07", Action: domain.ActionSellStop, Price: 92, Shares: 900, Score: 0.5,
				PnL: &pnl, Return: &ret, HoldDays: &hold},
		},
		InitialCapital: 100000,
		Metrics: strategy.Metrics{
			TotalReturn: -0.117,
			NumTrades:   1,
			Losses:      1,
			FinalEquity: 88300,
		},
	}
}

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	id, err := store.SaveResult(ctx, "backtest", sampleResult("510300.SH"))
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	run, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Symbol != "510300.SH" || run.FinalEquity != 88300 || run.Losses != 1 {
		t.Errorf("GetRun = %+v, want symbol 510300.SH equity 88300 losses 1", run)
	}

	trades, err := store.ListTrades(ctx, id)
	if err != nil {
		t.Fatalf("ListTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("ListTrades returned %d rows, want 2", len(trades))
	}
	if trades[0].PnL != nil {
		t.Errorf("buy PnL = %v, want nil", *trades[0].PnL)
	}
	if trades[1].PnL == nil || *trades[1].PnL != -1170 || *trades[1].HoldDays != 3 {
		t.Errorf("sell row = %+v, want pnl -1170 hold 3", trades[1])
	}
}

func TestSQLiteStoreNotFound(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun(42) error = %v, want ErrNotFound", err)
	}
	if _, err := store.ListTrades(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListTrades(42) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	for _, sym := range []string{"510300.SH", "512480.SH", "510300.SH"} {
		if _, err := store.SaveResult(ctx, "backtest", sampleResult(sym)); err != nil {
			t.Fatalf("SaveResult(%s): %v", sym, err)
		}
	}

	all, err := store.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListRuns returned %d runs, want 3", len(all))
	}
	if all[0].ID != 3 {
		t.Errorf("ListRuns first id = %d, want 3 (newest first)", all[0].ID)
	}

	filtered, err := store.ListRuns(ctx, RunFilter{Symbol: "510300.SH", Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns(filter): %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != 3 {
		t.Errorf("ListRuns(symbol, limit 1) = %+v, want run 3", filtered)
	}
}

func TestSQLiteStoreDeleteCascadesTrades(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	id, err := store.SaveResult(ctx, "backtest", sampleResult("510300.SH"))
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		t.Fatalf("delete run: %v", err)
	}

	var n int
	if err := store.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM trades WHERE run_id = ?", id); err != nil {
		t.Fatalf("count trades: %v", err)
	}
	if n != 0 {
		t.Errorf("%d trades left after deleting their run, want 0", n)
	}

	_, err = store.db.ExecContext(ctx,
		"INSERT INTO trades (run_id, seq, date, action, price, shares, score) VALUES (999, 0, '2025-03-04', 'BUY', 1, 100, 0.8)")
	if err == nil {
		t.Error("trade for a missing run was accepted")
	}
}
