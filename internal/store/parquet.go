package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"quantetf/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ ScoreStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and ScoreStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ScoreRecord is the Parquet schema for externally produced scores.
type ScoreRecord struct {
	Symbol string  `parquet:"symbol"`
	Date   string  `parquet:"date"` // YYYY-MM-DD
	Score  float64 `parquet:"score"`
	Model  string  `parquet:"model"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files grouped by symbol and year, merging
// with what is already on disk. Each symbol+year combination produces a
// separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market domain.Market, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		k := key{symbol: b.Symbol, year: ts.Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    b.Symbol,
			Timestamp: ts.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		// Read existing records to merge.
		existing, err := readParquetFile[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading existing bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol within [start, end], ascending
// by timestamp. Missing year files are skipped.
func (s *ParquetStore) ReadBars(ctx context.Context, market domain.Market, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market domain.Market) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(market), "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// LastBarTime returns the timestamp of the newest stored bar for symbol, or
// the zero time when nothing is stored.
func (s *ParquetStore) LastBarTime(market domain.Market, symbol string) (time.Time, error) {
	dir := filepath.Join(s.DataDir, string(market), "daily", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}

	var latest int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".parquet" {
			continue
		}
		records, err := readParquetFile[BarRecord](filepath.Join(dir, e.Name()))
		if err != nil {
			return time.Time{}, err
		}
		for _, r := range records {
			latest = max(latest, r.Timestamp)
		}
	}
	if latest == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(latest).UTC(), nil
}

// ---------------------------------------------------------------------------
// ScoreStore implementation
// ---------------------------------------------------------------------------

// WriteScores merges scores into <DataDir>/<market>/scores/<SYMBOL>.parquet.
// Incoming scores replace stored ones for the same date.
func (s *ParquetStore) WriteScores(_ context.Context, market domain.Market, symbol, model string, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	path := s.scorePath(symbol, market)
	existing, err := readParquetFile[ScoreRecord](path)
	if err != nil {
		return fmt.Errorf("reading existing scores for %s: %w", symbol, err)
	}

	incoming := make([]ScoreRecord, 0, len(scores))
	for date, v := range scores {
		incoming = append(incoming, ScoreRecord{Symbol: symbol, Date: date, Score: v, Model: model})
	}
	if err := writeParquetFile(path, mergeScoreRecords(existing, incoming)); err != nil {
		return fmt.Errorf("writing scores for %s: %w", symbol, err)
	}
	return nil
}

// ReadScores reads the stored scores for symbol. A missing file is not an
// error and yields an empty map.
func (s *ParquetStore) ReadScores(_ context.Context, market domain.Market, symbol string) (map[string]float64, error) {
	records, err := readParquetFile[ScoreRecord](s.scorePath(symbol, market))
	if err != nil {
		return nil, fmt.Errorf("reading scores for %s: %w", symbol, err)
	}
	out := make(map[string]float64, len(records))
	for _, r := range records {
		out[r.Date] = r.Score
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, market domain.Market, year int) string {
	return filepath.Join(s.DataDir, string(market), "daily", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// scorePath returns the filesystem path for a score Parquet file.
// Layout: <dataDir>/<market>/scores/<SYMBOL>.parquet
func (s *ParquetStore) scorePath(symbol string, market domain.Market) string {
	return filepath.Join(s.DataDir, string(market), "scores", strings.ToUpper(symbol)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile reads every row of path. A missing file yields no rows
// and no error.
func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeScoreRecords deduplicates score records by date, preferring new
// records over existing ones. Results are sorted by date.
func mergeScoreRecords(existing, incoming []ScoreRecord) []ScoreRecord {
	seen := make(map[string]ScoreRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Date] = r
	}
	for _, r := range incoming {
		seen[r.Date] = r
	}

	merged := make([]ScoreRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date < merged[j].Date
	})
	return merged
}
