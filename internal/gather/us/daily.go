// Package us gathers daily bars for US-listed ETFs from the Alpaca
// market-data API.
package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/gather"
	"quantetf/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)
var _ BarClient = (*marketdata.Client)(nil)

// ErrUnsupportedMarket is returned for markets Alpaca does not serve.
var ErrUnsupportedMarket = errors.New("alpaca serves only the us market")

// BarClient is the subset of the Alpaca market-data client the gatherer
// uses.
type BarClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// BarSink is where gathered bars are written. store.ParquetStore satisfies
// it.
type BarSink interface {
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error
	LastBarTime(market domain.Market, symbol string) (time.Time, error)
}

// ---------------------------------------------------------------------------
// DailyBarGatherer
// ---------------------------------------------------------------------------

// DailyBarGatherer fetches daily OHLCV bars for a fixed symbol list and
// appends them to the store. Each symbol resumes from the day after its
// newest stored bar, so repeated runs only fetch what is missing.
type DailyBarGatherer struct {
	client      BarClient
	sink        BarSink
	market      domain.Market
	symbols     []string
	start       time.Time
	batchSize   int
	maxAttempts int
	limiter     *rate.Limiter
	now         func() time.Time
	log         *slog.Logger
}

// NewClient builds an Alpaca market-data client from the credentials in cfg.
func NewClient(cfg config.Alpaca) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	return marketdata.NewClient(opts)
}

// NewDailyBarGatherer creates a gatherer for symbols. The request rate is
// capped at cfg.RateLimitPerMin calls per minute. Only domain.MarketUS is
// accepted.
func NewDailyBarGatherer(client BarClient, sink BarSink, market domain.Market, symbols []string, cfg config.GatherConfig) (*DailyBarGatherer, error) {
	if market != domain.MarketUS {
		return nil, fmt.Errorf("market %q: %w", market, ErrUnsupportedMarket)
	}
	start, err := time.Parse(domain.DateLayout, cfg.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", cfg.StartDate, err)
	}

	limit := rate.Inf
	if cfg.RateLimitPerMin > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimitPerMin))
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}

	syms := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, dup := seen[s]; s == "" || dup {
			continue
		}
		seen[s] = struct{}{}
		syms = append(syms, s)
	}
	sort.Strings(syms)

	return &DailyBarGatherer{
		client:      client,
		sink:        sink,
		market:      market,
		symbols:     syms,
		start:       start,
		batchSize:   batch,
		maxAttempts: cfg.MaxAttempts,
		limiter:     rate.NewLimiter(limit, 1),
		now:         time.Now,
		log:         slog.Default().With("gatherer", "us-daily"),
	}, nil
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches missing bars for every configured symbol. Symbols that share
// a start date are requested together in batches. A failed batch is logged
// and skipped; Run returns an error only when every batch failed or ctx was
// cancelled.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	end := g.now()

	groups := make(map[time.Time][]string)
	for _, sym := range g.symbols {
		last, err := g.sink.LastBarTime(g.market, sym)
		if err != nil {
			return fmt.Errorf("last bar for %s: %w", sym, err)
		}
		r := gather.Incremental(g.start, last, end)
		if r.Empty() {
			continue
		}
		groups[r.Start] = append(groups[r.Start], sym)
	}

	starts := make([]time.Time, 0, len(groups))
	for s := range groups {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	var (
		batches, failed int
		written         int
		runStart        = time.Now()
	)
	for _, from := range starts {
		syms := groups[from]
		for i := 0; i < len(syms); i += g.batchSize {
			batch := syms[i:min(i+g.batchSize, len(syms))]
			batches++

			n, err := g.fetchBatch(ctx, batch, from, end)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed++
				g.log.Error("batch failed", "symbols", strings.Join(batch, ","), "err", err)
				continue
			}
			written += n
			g.log.Info("batch done",
				"from", from.Format(domain.DateLayout),
				"symbols", len(batch),
				"bars", n,
			)
		}
	}

	g.log.Info("complete",
		"batches", batches,
		"failed", failed,
		"bars", written,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	if batches > 0 && failed == batches {
		return errors.New("every batch failed")
	}
	return nil
}

func (g *DailyBarGatherer) fetchBatch(ctx context.Context, symbols []string, start, end time.Time) (int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.maxAttempts, time.Second, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		bars, err = g.fetchMultiBars(symbols, start, end)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := g.sink.WriteBars(ctx, g.market, bars); err != nil {
		return 0, fmt.Errorf("writing bars: %w", err)
	}
	return len(bars), nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(symbols []string, start, end time.Time) ([]domain.Bar, error) {
	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end,
		Adjustment: marketdata.All,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:    strings.ToUpper(symbol),
				Timestamp: ab.Timestamp.UTC(),
				Open:      ab.Open,
				High:      ab.High,
				Low:       ab.Low,
				Close:     ab.Close,
				Volume:    int64(ab.Volume),
			})
		}
	}
	return bars, nil
}
