package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quantetf/internal/api"
	"quantetf/internal/domain"
	"quantetf/internal/gather/us"
	"quantetf/internal/metrics"
	"quantetf/internal/store"
	"quantetf/internal/strategy"
)

func (a *app) stopsCmd() *cobra.Command {
	var entry float64
	cmd := &cobra.Command{
		Use:   "stops SYMBOL",
		Short: "Show the current initial and chandelier stop levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst := a.cfg.Market.Instrument(args[0])
			p, err := a.pipeline(ctx, a.cfg.Risk.ExitLookbackPeriod, nil)
			if err != nil {
				return err
			}
			series, err := p.loader.Series(ctx, inst)
			if err != nil {
				return err
			}
			lv, err := p.risk.Levels(series.Bars, entry, inst.Aggressive)
			if err != nil {
				return fmt.Errorf("%s: %w", inst.Symbol, err)
			}
			date := series.Bars[len(series.Bars)-1].Date()
			printLevels(cmd.OutOrStdout(), inst.Symbol, date, p.regime.Status(date), lv)
			return nil
		},
	}
	cmd.Flags().Float64Var(&entry, "entry", 0, "Entry price (default: last close)")
	return cmd
}

func (a *app) gatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gather",
		Short: "Fetch missing daily bars for the universe and index into the parquet store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pstore := store.NewParquetStore(a.cfg.Storage.DataDir)

			symbols := []string{a.cfg.Market.IndexSymbol}
			for _, inst := range a.cfg.Market.Universe() {
				symbols = append(symbols, inst.Symbol)
			}

			g, err := us.NewDailyBarGatherer(us.NewClient(a.cfg.Alpaca), pstore, a.market(), symbols, a.cfg.Gather)
			if errors.Is(err, us.ErrUnsupportedMarket) {
				a.log.Warn("skipping gather: configured market has no data source", "market", a.market())
				return nil
			}
			if err != nil {
				return err
			}
			a.log.Info("starting gatherer", "name", g.Name(), "symbols", len(symbols))
			return g.Run(cmd.Context())
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	var refresh time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve saved runs and Prometheus metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
			if err != nil {
				return fmt.Errorf("opening result store: %w", err)
			}
			defer rs.Close()

			rec := metrics.NewRecorder()
			srv := api.NewServer(a.cfg.Server, rs, rec.Handler(), a.log)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.ListenAndServe(ctx) })
			if refresh > 0 {
				g.Go(func() error { return a.refreshLoop(ctx, rs, rec, refresh) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().DurationVar(&refresh, "refresh", 0, "Re-run and save the universe backtest at this interval (0 disables)")
	return cmd
}

// refreshLoop periodically backtests the configured universe and saves the
// results under the "scheduled" label. A failed round is logged and the
// loop continues.
func (a *app) refreshLoop(ctx context.Context, rs store.ResultStore, rec *metrics.Recorder, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := a.refreshOnce(ctx, rs, rec); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.log.Error("scheduled backtest failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *app) refreshOnce(ctx context.Context, rs store.ResultStore, rec *metrics.Recorder) error {
	p, err := a.pipeline(ctx, a.historyDays(0), rec)
	if err != nil {
		return err
	}
	results, err := p.runner.Backtest(ctx, a.cfg.Market.Universe(), strategy.Options{Overrides: a.cfg.Threshold.Overrides})
	if err != nil {
		return err
	}
	label := "scheduled-" + time.Now().UTC().Format(domain.DateLayout)
	for _, res := range results {
		if _, err := rs.SaveResult(ctx, label, res); err != nil {
			return fmt.Errorf("saving %s: %w", res.Instrument.Symbol, err)
		}
		rec.RunSaved()
	}
	a.log.Info("scheduled backtest saved", "label", label, "runs", len(results))
	return nil
}
