package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quantetf/internal/metrics"
	"quantetf/internal/store"
	"quantetf/internal/strategy"
)

func (a *app) backtestCmd() *cobra.Command {
	var (
		f      simFlags
		save   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Simulate every instrument under its resolved threshold policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := a.options(&f)
			if err != nil {
				return err
			}
			rec := metrics.NewRecorder()
			p, err := a.pipeline(ctx, a.historyDays(f.lookback), rec)
			if err != nil {
				return err
			}

			results, err := p.runner.Backtest(ctx, a.universe(f.symbols), opts)
			if err != nil {
				return err
			}
			if save != "" {
				if err := a.save(ctx, save, results, rec); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, results)
			}
			printResults(out, results)
			printSummaries(out, append(
				[]strategy.Summary{strategy.Summarize("all", results)},
				strategy.SummarizeByClass(results)...,
			))
			return nil
		},
	}
	f.register(cmd)
	f.registerMode(cmd)
	cmd.Flags().StringVar(&save, "save", "", "Persist results to the SQLite result store under this label")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func (a *app) selectCmd() *cobra.Command {
	var (
		f    simFlags
		save string
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose fixed or dynamic thresholds per instrument by walk-forward evaluation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := a.options(&f)
			if err != nil {
				return err
			}
			rec := metrics.NewRecorder()
			p, err := a.pipeline(ctx, a.historyDays(f.lookback), rec)
			if err != nil {
				return err
			}

			sels, err := p.runner.Select(ctx, a.universe(f.symbols), opts)
			if err != nil {
				return err
			}
			results := strategy.SelectionResults(sels)
			if save != "" {
				if err := a.save(ctx, save, results, rec); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			printSelections(out, sels)
			dyn, fix := strategy.ModeCounts(sels)
			fmt.Fprintf(out, "\nselected: %d dynamic, %d fixed\n\n", dyn, fix)
			printSummaries(out, append(
				[]strategy.Summary{strategy.Summarize("all", results)},
				strategy.SummarizeByClass(results)...,
			))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&save, "save", "", "Persist evaluation results under this label")
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var f simFlags
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare dynamic and fixed thresholds over the same window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := a.options(&f)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx, a.historyDays(f.lookback), nil)
			if err != nil {
				return err
			}

			rows, err := p.runner.Diff(ctx, a.universe(f.symbols), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printDiff(out, rows)
			printDiffSummary(out, strategy.SummarizeDiff(rows))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) gridCmd() *cobra.Command {
	var (
		f          simFlags
		thresholds string
	)
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Sweep fixed thresholds across every instrument",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ths, err := parseThresholds(thresholds)
			if err != nil {
				return err
			}
			opts, err := a.options(&f)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx, a.historyDays(f.lookback), nil)
			if err != nil {
				return err
			}

			rows, err := p.runner.Grid(ctx, a.universe(f.symbols), ths, opts)
			if err != nil {
				return err
			}
			printGrid(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&thresholds, "thresholds", "0.45,0.50,0.55,0.60,0.65,0.70", "Comma-separated thresholds to sweep")
	return cmd
}

func (a *app) signalsCmd() *cobra.Command {
	var (
		f      simFlags
		days   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Report BUY/WAIT signals with stop levels for the latest bar or the last N days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := a.options(&f)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx, max(days, 1), nil)
			if err != nil {
				return err
			}

			rows, err := p.runner.Signals(ctx, a.universe(f.symbols), days, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, rows)
			}
			printSignals(out, rows)
			buys := 0
			latest := strategy.LatestSignals(rows)
			for _, sig := range latest {
				if sig.Action == strategy.SignalBuy {
					buys++
				}
			}
			fmt.Fprintf(out, "\nlatest: %d BUY, %d WAIT\n", buys, len(latest)-buys)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Calendar days of signals to report (0: latest bar only)")
	cmd.Flags().StringVar(&f.symbols, "symbols", "", "Comma-separated symbols (default: configured universe)")
	cmd.Flags().StringSliceVar(&f.overrides, "override", nil, "Per-symbol threshold override SYM=0.6 (repeatable)")
	f.registerMode(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print signals as JSON")
	return cmd
}

func (a *app) accuracyCmd() *cobra.Command {
	var (
		symbols string
		days    int
	)
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Bucket scores by forward 5-bar maximum return",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := a.pipeline(ctx, days, nil)
			if err != nil {
				return err
			}
			rep, err := p.runner.Accuracy(ctx, a.universe(symbols), days)
			if err != nil {
				return err
			}
			printAccuracy(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&symbols, "symbols", "", "Comma-separated symbols (default: configured universe)")
	cmd.Flags().IntVar(&days, "days", 180, "Calendar days of history to evaluate")
	return cmd
}

// save writes results to the SQLite result store.
func (a *app) save(ctx context.Context, label string, results []*strategy.BacktestResult, rec *metrics.Recorder) error {
	rs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening result store: %w", err)
	}
	defer rs.Close()

	for _, res := range results {
		id, err := rs.SaveResult(ctx, label, res)
		if err != nil {
			return fmt.Errorf("saving %s: %w", res.Instrument.Symbol, err)
		}
		rec.RunSaved()
		a.log.Debug("run saved", "id", id, "symbol", res.Instrument.Symbol, "label", label)
	}
	a.log.Info("results saved", "label", label, "runs", len(results), "path", a.cfg.Storage.SQLitePath)
	return nil
}

func parseThresholds(s string) ([]float64, error) {
	var out []float64
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, fmt.Errorf("threshold %q: %w", item, err)
		}
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("threshold %v outside [0, 1]", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no thresholds given")
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
