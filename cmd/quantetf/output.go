package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"quantetf/internal/engine"
	"quantetf/internal/strategy"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v*100) }

func printResults(w io.Writer, results []*strategy.BacktestResult) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tPOLICY\tMODE\tBARS\tTRADES\tWIN%\tRETURN\tMAXDD\tSHARPE\tSUPPRESSED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%.2f\t%d\n",
			r.Instrument.Symbol, r.Instrument.Name, r.Policy, r.Mode, r.Bars,
			r.NumTrades, pct(r.WinRate), pct(r.TotalReturn), pct(r.MaxDrawdown),
			r.Sharpe, r.SuppressedDays)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printSummaries(w io.Writer, sums []strategy.Summary) {
	tw := newTable(w)
	fmt.Fprintln(tw, "GROUP\tN\tTRADES\tWINS\tWIN%\tLEGACY WIN%\tMEAN RETURN\tMEAN MAXDD\tMEAN SHARPE\tSUPPRESSED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\t%s\t%s\t%.2f\t%d\n",
			s.Label, s.Count, s.Trades, s.Wins, pct(s.WinRate), pct(s.LegacyWinRate),
			pct(s.MeanReturn), pct(s.MeanMaxDrawdown), s.MeanSharpe, s.SuppressedDays)
	}
	tw.Flush()
}

func printSelections(w io.Writer, sels []*strategy.Selection) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tCHOSEN\tTRAIN DYN SHARPE\tTRAIN FIX SHARPE\tEVAL RETURN\tEVAL TRADES\tNOTE")
	for _, s := range sels {
		dyn, fix, note := "-", "-", ""
		if s.Fallback {
			note = "fallback: short history"
		} else {
			dyn = fmt.Sprintf("%.2f", s.TrainDynamic.Sharpe)
			fix = fmt.Sprintf("%.2f", s.TrainFixed.Sharpe)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.Symbol, s.Mode, dyn, fix, pct(s.Result.TotalReturn), s.Result.NumTrades, note)
	}
	tw.Flush()
}

func printDiff(w io.Writer, rows []strategy.DiffRow) {
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tCLASS\tDYNAMIC\tFIXED\tDIFF\tDYN TRADES\tFIX TRADES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.Instrument.Symbol, r.Instrument.Class, pct(r.Dynamic.TotalReturn),
			pct(r.Fixed.TotalReturn), pct(r.Diff), r.Dynamic.NumTrades, r.Fixed.NumTrades)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printDiffSummary(w io.Writer, sums []strategy.DiffSummary) {
	tw := newTable(w)
	fmt.Fprintln(tw, "CLASS\tN\tMEAN DYNAMIC\tMEAN FIXED\tMEAN DIFF")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			s.Label, s.Count, pct(s.MeanDynamic), pct(s.MeanFixed), pct(s.MeanDiff))
	}
	tw.Flush()
}

func printGrid(w io.Writer, rows []strategy.GridRow) {
	tw := newTable(w)
	fmt.Fprintln(tw, "THRESHOLD\tSYMBOL\tTRADES\tWIN%\tRETURN\tMAXDD\tSHARPE")
	for _, r := range rows {
		res := r.Result
		fmt.Fprintf(tw, "%.2f\t%s\t%d\t%s\t%s\t%s\t%.2f\n",
			r.Threshold, res.Instrument.Symbol, res.NumTrades, pct(res.WinRate),
			pct(res.TotalReturn), pct(res.MaxDrawdown), res.Sharpe)
	}
	tw.Flush()
}

func printAccuracy(w io.Writer, rep strategy.AccuracyReport) {
	fmt.Fprintf(w, "samples: %d (hit = max high over next %d bars > %s)\n\n",
		rep.Total, strategy.AccuracyHorizon, pct(strategy.HitReturn))
	tw := newTable(w)
	fmt.Fprintln(tw, "SCORE\tCOUNT\tHITS\tHIT RATE\tMEAN MAX RETURN")
	for _, b := range append(rep.Buckets, rep.HighConfidence) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", b.Label, b.Count, b.Hits, pct(b.HitRate), pct(b.MeanMaxReturn))
	}
	tw.Flush()
}

func printLevels(w io.Writer, symbol, date, status string, lv engine.Levels) {
	tw := newTable(w)
	fmt.Fprintf(tw, "symbol\t%s\n", symbol)
	fmt.Fprintf(tw, "as of\t%s (%s)\n", date, status)
	fmt.Fprintf(tw, "entry\t%.3f\n", lv.Entry)
	fmt.Fprintf(tw, "ATR\t%.3f (x%.1f)\n", lv.ATR, lv.Multiplier)
	fmt.Fprintf(tw, "initial stop\t%.3f\n", lv.InitialStop)
	fmt.Fprintf(tw, "highest high\t%.3f\n", lv.HighestHigh)
	fmt.Fprintf(tw, "chandelier stop\t%.3f\n", lv.ChandelierStop)
	fmt.Fprintf(tw, "risk per share\t%.3f\n", lv.RiskPerShare)
	tw.Flush()
}

func printSignals(w io.Writer, rows []strategy.Signal) {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tSYMBOL\tNAME\tCLOSE\tSCORE\tTHRESHOLD\tMARKET\tSIGNAL\tSTRENGTH\tINITIAL STOP\tCHANDELIER")
	for _, s := range rows {
		initial, chandelier := "-", "-"
		if s.Levels != nil {
			initial = fmt.Sprintf("%.3f", s.Levels.InitialStop)
			chandelier = fmt.Sprintf("%.3f", s.Levels.ChandelierStop)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%.2f\t%s\t%s\t%s\t%s\t%s\n",
			s.Date, s.Instrument.Symbol, s.Instrument.Name, s.Close, s.Score, s.Threshold,
			s.Market, s.Action, s.Strength, initial, chandelier)
	}
	tw.Flush()
}
