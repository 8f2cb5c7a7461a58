package strategy

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/threshold"
)

// Recorder observes simulation outcomes. metrics.Recorder implements it.
type Recorder interface {
	RunCompleted(res *BacktestResult, elapsed time.Duration)
	InstrumentSkipped(symbol, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RunCompleted(*BacktestResult, time.Duration) {}
func (nopRecorder) InstrumentSkipped(string, string)            {}

// Runner fans simulations out across instruments, one goroutine per
// instrument bounded by the worker limit. The only state shared between
// goroutines is read-only: the resolver and its regime map.
//
// A failure on one instrument is logged and skipped; it never aborts the
// others. Only context cancellation fails a batch.
type Runner struct {
	loader   SeriesLoader
	bt       *Backtester
	resolver *threshold.Resolver
	selector *Selector
	cfg      config.BacktestConfig
	logger   *slog.Logger
	rec      Recorder
}

// NewRunner creates a Runner. rec may be nil.
func NewRunner(
	loader SeriesLoader,
	bt *Backtester,
	resolver *threshold.Resolver,
	cfg config.BacktestConfig,
	wf config.WalkForwardConfig,
	logger *slog.Logger,
	rec Recorder,
) *Runner {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Runner{
		loader:   loader,
		bt:       bt,
		resolver: resolver,
		selector: NewSelector(bt, resolver, wf),
		cfg:      cfg,
		logger:   logger.With("component", "runner"),
		rec:      rec,
	}
}

// Options tune a multi-instrument backtest.
type Options struct {
	// LookbackDays restricts the simulation to the trailing window. Zero
	// uses the configured lookback.
	LookbackDays int
	// Overrides are explicit per-symbol thresholds.
	Overrides map[string]float64
	// Mode forces the threshold family. Empty uses the per-instrument
	// default.
	Mode threshold.Mode
}

func (r *Runner) lookback(opts Options) int {
	if opts.LookbackDays > 0 {
		return opts.LookbackDays
	}
	return r.cfg.LookbackDays
}

// Backtest simulates every instrument under its resolved policy. Results
// are returned in instrument order; skipped instruments are absent.
func (r *Runner) Backtest(ctx context.Context, insts []domain.Instrument, opts Options) ([]*BacktestResult, error) {
	days := r.lookback(opts)
	return fanOut(ctx, r, insts, func(s *Series) (*BacktestResult, error) {
		bars, scores := Window(s.Bars, s.Scores, days)
		mode := opts.Mode
		if mode == "" {
			mode = r.resolver.DefaultMode(s.Instrument, opts.Overrides)
		}
		return r.run(s.Instrument, bars, scores, r.resolver.Policy(s.Instrument, mode, opts.Overrides))
	})
}

// Select runs walk-forward selection for every instrument.
func (r *Runner) Select(ctx context.Context, insts []domain.Instrument, opts Options) ([]*Selection, error) {
	days := r.lookback(opts)
	return fanOut(ctx, r, insts, func(s *Series) (*Selection, error) {
		bars, scores := Window(s.Bars, s.Scores, days)
		start := time.Now()
		sel, err := r.selector.Select(s.Instrument, bars, scores, days, opts.Overrides)
		if err != nil {
			return nil, err
		}
		r.rec.RunCompleted(sel.Result, time.Since(start))
		r.logger.Debug("policy selected", "symbol", s.Instrument.Symbol,
			"mode", sel.Mode, "fallback", sel.Fallback)
		return sel, nil
	})
}

// DiffRow compares the dynamic and fixed families over the same window.
type DiffRow struct {
	Instrument domain.Instrument `json:"instrument"`
	Dynamic    *BacktestResult   `json:"dynamic"`
	Fixed      *BacktestResult   `json:"fixed"`
	Diff       float64           `json:"diff_return"`
}

// Diff runs both families for every instrument: dynamic without overrides
// and fixed with them. Rows are sorted by descending return difference.
func (r *Runner) Diff(ctx context.Context, insts []domain.Instrument, opts Options) ([]DiffRow, error) {
	days := r.lookback(opts)
	rows, err := fanOut(ctx, r, insts, func(s *Series) (DiffRow, error) {
		bars, scores := Window(s.Bars, s.Scores, days)
		dyn, err := r.run(s.Instrument, bars, scores, r.resolver.Policy(s.Instrument, threshold.ModeDynamic, nil))
		if err != nil {
			return DiffRow{}, err
		}
		fix, err := r.run(s.Instrument, bars, scores, r.resolver.Policy(s.Instrument, threshold.ModeFixed, opts.Overrides))
		if err != nil {
			return DiffRow{}, err
		}
		return DiffRow{
			Instrument: s.Instrument,
			Dynamic:    dyn,
			Fixed:      fix,
			Diff:       dyn.TotalReturn - fix.TotalReturn,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Diff > rows[j].Diff })
	return rows, nil
}

// GridRow is one (threshold, instrument) cell of a threshold sweep.
type GridRow struct {
	Threshold float64         `json:"threshold"`
	Result    *BacktestResult `json:"result"`
}

// Grid applies each threshold as an override to every instrument. Each
// instrument's series is loaded once. Rows are ordered by threshold, then
// instrument.
func (r *Runner) Grid(ctx context.Context, insts []domain.Instrument, thresholds []float64, opts Options) ([]GridRow, error) {
	days := r.lookback(opts)
	perInst, err := fanOut(ctx, r, insts, func(s *Series) ([]*BacktestResult, error) {
		bars, scores := Window(s.Bars, s.Scores, days)
		out := make([]*BacktestResult, len(thresholds))
		for i, th := range thresholds {
			overrides := map[string]float64{s.Instrument.Symbol: th}
			res, err := r.run(s.Instrument, bars, scores, r.resolver.Policy(s.Instrument, threshold.ModeFixed, overrides))
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]GridRow, 0, len(thresholds)*len(perInst))
	for i, th := range thresholds {
		for _, results := range perInst {
			rows = append(rows, GridRow{Threshold: th, Result: results[i]})
		}
	}
	return rows, nil
}

// Accuracy pools forward-return samples across instruments over the
// trailing window of days and buckets them by score.
func (r *Runner) Accuracy(ctx context.Context, insts []domain.Instrument, days int) (AccuracyReport, error) {
	perInst, err := fanOut(ctx, r, insts, func(s *Series) ([]Sample, error) {
		bars, scores := Window(s.Bars, s.Scores, days)
		if len(bars) < r.cfg.MinBars {
			return nil, ErrInsufficientBars
		}
		return ForwardSamples(bars, scores, AccuracyHorizon), nil
	})
	if err != nil {
		return AccuracyReport{}, err
	}
	var pooled []Sample
	for _, s := range perInst {
		pooled = append(pooled, s...)
	}
	return Accuracy(pooled), nil
}

func (r *Runner) run(inst domain.Instrument, bars []domain.FeatureBar, scores []float64, p threshold.Policy) (*BacktestResult, error) {
	start := time.Now()
	res, err := r.bt.Run(inst, bars, scores, p)
	if err != nil {
		return nil, err
	}
	r.rec.RunCompleted(res, time.Since(start))
	return res, nil
}

// fanOut loads and processes every instrument concurrently, keeping
// instrument order in the output and dropping instruments that failed.
func fanOut[T any](ctx context.Context, r *Runner, insts []domain.Instrument, fn func(*Series) (T, error)) ([]T, error) {
	results := make([]T, len(insts))
	done := make([]bool, len(insts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Workers))
	for i, inst := range insts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := r.loader.Series(gctx, inst)
			if err == nil {
				results[i], err = fn(s)
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				r.skip(inst.Symbol, err)
				return nil
			}
			done[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(insts))
	for i, ok := range done {
		if ok {
			out = append(out, results[i])
		}
	}
	return out, nil
}

func (r *Runner) skip(symbol string, err error) {
	reason := "error"
	if errors.Is(err, ErrInsufficientBars) {
		reason = "insufficient_bars"
	}
	r.logger.Warn("skipping instrument", "symbol", symbol, "reason", reason, "error", err)
	r.rec.InstrumentSkipped(symbol, reason)
}
