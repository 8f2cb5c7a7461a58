package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/engine"
	"quantetf/internal/metrics"
	"quantetf/internal/scoring"
	"quantetf/internal/store"
	"quantetf/internal/strategy"
	"quantetf/internal/threshold"
	"quantetf/internal/util"
)

const (
	version           = "0.3.0"
	defaultConfigPath = "config/quantetf.yaml"
	// warmupDays is loaded ahead of the simulated window so indicators and
	// the dynamic threshold have history on the first simulated bar.
	warmupDays = 200
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	scorer     string

	cfg *config.Config
	log *slog.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "quantetf",
		Short:         "Backtest scored ETF signals with ATR and chandelier stops",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	configPath := defaultConfigPath
	if p := os.Getenv("QUANTETF_CONFIG"); p != "" {
		configPath = p
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", configPath, "Path to the YAML config (env QUANTETF_CONFIG)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override logging.level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&a.scorer, "scorer", "rule", "Score source (rule|model)")

	root.AddCommand(
		a.backtestCmd(),
		a.selectCmd(),
		a.diffCmd(),
		a.gridCmd(),
		a.accuracyCmd(),
		a.signalsCmd(),
		a.stopsCmd(),
		a.gatherCmd(),
		a.serveCmd(),
		a.runsCmd(),
		versionCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quantetf %s\n", version)
		},
	}
}

// init loads configuration and installs the logger. A missing file at the
// default path falls back to the built-in defaults.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") && os.Getenv("QUANTETF_CONFIG") == "" {
		cfg = config.Default()
		err = cfg.Validate()
	}
	if err != nil {
		return fmt.Errorf("loading config %s: %w", a.configPath, err)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	a.cfg = cfg
	a.log = util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(a.log)
	return nil
}

// ---------------------------------------------------------------------------
// Pipeline wiring
// ---------------------------------------------------------------------------

// pipeline is the assembled simulation stack for one invocation.
type pipeline struct {
	loader   *strategy.Loader
	regime   regimeStatus
	risk     *engine.RiskManager
	runner   *strategy.Runner
	recorder *metrics.Recorder
}

type regimeStatus interface {
	Status(date string) string
}

func (a *app) market() domain.Market { return domain.Market(a.cfg.Market.Name) }

// pipeline builds the stack covering days of simulated history ending now.
// rec may be nil.
func (a *app) pipeline(ctx context.Context, days int, rec *metrics.Recorder) (*pipeline, error) {
	pstore := store.NewParquetStore(a.cfg.Storage.DataDir)

	scorers := scoring.Builtins(pstore, a.market())
	scorer, ok := scorers.Get(a.scorer)
	if !ok {
		return nil, fmt.Errorf("unknown scorer %q (have %s)", a.scorer, strings.Join(scorers.List(), ", "))
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -(days + warmupDays))
	loader := strategy.NewLoader(pstore, scorer, a.market(), a.cfg.Risk.ATRPeriod, start, end)

	rm, err := loader.Regime(ctx, a.cfg.Market.IndexSymbol)
	if err != nil {
		return nil, err
	}
	if rm.Len() == 0 {
		a.log.Warn("no index bars; every day treated as bull", "index", a.cfg.Market.IndexSymbol)
	} else {
		a.log.Debug("regime loaded", "days", rm.Len(), "bear_days", rm.BearDays())
	}

	resolver := threshold.NewResolver(a.cfg.Threshold, rm)
	risk := engine.NewRiskManager(a.cfg.Risk)
	bt := strategy.NewBacktester(a.cfg.Backtest, risk)

	var recorder strategy.Recorder
	if rec != nil {
		recorder = rec
	}
	runner := strategy.NewRunner(loader, bt, resolver, a.cfg.Backtest, a.cfg.WalkForward, a.log, recorder)

	return &pipeline{
		loader:   loader,
		regime:   rm,
		risk:     risk,
		runner:   runner,
		recorder: rec,
	}, nil
}

// historyDays is the calendar span a command needs loaded: the simulated
// lookback or the walk-forward train+test span, whichever is longer.
func (a *app) historyDays(lookback int) int {
	if lookback <= 0 {
		lookback = a.cfg.Backtest.LookbackDays
	}
	return max(lookback, a.cfg.WalkForward.TrainDays+a.cfg.WalkForward.TestDays)
}

// universe returns the configured instruments, optionally restricted to a
// comma-separated symbol list. Unknown symbols are simulated with the
// class defaults.
func (a *app) universe(symbols string) []domain.Instrument {
	if strings.TrimSpace(symbols) == "" {
		return a.cfg.Market.Universe()
	}
	var out []domain.Instrument
	for _, s := range strings.Split(symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, a.cfg.Market.Instrument(s))
		}
	}
	return out
}

// simFlags are the flags shared by the simulation subcommands.
type simFlags struct {
	lookback  int
	symbols   string
	overrides []string
	dynamic   bool
	mode      string
}

func (f *simFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.lookback, "lookback-days", 0, "Calendar days to simulate (0 uses backtest.lookback_days)")
	cmd.Flags().StringVar(&f.symbols, "symbols", "", "Comma-separated symbols (default: configured universe)")
	cmd.Flags().StringSliceVar(&f.overrides, "override", nil, "Per-symbol threshold override SYM=0.6 (repeatable)")
}

func (f *simFlags) registerMode(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.dynamic, "dynamic", false, "Force the dynamic threshold family")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Force the threshold family (fixed|dynamic)")
}

// options merges the flag values with the configured overrides.
func (a *app) options(f *simFlags) (strategy.Options, error) {
	opts := strategy.Options{LookbackDays: f.lookback}

	overrides := make(map[string]float64, len(a.cfg.Threshold.Overrides))
	for k, v := range a.cfg.Threshold.Overrides {
		overrides[k] = v
	}
	if len(f.overrides) > 0 {
		parsed, err := config.ParseOverrides(strings.Join(f.overrides, ","))
		if err != nil {
			return opts, err
		}
		for k, v := range parsed {
			overrides[k] = v
		}
	}
	if len(overrides) > 0 {
		opts.Overrides = overrides
	}

	switch {
	case f.mode != "":
		m, err := threshold.ParseMode(f.mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = m
	case f.dynamic:
		opts.Mode = threshold.ModeDynamic
	}
	return opts, nil
}
