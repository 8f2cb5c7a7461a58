package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"quantetf/internal/domain"
)

// ErrInvalid is returned by Validate for inconsistent configuration values.
var ErrInvalid = errors.New("invalid config")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for quantetf.
type Config struct {
	Storage     Storage           `yaml:"storage"`
	Logging     Logging           `yaml:"logging"`
	Alpaca      Alpaca            `yaml:"alpaca"`
	Gather      GatherConfig      `yaml:"gather"`
	Market      MarketConfig      `yaml:"market"`
	Risk        RiskConfig        `yaml:"risk"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Threshold   ThresholdConfig   `yaml:"threshold"`
	WalkForward WalkForwardConfig `yaml:"walk_forward"`
	Server      Server            `yaml:"server"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// GatherConfig holds parameters for the daily bar gathering job.
type GatherConfig struct {
	StartDate       string `yaml:"start_date"`
	BatchSize       int    `yaml:"batch_size"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// MarketConfig describes the instrument universe and the reference index
// used for regime classification.
type MarketConfig struct {
	Name        string              `yaml:"name"`
	IndexSymbol string              `yaml:"index_symbol"`
	Instruments []domain.Instrument `yaml:"instruments"`
	Aggressive  []string            `yaml:"aggressive"`
}

// RiskConfig holds stop-loss sizing and position sizing parameters.
type RiskConfig struct {
	ATRPeriod               int     `yaml:"atr_period"`
	ATRMultiplier           float64 `yaml:"atr_multiplier"`
	ATRMultiplierAggressive float64 `yaml:"atr_multiplier_aggressive"`
	ExitLookbackPeriod      int     `yaml:"exit_lookback_period"`
	LotSize                 int64   `yaml:"lot_size"`
	CashUtilization         float64 `yaml:"cash_utilization"`
}

// BacktestConfig holds simulation and statistics parameters.
type BacktestConfig struct {
	InitialCapital      float64 `yaml:"initial_capital"`
	ExitThreshold       float64 `yaml:"exit_threshold"`
	LookbackDays        int     `yaml:"lookback_days"`
	AnnualizationFactor float64 `yaml:"annualization_factor"`
	RiskFreeRate        float64 `yaml:"risk_free_rate"`
	Workers             int     `yaml:"workers"`
	MinBars             int     `yaml:"min_bars"`
}

// ThresholdConfig controls buy-threshold resolution.
type ThresholdConfig struct {
	UseDynamic      bool               `yaml:"use_dynamic"`
	DynamicLookback int                `yaml:"dynamic_lookback"`
	DynamicQuantile float64            `yaml:"dynamic_quantile"`
	DynamicMin      float64            `yaml:"dynamic_min"`
	DynamicMax      float64            `yaml:"dynamic_max"`
	Bear            float64            `yaml:"bear"`
	Standard        float64            `yaml:"standard"`
	Aggressive      float64            `yaml:"aggressive"`
	PerSymbol       map[string]float64 `yaml:"per_symbol"`
	Overrides       map[string]float64 `yaml:"overrides"`
}

// WalkForwardConfig sizes the train/evaluation split used by policy
// selection.
type WalkForwardConfig struct {
	TrainDays    int `yaml:"train_days"`
	TestDays     int `yaml:"test_days"`
	MinTrainBars int `yaml:"min_train_bars"`
	MinTestBars  int `yaml:"min_test_bars"`
}

// Server holds the results API listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns the built-in configuration. Load starts from these values
// so a YAML file only needs to list what it changes.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/quantetf.db",
		},
		Logging: Logging{Level: "info", Format: "text"},
		Gather: GatherConfig{
			StartDate:       "2020-01-01",
			BatchSize:       50,
			RateLimitPerMin: 200,
			MaxAttempts:     3,
		},
		Market: MarketConfig{
			Name:        string(domain.MarketCN),
			IndexSymbol: "000300.SH",
			Aggressive:  []string{"588000.SH", "159915.SZ", "512480.SH", "515030.SH", "515070.SH"},
		},
		Risk: RiskConfig{
			ATRPeriod:               14,
			ATRMultiplier:           1.3,
			ATRMultiplierAggressive: 3.5,
			ExitLookbackPeriod:      22,
			LotSize:                 100,
			CashUtilization:         0.99,
		},
		Backtest: BacktestConfig{
			InitialCapital:      100000,
			ExitThreshold:       0.4,
			LookbackDays:        90,
			AnnualizationFactor: 252,
			Workers:             4,
			MinBars:             10,
		},
		Threshold: ThresholdConfig{
			UseDynamic:      true,
			DynamicLookback: 60,
			DynamicQuantile: 0.85,
			DynamicMin:      0.55,
			DynamicMax:      0.75,
			Bear:            0.75,
			Standard:        0.60,
			Aggressive:      0.45,
			PerSymbol: map[string]float64{
				"588000.SH": 0.60,
				"515070.SH": 0.60,
			},
		},
		WalkForward: WalkForwardConfig{
			TrainDays:    180,
			TestDays:     90,
			MinTrainBars: 20,
			MinTestBars:  10,
		},
		Server: Server{Host: "127.0.0.1", Port: 8090},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of the
// defaults, applies environment variable overrides, and validates the
// result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	// Standard Alpaca env vars take priority over the project-specific ones.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := strings.TrimSpace(os.Getenv("USE_DYNAMIC_THRESHOLD")); v != "" {
		cfg.Threshold.UseDynamic = ParseBool(v)
	}
	for name, dst := range map[string]*int{
		"LOOKBACK_DAYS": &cfg.Backtest.LookbackDays,
		"TRAIN_DAYS":    &cfg.WalkForward.TrainDays,
		"TEST_DAYS":     &cfg.WalkForward.TestDays,
	} {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*dst = n
	}
	if v := strings.TrimSpace(os.Getenv("OVERRIDE_THRESHOLDS")); v != "" {
		overrides, err := ParseOverrides(v)
		if err != nil {
			return fmt.Errorf("parsing OVERRIDE_THRESHOLDS: %w", err)
		}
		cfg.Threshold.Overrides = overrides
	}
	return nil
}

// ParseBool accepts the truthy spellings used by the env overrides.
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// ParseOverrides parses a "SYM=0.6,SYM2=0.55" list into a threshold table.
// Items without "=" or with an empty side are skipped.
func ParseOverrides(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, item := range strings.Split(s, ",") {
		code, val, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		code, val = strings.TrimSpace(code), strings.TrimSpace(val)
		if code == "" || val == "" {
			continue
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("threshold for %s: %w", code, err)
		}
		out[code] = f
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Validation and lookups
// ---------------------------------------------------------------------------

// Validate reports the first inconsistent value, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	t := c.Threshold
	switch {
	case c.Backtest.InitialCapital <= 0:
		return fmt.Errorf("%w: backtest.initial_capital must be positive", ErrInvalid)
	case c.Backtest.AnnualizationFactor < 0:
		return fmt.Errorf("%w: backtest.annualization_factor must not be negative", ErrInvalid)
	case c.Risk.LotSize <= 0:
		return fmt.Errorf("%w: risk.lot_size must be positive", ErrInvalid)
	case c.Risk.CashUtilization <= 0 || c.Risk.CashUtilization > 1:
		return fmt.Errorf("%w: risk.cash_utilization must be in (0, 1]", ErrInvalid)
	case c.Risk.ATRMultiplier <= 0 || c.Risk.ATRMultiplierAggressive <= 0:
		return fmt.Errorf("%w: risk ATR multipliers must be positive", ErrInvalid)
	case t.DynamicLookback <= 0:
		return fmt.Errorf("%w: threshold.dynamic_lookback must be positive", ErrInvalid)
	case t.DynamicQuantile < 0 || t.DynamicQuantile > 1:
		return fmt.Errorf("%w: threshold.dynamic_quantile must be in [0, 1]", ErrInvalid)
	case t.DynamicMin > t.DynamicMax:
		return fmt.Errorf("%w: threshold.dynamic_min %.2f exceeds dynamic_max %.2f", ErrInvalid, t.DynamicMin, t.DynamicMax)
	case c.WalkForward.TrainDays <= 0 || c.WalkForward.TestDays <= 0:
		return fmt.Errorf("%w: walk_forward train/test days must be positive", ErrInvalid)
	}
	return nil
}

// IsAggressive reports whether symbol is in the aggressive (high-beta) set.
func (m MarketConfig) IsAggressive(symbol string) bool {
	for _, s := range m.Aggressive {
		if s == symbol {
			return true
		}
	}
	return false
}

// Instrument returns the configured instrument for symbol. Unknown symbols
// get a bare entry with ClassOther.
func (m MarketConfig) Instrument(symbol string) domain.Instrument {
	inst := domain.Instrument{Symbol: symbol, Class: domain.ClassOther}
	for _, i := range m.Instruments {
		if i.Symbol == symbol {
			inst = i
			break
		}
	}
	inst.Aggressive = m.IsAggressive(symbol)
	return inst
}

// Universe returns every configured instrument with its aggressive flag set.
func (m MarketConfig) Universe() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(m.Instruments))
	for _, i := range m.Instruments {
		out = append(out, m.Instrument(i.Symbol))
	}
	return out
}

// Multiplier returns the ATR stop multiplier for an instrument class.
func (r RiskConfig) Multiplier(aggressive bool) float64 {
	if aggressive {
		return r.ATRMultiplierAggressive
	}
	return r.ATRMultiplier
}
