package threshold

import (
	"fmt"

	"quantetf/internal/config"
	"quantetf/internal/domain"
	"quantetf/internal/regime"
)

// Kind tags a Policy variant.
type Kind string

const (
	KindFixed     Kind = "fixed"
	KindDynamic   Kind = "dynamic"
	KindOverride  Kind = "override"
	KindBearGated Kind = "bear-gated"
)

// Mode selects between the fixed and dynamic families when no override is
// in effect.
type Mode string

const (
	ModeFixed   Mode = "fixed"
	ModeDynamic Mode = "dynamic"
)

// ParseMode accepts "fixed" or "dynamic".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFixed, ModeDynamic:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown threshold mode %q", s)
}

// Decision is the outcome of threshold resolution for one bar. Score is the
// effective score the state machine sees; it is 0.0 when the bar was
// suppressed by the bear-market gate.
type Decision struct {
	Score      float64
	Threshold  float64
	Suppressed bool
}

// Policy is a sealed tagged variant: Fixed, Dynamic, Override or BearGated.
// A Policy is immutable for the duration of a pass over the bars.
type Policy interface {
	Kind() Kind
	// Evaluate resolves bar i given the raw score series and the bar date.
	Evaluate(scores []float64, i int, date string) Decision
	// Base reports the fixed/dynamic family the policy belongs to.
	Base() Kind
}

// Fixed applies a constant threshold.
type Fixed struct{ Value float64 }

// Kind implements Policy.
func (Fixed) Kind() Kind { return KindFixed }

// Base implements Policy.
func (Fixed) Base() Kind { return KindFixed }

// Evaluate returns the raw score against the constant threshold.
func (p Fixed) Evaluate(scores []float64, i int, _ string) Decision {
	return Decision{Score: scores[i], Threshold: p.Value}
}

// Override is an explicit per-instrument threshold used for tuning. It
// bypasses every other rule, including the bear gate.
type Override struct{ Value float64 }

// Kind implements Policy.
func (Override) Kind() Kind { return KindOverride }

// Base implements Policy. An override belongs to the fixed family.
func (Override) Base() Kind { return KindFixed }

// Evaluate returns the raw score against the override value on every day.
func (p Override) Evaluate(scores []float64, i int, _ string) Decision {
	return Decision{Score: scores[i], Threshold: p.Value}
}

// DynamicPolicy recomputes the threshold at every bar from the trailing
// score window.
type DynamicPolicy struct{ Params Dynamic }

// Kind implements Policy.
func (DynamicPolicy) Kind() Kind { return KindDynamic }

// Base implements Policy.
func (DynamicPolicy) Base() Kind { return KindDynamic }

// Evaluate returns the raw score against the threshold computed from the
// trailing window ending at bar i.
func (p DynamicPolicy) Evaluate(scores []float64, i int, _ string) Decision {
	return Decision{Score: scores[i], Threshold: p.Params.At(scores, i)}
}

// BearGated wraps a bull-market policy. On bear days it applies the fixed
// bear bar uniformly; scores below it are forced to 0.0 and counted as
// suppressed.
type BearGated struct {
	Inner  Policy
	Regime *regime.Map
	Bear   float64
}

// Kind implements Policy.
func (BearGated) Kind() Kind { return KindBearGated }

// Base reports the family of the wrapped bull-market policy.
func (p BearGated) Base() Kind { return p.Inner.Base() }

// Evaluate defers to Inner on bull days and applies the bear bar otherwise.
func (p BearGated) Evaluate(scores []float64, i int, date string) Decision {
	if p.Regime.IsBull(date) {
		return p.Inner.Evaluate(scores, i, date)
	}
	if scores[i] >= p.Bear {
		return Decision{Score: scores[i], Threshold: p.Bear}
	}
	return Decision{Score: 0, Threshold: p.Bear, Suppressed: true}
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Resolver builds per-instrument policies from configuration. It holds no
// mutable state and is safe to share across goroutines.
type Resolver struct {
	cfg    config.ThresholdConfig
	regime *regime.Map
}

// NewResolver creates a Resolver. A nil regime map treats every day as bull.
func NewResolver(cfg config.ThresholdConfig, rm *regime.Map) *Resolver {
	return &Resolver{cfg: cfg, regime: rm}
}

// Status returns the market status label for date.
func (r *Resolver) Status(date string) string {
	return r.regime.Status(date)
}

// DynamicParams returns the configured dynamic-threshold parameters.
func (r *Resolver) DynamicParams() Dynamic {
	return Dynamic{
		Lookback: r.cfg.DynamicLookback,
		Quantile: r.cfg.DynamicQuantile,
		Min:      r.cfg.DynamicMin,
		Max:      r.cfg.DynamicMax,
	}
}

// FixedValue returns the per-instrument table entry, falling back to the
// class default (lower bar for aggressive instruments).
func (r *Resolver) FixedValue(inst domain.Instrument) float64 {
	if v, ok := r.cfg.PerSymbol[inst.Symbol]; ok {
		return v
	}
	if inst.Aggressive {
		return r.cfg.Aggressive
	}
	return r.cfg.Standard
}

// Policy resolves the policy for inst, highest precedence first: explicit
// override, then the bear gate around either the dynamic threshold or the
// fixed table/class default.
func (r *Resolver) Policy(inst domain.Instrument, mode Mode, overrides map[string]float64) Policy {
	if v, ok := overrides[inst.Symbol]; ok {
		return Override{Value: v}
	}

	var inner Policy = Fixed{Value: r.FixedValue(inst)}
	if mode == ModeDynamic {
		inner = DynamicPolicy{Params: r.DynamicParams()}
	}
	return BearGated{Inner: inner, Regime: r.regime, Bear: r.cfg.Bear}
}

// DefaultMode picks the policy family used outside walk-forward selection:
// fixed whenever overrides are supplied or for wide-index instruments,
// dynamic for sector instruments, otherwise the configured default.
func (r *Resolver) DefaultMode(inst domain.Instrument, overrides map[string]float64) Mode {
	switch {
	case len(overrides) > 0:
		return ModeFixed
	case inst.Class == domain.ClassWideIndex:
		return ModeFixed
	case inst.Class == domain.ClassSector:
		return ModeDynamic
	case r.cfg.UseDynamic:
		return ModeDynamic
	}
	return ModeFixed
}

// ---------------------------------------------------------------------------
// Applying a policy to a series
// ---------------------------------------------------------------------------

// Signals is a policy evaluated over a whole series.
type Signals struct {
	Policy     Kind
	Base       Kind
	Scores     []float64
	Thresholds []float64
	Suppressed int
}

// Apply evaluates p for every bar. dates and scores must be aligned.
func Apply(p Policy, dates []string, scores []float64) Signals {
	s := Signals{
		Policy:     p.Kind(),
		Base:       p.Base(),
		Scores:     make([]float64, len(scores)),
		Thresholds: make([]float64, len(scores)),
	}
	for i := range scores {
		d := p.Evaluate(scores, i, dates[i])
		s.Scores[i] = d.Score
		s.Thresholds[i] = d.Threshold
		if d.Suppressed {
			s.Suppressed++
		}
	}
	return s
}
