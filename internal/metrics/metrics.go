// Package metrics exposes simulation counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quantetf/internal/strategy"
)

var _ strategy.Recorder = (*Recorder)(nil)

// Recorder holds the quantetf collectors on its own registry so tests and
// multiple servers in one process never collide on the global one.
type Recorder struct {
	registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	Trades         *prometheus.CounterVec
	SuppressedDays *prometheus.CounterVec
	Skipped        *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	SavedRuns      prometheus.Counter
}

// NewRecorder creates and registers every collector.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantetf_backtest_runs_total",
				Help: "Completed per-instrument simulations by policy and mode",
			},
			[]string{"policy", "mode"},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantetf_trades_total",
				Help: "Simulated trades by action",
			},
			[]string{"action"},
		),

		SuppressedDays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantetf_suppressed_days_total",
				Help: "Bear-market days whose score was forced to zero",
			},
			[]string{"symbol"},
		),

		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantetf_instruments_skipped_total",
				Help: "Instruments skipped during a batch by reason",
			},
			[]string{"reason"},
		),

		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantetf_backtest_duration_seconds",
				Help:    "Wall time of a single instrument simulation",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"policy"},
		),

		SavedRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantetf_saved_runs_total",
				Help: "Backtest results persisted to the result store",
			},
		),
	}

	r.registry.MustRegister(
		r.Runs,
		r.Trades,
		r.SuppressedDays,
		r.Skipped,
		r.RunDuration,
		r.SavedRuns,
	)
	return r
}

// Registry returns the registry the collectors are registered with.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RunCompleted records one finished simulation.
func (r *Recorder) RunCompleted(res *strategy.BacktestResult, elapsed time.Duration) {
	if res == nil {
		return
	}
	r.Runs.WithLabelValues(string(res.Policy), string(res.Mode)).Inc()
	r.RunDuration.WithLabelValues(string(res.Policy)).Observe(elapsed.Seconds())
	for _, t := range res.Trades {
		r.Trades.WithLabelValues(string(t.Action)).Inc()
	}
	if res.SuppressedDays > 0 {
		r.SuppressedDays.WithLabelValues(res.Instrument.Symbol).Add(float64(res.SuppressedDays))
	}
}

// InstrumentSkipped records an instrument dropped from a batch.
func (r *Recorder) InstrumentSkipped(_ string, reason string) {
	r.Skipped.WithLabelValues(reason).Inc()
}

// RunSaved records a result written to the result store.
func (r *Recorder) RunSaved() { r.SavedRuns.Inc() }
