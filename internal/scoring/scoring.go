// Package scoring defines the Scorer capability that turns an annotated bar
// series into per-bar scores in [0, 1], and provides a Registry for the
// available implementations.
package scoring

import (
	"context"
	"sort"

	"quantetf/internal/domain"
)

// Scorer produces one score per bar, aligned with the input. A score
// estimates the chance of a favourable forward return; the simulation is
// agnostic to how it was produced.
type Scorer interface {
	// Name returns the unique identifier for this scorer.
	Name() string

	// Score returns len(bars) scores for symbol's series. Implementations
	// must not look at bars after index i when scoring bar i.
	Score(ctx context.Context, symbol string, bars []domain.FeatureBar) ([]float64, error)
}

// Registry holds a named collection of scorers for lookup and enumeration.
type Registry struct {
	scorers map[string]Scorer
}

// NewRegistry creates an empty scorer Registry.
func NewRegistry() *Registry {
	return &Registry{
		scorers: make(map[string]Scorer),
	}
}

// Register adds a scorer to the registry, keyed by its Name().
func (r *Registry) Register(s Scorer) {
	r.scorers[s.Name()] = s
}

// Get retrieves a scorer by name. The second return value indicates whether
// the scorer was found.
func (r *Registry) Get(name string) (Scorer, bool) {
	s, ok := r.scorers[name]
	return s, ok
}

// List returns a sorted slice of all registered scorer names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.scorers))
	for name := range r.scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns a Registry holding the rule-based scorer and, when src is
// non-nil, the precomputed model scorer.
func Builtins(src ScoreSource, market domain.Market) *Registry {
	r := NewRegistry()
	r.Register(NewRuleBased())
	if src != nil {
		r.Register(NewPrecomputed(src, market))
	}
	return r
}
