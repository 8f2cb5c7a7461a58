// Package regime classifies each trading day as bull or bear from a
// reference index series.
package regime

import (
	"math"

	"quantetf/internal/domain"
)

// Map is a read-only date -> is_bull lookup built once from the index
// series. It must be fully constructed before any simulation starts and is
// safe for concurrent reads afterwards.
type Map struct {
	bull map[string]bool
}

// Classify builds a Map from index bars annotated with a 60-day moving
// average: bull when close > MA60, and bull when MA60 is still undefined so
// that warm-up does not block all trading.
func Classify(index []domain.FeatureBar) *Map {
	m := &Map{bull: make(map[string]bool, len(index))}
	for _, b := range index {
		m.bull[b.Date()] = math.IsNaN(b.MA60) || b.Close > b.MA60
	}
	return m
}

// FromDates builds a Map from explicit labels.
func FromDates(labels map[string]bool) *Map {
	m := &Map{bull: make(map[string]bool, len(labels))}
	for d, v := range labels {
		m.bull[d] = v
	}
	return m
}

// IsBull returns the label for date. Unknown dates, and a nil Map, are bull.
func (m *Map) IsBull(date string) bool {
	if m == nil {
		return true
	}
	v, ok := m.bull[date]
	if !ok {
		return true
	}
	return v
}

// Len returns the number of classified dates.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.bull)
}

// BearDays counts the bear-labelled dates.
func (m *Map) BearDays() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, v := range m.bull {
		if !v {
			n++
		}
	}
	return n
}

// Status returns the human-readable market status for date.
func (m *Map) Status(date string) string {
	if m.IsBull(date) {
		return "Bull Market"
	}
	return "Bear Market"
}
