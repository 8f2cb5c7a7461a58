package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run fetches whatever is missing from the store and returns when done
	// or when ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no days.
func (r DateRange) Empty() bool {
	return !r.Start.Before(r.End)
}

// Incremental returns the range to fetch for a symbol whose newest stored
// bar is at last. A zero last means nothing is stored and the range starts
// at start. end is truncated to the day.
func Incremental(start, last, end time.Time) DateRange {
	from := start
	if !last.IsZero() {
		from = last.AddDate(0, 0, 1)
	}
	return DateRange{
		Start: from.UTC().Truncate(24 * time.Hour),
		End:   end.UTC().Truncate(24 * time.Hour),
	}
}
