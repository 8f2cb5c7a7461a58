package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"quantetf/internal/domain"
)

func indexBar(day int, close, ma60 float64) domain.FeatureBar {
	return domain.FeatureBar{
		Bar: domain.Bar{
			Symbol:    "000300.SH",
			Timestamp: time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC),
			Close:     close,
		},
		Indicators: domain.Indicators{MA60: ma60},
	}
}

func TestClassify(t *testing.T) {
	m := Classify([]domain.FeatureBar{
		indexBar(2, 3900, math.NaN()), // warm-up: optimistic default
		indexBar(3, 4000, 3950),
		indexBar(6, 3900, 3950),
		indexBar(7, 3950, 3950), // equal is not above
	})

	assert.Equal(t, 4, m.Len())
	assert.True(t, m.IsBull("2025-01-02"))
	assert.True(t, m.IsBull("2025-01-03"))
	assert.False(t, m.IsBull("2025-01-06"))
	assert.False(t, m.IsBull("2025-01-07"))
	assert.Equal(t, 2, m.BearDays())
	assert.Equal(t, "Bear Market", m.Status("2025-01-06"))
}

func TestLookupMissDefaultsToBull(t *testing.T) {
	m := FromDates(map[string]bool{"2025-01-06": false})
	assert.True(t, m.IsBull("2030-01-01"))

	var nilMap *Map
	assert.True(t, nilMap.IsBull("2025-01-06"))
	assert.Zero(t, nilMap.Len())
}
