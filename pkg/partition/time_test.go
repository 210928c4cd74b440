package partition

import (
	"testing"
	"time"

	"github.com/datapunk/lake/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestTruncateToGranularity(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 37, 12, 0, time.UTC) // a Wednesday

	cases := []struct {
		g    types.Granularity
		want time.Time
	}{
		{types.GranularityMinute, time.Date(2026, 7, 29, 14, 37, 0, 0, time.UTC)},
		{types.GranularityHour, time.Date(2026, 7, 29, 14, 0, 0, 0, time.UTC)},
		{types.GranularityDay, time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)},
		{types.GranularityWeek, time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC)}, // Monday
		{types.GranularityMonth, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{types.GranularityQuarter, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{types.GranularityYear, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, c := range cases {
		got := TruncateToGranularity(ts, c.g)
		assert.True(t, got.Equal(c.want), "granularity %s: got %v want %v", c.g, got, c.want)
	}
}

func TestNextPrevBoundaryRoundtrip(t *testing.T) {
	boundary := TruncateToGranularity(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), types.GranularityMonth)
	next := NextBoundary(boundary, types.GranularityMonth)
	assert.True(t, next.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	back := PrevBoundary(next, types.GranularityMonth)
	assert.True(t, back.Equal(boundary))
}

func TestSourceBoundariesDay(t *testing.T) {
	key := types.PartitionKey{
		Kind:        types.PartitionKeyTime,
		Granularity: types.GranularityDay,
		Boundary:    time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC),
	}
	sources := SourceBoundaries(key)
	assert.Len(t, sources, 24)
	assert.True(t, sources[0].Equal(time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)))
	assert.True(t, sources[23].Equal(time.Date(2026, 7, 29, 23, 0, 0, 0, time.UTC)))
}

func TestSourceBoundariesMinuteHasNone(t *testing.T) {
	key := types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: types.GranularityMinute}
	assert.Nil(t, SourceBoundaries(key))
}
