package partition

import (
	"testing"
	"time"

	"github.com/datapunk/lake/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollupMergesHourPartitionsIntoDay(t *testing.T) {
	store := newTestStore(t)
	rm := NewRollupManager(store, nil, zerolog.Nop())

	day := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 3; h++ {
		boundary := day.Add(time.Duration(h) * time.Hour)
		p := &types.Partition{
			Key:            types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: types.GranularityHour, Boundary: boundary},
			RecordIDs:      []string{"rec-" + boundary.Format(time.RFC3339)},
			RecordCount:    10,
			SizeBytes:      1024,
			FirstTimestamp: boundary,
			LastTimestamp:  boundary.Add(59 * time.Minute),
			Stats: map[string]types.ColumnStats{
				"age": {Min: 1, Max: 90, DistinctApprox: 5},
			},
		}
		require.NoError(t, store.CreatePartition(p))
	}

	dayKey := types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: types.GranularityDay, Boundary: day}
	result, err := rm.Rollup(dayKey)
	require.NoError(t, err)

	assert.Equal(t, int64(30), result.RecordCount)
	assert.Equal(t, int64(3072), result.SizeBytes)
	assert.Len(t, result.RecordIDs, 3)
	assert.Equal(t, types.GranularityHour, result.SourceGranularity)
	assert.Equal(t, float64(1), result.Stats["age"].Min)
	assert.Equal(t, float64(90), result.Stats["age"].Max)

	stored, err := store.GetPartition(dayKey.String())
	require.NoError(t, err)
	assert.Equal(t, result.RecordCount, stored.RecordCount)
}

func TestRollupFailsWithNoSources(t *testing.T) {
	store := newTestStore(t)
	rm := NewRollupManager(store, nil, zerolog.Nop())

	dayKey := types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: types.GranularityDay,
		Boundary: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, err := rm.Rollup(dayKey)
	assert.Error(t, err)
}

func TestRollupRejectsGridKey(t *testing.T) {
	store := newTestStore(t)
	rm := NewRollupManager(store, nil, zerolog.Nop())

	gridKey := types.PartitionKey{Kind: types.PartitionKeyGrid, System: types.GridGeohash, CellID: "u09"}
	_, err := rm.Rollup(gridKey)
	assert.Error(t, err)
}

func TestRollupRerunIncrementsVersion(t *testing.T) {
	store := newTestStore(t)
	rm := NewRollupManager(store, nil, zerolog.Nop())

	hour := time.Date(2026, 7, 29, 5, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreatePartition(&types.Partition{
		Key: types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: types.GranularityMinute, Boundary: hour},
	}))

	hourKey := types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: types.GranularityHour, Boundary: hour}

	// Minute rollup only has one of 60 sources, enough to succeed once.
	first, err := rm.Rollup(hourKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)

	second, err := rm.Rollup(hourKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Version)
}
