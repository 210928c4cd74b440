package partition

import (
	"fmt"
	"time"

	"github.com/datapunk/lake/pkg/events"
	"github.com/datapunk/lake/pkg/monitor"
	"github.com/datapunk/lake/pkg/storage"
	"github.com/datapunk/lake/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RollupManager builds coarser-grained materialized partitions from their
// finer-grained sources (e.g. a day rollup from its 24 hour partitions),
// merging record sets and column stats rather than re-scanning raw records.
type RollupManager struct {
	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger
}

// NewRollupManager builds a RollupManager.
func NewRollupManager(store storage.Store, broker *events.Broker, logger zerolog.Logger) *RollupManager {
	return &RollupManager{
		store:  store,
		broker: broker,
		logger: logger.With().Str("component", "rollup").Logger(),
	}
}

// Rollup builds (or rebuilds) the coarser partition identified by key from
// its already-materialized finer-grained source partitions. Source
// partitions that don't exist yet are skipped, not treated as an error,
// since a rollup may run before every source boundary has closed.
func (m *RollupManager) Rollup(key types.PartitionKey) (*types.Partition, error) {
	if key.Kind != types.PartitionKeyTime {
		return nil, fmt.Errorf("rollup only applies to time partitions, got %s", key.Kind)
	}

	sourceBoundaries := SourceBoundaries(key)
	if sourceBoundaries == nil {
		return nil, fmt.Errorf("granularity %s has no finer source to roll up from", key.Granularity)
	}
	finer, _ := finerGranularity(key.Granularity)

	target := &types.Partition{
		Key:               key,
		Stats:             make(map[string]types.ColumnStats),
		SourceGranularity: finer,
	}

	found := 0
	for _, b := range sourceBoundaries {
		srcKey := types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: finer, Boundary: b}
		src, err := m.store.GetPartition(srcKey.String())
		if err != nil {
			continue // source not materialized (yet)
		}
		found++
		mergeInto(target, src)
	}
	if found == 0 {
		return nil, fmt.Errorf("no materialized source partitions found for %s", key.String())
	}

	target.Version++
	existing, err := m.store.GetPartition(key.String())
	if err == nil && existing != nil {
		target.Version = existing.Version + 1
		if err := m.store.UpdatePartition(target); err != nil {
			return nil, fmt.Errorf("update rollup partition: %w", err)
		}
	} else {
		target.Version = 1
		if err := m.store.CreatePartition(target); err != nil {
			return nil, fmt.Errorf("create rollup partition: %w", err)
		}
	}

	monitor.RollupsTotal.WithLabelValues(string(finer)).Inc()
	m.logger.Info().
		Str("partition", key.String()).
		Int("sources_merged", found).
		Msg("rollup complete")

	if m.broker != nil {
		m.broker.Publish(&events.Event{
			ID:      uuid.NewString(),
			Type:    events.EventPartitionRollup,
			Message: "rolled up " + key.String() + " from " + fmt.Sprint(found) + " source partitions",
			Metadata: map[string]string{
				"partition_key": key.String(),
				"granularity":   string(key.Granularity),
			},
		})
	}

	return target, nil
}

// mergeInto folds src's records and stats into target, which accumulates
// across all of a rollup's source partitions.
func mergeInto(target, src *types.Partition) {
	target.RecordIDs = append(target.RecordIDs, src.RecordIDs...)
	target.SizeBytes += src.SizeBytes
	target.RecordCount += src.RecordCount

	if target.FirstTimestamp.IsZero() || (!src.FirstTimestamp.IsZero() && src.FirstTimestamp.Before(target.FirstTimestamp)) {
		target.FirstTimestamp = src.FirstTimestamp
	}
	if src.LastTimestamp.After(target.LastTimestamp) {
		target.LastTimestamp = src.LastTimestamp
	}

	for col, stats := range src.Stats {
		existing, ok := target.Stats[col]
		if !ok {
			target.Stats[col] = stats
			continue
		}
		target.Stats[col] = mergeColumnStats(existing, stats)
	}
}

func mergeColumnStats(a, b types.ColumnStats) types.ColumnStats {
	out := types.ColumnStats{
		Min:            minFloat(a.Min, b.Min),
		Max:            maxFloat(a.Max, b.Max),
		DistinctApprox: a.DistinctApprox + b.DistinctApprox, // coarse upper bound, not deduplicated
	}
	if a.Histogram != nil || b.Histogram != nil {
		out.Histogram = make(map[string]int64, len(a.Histogram)+len(b.Histogram))
		for k, v := range a.Histogram {
			out.Histogram[k] += v
		}
		for k, v := range b.Histogram {
			out.Histogram[k] += v
		}
	}
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Run periodically attempts rollups for the given granularities, each at
// the boundary closing at or before now. The caller owns the goroutine;
// Run blocks until stopCh closes.
func (m *RollupManager) Run(granularities []types.Granularity, interval time.Duration, stopCh <-chan struct{}, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case t := <-ticker.C:
			n := t
			if now != nil {
				n = now()
			}
			for _, g := range granularities {
				boundary := PrevBoundary(TruncateToGranularity(n, g), g)
				key := types.PartitionKey{Kind: types.PartitionKeyTime, Granularity: g, Boundary: boundary}
				if _, err := m.Rollup(key); err != nil {
					m.logger.Debug().Err(err).Str("partition", key.String()).Msg("rollup skipped")
				}
			}
		}
	}
}
