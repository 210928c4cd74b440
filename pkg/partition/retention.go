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

// RetentionPolicy bounds how long time partitions at a given granularity
// are kept before eviction. A zero MaxAge means "keep forever".
type RetentionPolicy struct {
	Granularity types.Granularity
	MaxAge      time.Duration
}

// RetentionManager evicts time partitions that have aged out of policy.
type RetentionManager struct {
	store    storage.Store
	broker   *events.Broker
	logger   zerolog.Logger
	policies map[types.Granularity]time.Duration
}

// NewRetentionManager builds a RetentionManager with no policies configured;
// call SetPolicy to add one per granularity.
func NewRetentionManager(store storage.Store, broker *events.Broker, logger zerolog.Logger) *RetentionManager {
	return &RetentionManager{
		store:    store,
		broker:   broker,
		logger:   logger.With().Str("component", "retention").Logger(),
		policies: make(map[types.Granularity]time.Duration),
	}
}

// SetPolicy configures the retention window for a granularity.
func (r *RetentionManager) SetPolicy(p RetentionPolicy) {
	r.policies[p.Granularity] = p.MaxAge
}

// Sweep evicts every time partition whose Boundary end is older than its
// granularity's configured MaxAge, relative to now. Grid partitions are
// never subject to retention. Returns the number of partitions evicted.
func (r *RetentionManager) Sweep(now time.Time) (int, error) {
	partitions, err := r.store.ListPartitions()
	if err != nil {
		return 0, fmt.Errorf("list partitions: %w", err)
	}

	evicted := 0
	for _, p := range partitions {
		if p.Key.Kind != types.PartitionKeyTime {
			continue
		}
		maxAge, ok := r.policies[p.Key.Granularity]
		if !ok || maxAge <= 0 {
			continue
		}

		end := NextBoundary(p.Key.Boundary, p.Key.Granularity)
		if now.Sub(end) < maxAge {
			continue
		}

		if err := r.store.DeletePartition(p.Key.String()); err != nil {
			r.logger.Warn().Err(err).Str("partition", p.Key.String()).Msg("failed to evict partition")
			continue
		}
		evicted++
		monitor.RetentionEvictionsTotal.WithLabelValues(string(p.Key.Granularity)).Inc()
		r.logger.Info().Str("partition", p.Key.String()).Msg("evicted partition past retention window")

		if r.broker != nil {
			r.broker.Publish(&events.Event{
				ID:      uuid.NewString(),
				Type:    events.EventPartitionRevoked,
				Message: "retention sweep evicted " + p.Key.String(),
				Metadata: map[string]string{
					"partition_key": p.Key.String(),
					"granularity":   string(p.Key.Granularity),
				},
			})
		}
	}
	return evicted, nil
}

// Run periodically sweeps at interval until ctx/stopCh signals exit. The
// caller owns the goroutine; Run blocks.
func (r *RetentionManager) Run(interval time.Duration, stopCh <-chan struct{}, now func() time.Time) {
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
			if evicted, err := r.Sweep(n); err != nil {
				r.logger.Error().Err(err).Msg("retention sweep failed")
			} else if evicted > 0 {
				r.logger.Info().Int("evicted", evicted).Msg("retention sweep complete")
			}
		}
	}
}
