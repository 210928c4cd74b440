package optimizer

import (
	"regexp"
	"time"

	"github.com/datapunk/lake/pkg/partition"
	"github.com/datapunk/lake/pkg/types"
)

// TemporalRewriteRule recognizes a time-range predicate (two or more
// RFC3339 timestamp literals bounding a column, e.g. the canonical text of
// "timestamp >= x AND timestamp <= y") and converts it into an explicit
// partition filter on
// every Scan beneath it, so the executor only touches partitions that can
// possibly contain matching rows instead of scanning everything and
// filtering in memory.
type TemporalRewriteRule struct {
	Granularity types.Granularity
}

// NewTemporalRewriteRule builds a TemporalRewriteRule at day granularity,
// matching pkg/config's PartitionConfig.DefaultGranularity default.
func NewTemporalRewriteRule() TemporalRewriteRule {
	return TemporalRewriteRule{Granularity: types.GranularityDay}
}

var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:Z|[+-]\d{2}:\d{2})?`)

func (r TemporalRewriteRule) Name() string { return "temporal_rewrite" }

func (r TemporalRewriteRule) Apply(root *types.PlanNode, stats *StatisticsCache) (*types.PlanNode, bool) {
	granularity := r.Granularity
	if granularity == "" {
		granularity = types.GranularityDay
	}

	return rewriteTree(root, func(n *types.PlanNode) (*types.PlanNode, bool) {
		if n.Kind != types.PlanFilter {
			return n, false
		}
		keys := partitionKeysFromPredicate(n.Predicate, granularity)
		if len(keys) == 0 {
			return n, false
		}
		newInput, changed := attachPartitionFilter(n.Input, keys)
		if !changed {
			return n, false
		}
		nn := *n
		nn.Input = newInput
		return &nn, true
	})
}

func partitionKeysFromPredicate(predicate string, granularity types.Granularity) []string {
	matches := timestampPattern.FindAllString(predicate, -1)
	if len(matches) == 0 {
		return nil
	}
	var times []time.Time
	for _, m := range matches {
		if t, err := time.Parse(time.RFC3339, m); err == nil {
			times = append(times, t)
		}
	}
	if len(times) < 2 {
		return nil
	}
	start, end := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(start) {
			start = t
		}
		if t.After(end) {
			end = t
		}
	}

	var keys []string
	b := partition.TruncateToGranularity(start, granularity)
	for !b.After(end) {
		keys = append(keys, partition.KeyForTime(b, granularity).String())
		b = partition.NextBoundary(b, granularity)
	}
	return keys
}

func attachPartitionFilter(root *types.PlanNode, keys []string) (*types.PlanNode, bool) {
	return rewriteTree(root, func(n *types.PlanNode) (*types.PlanNode, bool) {
		if n.Kind != types.PlanScan {
			return n, false
		}
		if sameStrings(n.PartitionFilter, keys) {
			return n, false
		}
		nn := *n
		nn.PartitionFilter = keys
		return &nn, true
	})
}

func (r TemporalRewriteRule) EstimatedCost(root *types.PlanNode, stats *StatisticsCache) float64 {
	return baseCost(root, stats)
}
