package partition

import (
	"time"

	"github.com/datapunk/lake/pkg/types"
)

// TruncateToGranularity rounds t down to the start of its Granularity
// bucket, in UTC.
func TruncateToGranularity(t time.Time, g types.Granularity) time.Time {
	t = t.UTC()
	switch g {
	case types.GranularityMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case types.GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case types.GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case types.GranularityWeek:
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(d.Weekday()) + 6) % 7 // ISO week starts Monday
		return d.AddDate(0, 0, -offset)
	case types.GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case types.GranularityQuarter:
		quarterStartMonth := ((int(t.Month())-1)/3)*3 + 1
		return time.Date(t.Year(), time.Month(quarterStartMonth), 1, 0, 0, 0, 0, time.UTC)
	case types.GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// NextBoundary returns the start of the next bucket after boundary at
// granularity g.
func NextBoundary(boundary time.Time, g types.Granularity) time.Time {
	switch g {
	case types.GranularityMinute:
		return boundary.Add(time.Minute)
	case types.GranularityHour:
		return boundary.Add(time.Hour)
	case types.GranularityDay:
		return boundary.AddDate(0, 0, 1)
	case types.GranularityWeek:
		return boundary.AddDate(0, 0, 7)
	case types.GranularityMonth:
		return boundary.AddDate(0, 1, 0)
	case types.GranularityQuarter:
		return boundary.AddDate(0, 3, 0)
	case types.GranularityYear:
		return boundary.AddDate(1, 0, 0)
	default:
		return boundary
	}
}

// PrevBoundary returns the start of the bucket before boundary at
// granularity g.
func PrevBoundary(boundary time.Time, g types.Granularity) time.Time {
	switch g {
	case types.GranularityMinute:
		return boundary.Add(-time.Minute)
	case types.GranularityHour:
		return boundary.Add(-time.Hour)
	case types.GranularityDay:
		return boundary.AddDate(0, 0, -1)
	case types.GranularityWeek:
		return boundary.AddDate(0, 0, -7)
	case types.GranularityMonth:
		return boundary.AddDate(0, -1, 0)
	case types.GranularityQuarter:
		return boundary.AddDate(0, -3, 0)
	case types.GranularityYear:
		return boundary.AddDate(-1, 0, 0)
	default:
		return boundary
	}
}

// KeyForTime builds a time PartitionKey for t at granularity g.
func KeyForTime(t time.Time, g types.Granularity) types.PartitionKey {
	return types.PartitionKey{
		Kind:        types.PartitionKeyTime,
		Granularity: g,
		Boundary:    TruncateToGranularity(t, g),
	}
}

// finerGranularity returns the granularity one step finer than g, used by
// the rollup job to find the source partitions a coarser partition is
// built from. Returns ok=false for GranularityMinute, the finest level.
func finerGranularity(g types.Granularity) (types.Granularity, bool) {
	switch g {
	case types.GranularityHour:
		return types.GranularityMinute, true
	case types.GranularityDay:
		return types.GranularityHour, true
	case types.GranularityWeek:
		return types.GranularityDay, true
	case types.GranularityMonth:
		return types.GranularityDay, true
	case types.GranularityQuarter:
		return types.GranularityMonth, true
	case types.GranularityYear:
		return types.GranularityQuarter, true
	default:
		return "", false
	}
}

// SourceBoundaries returns the Boundary values of every finer-grained
// partition that rolls up into the partition identified by key.
func SourceBoundaries(key types.PartitionKey) []time.Time {
	finer, ok := finerGranularity(key.Granularity)
	if !ok {
		return nil
	}

	end := NextBoundary(key.Boundary, key.Granularity)
	var out []time.Time
	for b := key.Boundary; b.Before(end); b = NextBoundary(b, finer) {
		out = append(out, b)
	}
	return out
}
