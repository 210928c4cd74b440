package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartitionKeyStringTimeVariant(t *testing.T) {
	boundary := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	key := PartitionKey{Kind: PartitionKeyTime, Granularity: GranularityDay, Boundary: boundary}
	assert.Equal(t, "time:day:2026-03-01T00:00:00Z", key.String())
}

func TestPartitionKeyStringNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	boundary := time.Date(2026, 3, 1, 0, 0, 0, 0, loc)
	key := PartitionKey{Kind: PartitionKeyTime, Granularity: GranularityHour, Boundary: boundary}
	assert.Equal(t, "time:hour:2026-03-01T05:00:00Z", key.String())
}

func TestPartitionKeyStringGridVariant(t *testing.T) {
	key := PartitionKey{Kind: PartitionKeyGrid, System: GridGeohash, CellID: "9q8yy"}
	assert.Equal(t, "grid:geohash:9q8yy", key.String())
}

func TestPartitionKeyStringInvalidKind(t *testing.T) {
	key := PartitionKey{Kind: PartitionKeyKind("bogus")}
	assert.Equal(t, "invalid", key.String())
}

func TestPartitionKeyStringIsStableForCacheFingerprints(t *testing.T) {
	boundary := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := PartitionKey{Kind: PartitionKeyTime, Granularity: GranularityDay, Boundary: boundary}
	b := PartitionKey{Kind: PartitionKeyTime, Granularity: GranularityDay, Boundary: boundary}
	assert.Equal(t, a.String(), b.String())
}
