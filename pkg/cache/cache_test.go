package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Config{Tier1MaxEntries: 100, NodeID: "test-node"})
	require.NoError(t, err)
	return c
}

func TestCacheSetGetRoundtrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key{PlanID: "p1", TenantID: "t1", ParamsHash: "h1"}

	require.NoError(t, c.Set(ctx, key, []byte("value"), time.Minute))

	value, stale, hit := c.Get(ctx, key, ConsistencyEventual)
	assert.True(t, hit)
	assert.False(t, stale)
	assert.Equal(t, []byte("value"), value)
}

func TestCacheStrictConsistencyAlwaysMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key{PlanID: "p1", TenantID: "t1", ParamsHash: "h1"}

	require.NoError(t, c.Set(ctx, key, []byte("value"), time.Minute))

	_, _, hit := c.Get(ctx, key, ConsistencyStrict)
	assert.False(t, hit)
}

func TestCacheRelaxedServesStaleEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key{PlanID: "p1", TenantID: "t1", ParamsHash: "h1"}

	require.NoError(t, c.Set(ctx, key, []byte("value"), -time.Second)) // already expired

	value, stale, hit := c.Get(ctx, key, ConsistencyRelaxed)
	assert.True(t, hit)
	assert.True(t, stale)
	assert.Equal(t, []byte("value"), value)

	_, _, hit = c.Get(ctx, key, ConsistencyEventual)
	assert.False(t, hit)
}

func TestGetOrComputeCollapsesConcurrentCallers(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key{PlanID: "p1", TenantID: "t1", ParamsHash: "h1"}

	var calls int64
	compute := func(context.Context) ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("computed"), nil
	}

	results := make(chan []byte, 5)
	for i := 0; i < 5; i++ {
		go func() {
			v, err := c.GetOrCompute(ctx, key, ConsistencyEventual, time.Minute, compute)
			require.NoError(t, err)
			results <- v
		}()
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, []byte("computed"), <-results)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGetOrComputePropagatesError(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key{PlanID: "p1", TenantID: "t1", ParamsHash: "h1"}

	_, err := c.GetOrCompute(ctx, key, ConsistencyEventual, time.Minute, func(context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestInvalidateWithoutRedisIsNoop(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := Key{PlanID: "p1", TenantID: "t1", ParamsHash: "h1"}

	require.NoError(t, c.Set(ctx, key, []byte("value"), time.Minute))
	require.NoError(t, c.Invalidate(ctx, key))

	_, _, hit := c.Get(ctx, key, ConsistencyEventual)
	assert.False(t, hit)
}
