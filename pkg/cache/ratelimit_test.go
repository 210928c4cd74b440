package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{DefaultRPS: 1000, Burst: 1000, Window: time.Minute, FailOpen: true})

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow("tenant-a", "query"))
	}
}

func TestRateLimiterRejectsOverBudget(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{DefaultRPS: 1, Burst: 1, Window: time.Minute, FailOpen: true})

	assert.True(t, rl.Allow("tenant-a", "query"))
	assert.False(t, rl.Allow("tenant-a", "query"))
}

func TestRateLimiterIsolatesTenants(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{DefaultRPS: 1, Burst: 1, Window: time.Minute, FailOpen: true})

	assert.True(t, rl.Allow("tenant-a", "query"))
	assert.True(t, rl.Allow("tenant-b", "query"))
}

func TestRateLimiterSetLimitOverride(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	rl.SetLimit("tenant-vip", "query", 1000, 1000)

	for i := 0; i < 50; i++ {
		assert.True(t, rl.Allow("tenant-vip", "query"))
	}
}
