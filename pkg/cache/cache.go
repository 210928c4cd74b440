// Package cache implements C3: a two-tier (in-process LRU + Redis) result
// cache with Pub/Sub invalidation, single-flight stampede protection, and
// thundering-herd jitter on TTLs.
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/datapunk/lake/pkg/log"
	"github.com/datapunk/lake/pkg/monitor"
)

// Consistency controls how strictly reads must observe the latest write.
type Consistency string

const (
	// ConsistencyStrict bypasses the cache entirely on every read.
	ConsistencyStrict Consistency = "strict"
	// ConsistencyEventual serves cached results until TTL/invalidation.
	ConsistencyEventual Consistency = "eventual"
	// ConsistencyRelaxed lets Get return an entry past its TTL, flagged
	// stale. Nothing refills it in the background; GetOrCompute recomputes
	// a stale entry synchronously.
	ConsistencyRelaxed Consistency = "relaxed"
)

// Key identifies a cached query/plan result.
type Key struct {
	PlanID     string
	TenantID   string
	ParamsHash string
}

func (k Key) l1() string {
	var sb strings.Builder
	sb.Grow(len(k.PlanID) + len(k.TenantID) + len(k.ParamsHash) + 2)
	sb.WriteString(k.TenantID)
	sb.WriteByte('|')
	sb.WriteString(k.PlanID)
	sb.WriteByte('|')
	sb.WriteString(k.ParamsHash)
	return sb.String()
}

// Entry is one cached value plus the bookkeeping needed for jittered TTL
// expiry and stale relaxed reads.
type Entry struct {
	Value     []byte    `json:"value"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InvalidationEvent is broadcast over Redis Pub/Sub when a plan's results
// are invalidated, so every node purges its L1 tier.
type InvalidationEvent struct {
	PlanID       string `json:"plan_id"`
	TenantID     string `json:"tenant_id"`
	SourceNodeID string `json:"source_node_id"`
}

// Cache is a two-tier result cache: an in-process LRU (tier 1) in front of
// Redis (tier 2), with single-flight collapsing concurrent recomputes for
// the same key and jittered TTLs to avoid synchronized mass expiry.
type Cache struct {
	l1            *lru.Cache[string, *Entry]
	redis         *redis.Client
	nodeID        string
	invalidateKey string
	jitterFrac    float64

	flight singleflight.Group
}

// Config configures a new Cache.
type Config struct {
	Tier1MaxEntries int
	RedisAddr       string
	NodeID          string
	JitterFraction  float64
}

// New constructs a Cache. If cfg.RedisAddr is empty, the cache runs
// L1-only (useful for tests and single-node deployments).
func New(cfg Config) (*Cache, error) {
	if cfg.Tier1MaxEntries <= 0 {
		cfg.Tier1MaxEntries = 10_000
	}
	if cfg.JitterFraction <= 0 {
		cfg.JitterFraction = 0.1
	}

	l1, err := lru.New[string, *Entry](cfg.Tier1MaxEntries)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		l1:            l1,
		nodeID:        cfg.NodeID,
		invalidateKey: "lake:cache:invalidate",
		jitterFrac:    cfg.JitterFraction,
	}
	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return c, nil
}

// jitteredTTL spreads expirations across [ttl*(1-frac), ttl*(1+frac)] using
// a cheap deterministic spread derived from the key, avoiding a thundering
// herd of simultaneous recomputes when many entries share a base TTL.
func (c *Cache) jitteredTTL(key string, ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	h := fnv32(key)
	spread := float64(h%1000) / 1000.0 // [0,1)
	factor := 1 - c.jitterFrac + 2*c.jitterFrac*spread
	return time.Duration(float64(ttl) * factor)
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Get looks up key under the given consistency mode. ConsistencyStrict
// always misses. ConsistencyEventual treats an expired entry as a miss.
// ConsistencyRelaxed returns an expired-but-present entry with stale=true;
// Get itself starts no refill.
func (c *Cache) Get(ctx context.Context, key Key, consistency Consistency) (value []byte, stale bool, hit bool) {
	if consistency == ConsistencyStrict {
		return nil, false, false
	}

	l1Key := key.l1()
	if entry, ok := c.l1.Get(l1Key); ok {
		monitor.CacheHitsTotal.WithLabelValues("l1").Inc()
		return c.evaluate(entry, consistency)
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, l1Key).Bytes()
		if err == nil {
			var entry Entry
			if jsonErr := json.Unmarshal(data, &entry); jsonErr == nil {
				c.l1.Add(l1Key, &entry)
				monitor.CacheHitsTotal.WithLabelValues("l2").Inc()
				return c.evaluate(&entry, consistency)
			}
		}
	}

	monitor.CacheMissesTotal.Inc()
	return nil, false, false
}

func (c *Cache) evaluate(entry *Entry, consistency Consistency) ([]byte, bool, bool) {
	expired := time.Now().After(entry.ExpiresAt)
	if !expired {
		return entry.Value, false, true
	}
	if consistency == ConsistencyRelaxed {
		return entry.Value, true, true
	}
	return nil, false, false
}

// Set stores value under key with the given base TTL (before jitter).
func (c *Cache) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	l1Key := key.l1()
	effectiveTTL := c.jitteredTTL(l1Key, ttl)

	entry := &Entry{
		Value:     value,
		StoredAt:  time.Now(),
		ExpiresAt: time.Now().Add(effectiveTTL),
	}
	c.l1.Add(l1Key, entry)

	if c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := c.redis.Set(ctx, l1Key, data, effectiveTTL).Err(); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCompute returns the cached value for key, or computes it exactly
// once across concurrent callers for the same key (single-flight), storing
// the result before returning it to every waiter.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, consistency Consistency, ttl time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, error) {
	if value, stale, hit := c.Get(ctx, key, consistency); hit && !stale {
		return value, nil
	}

	l1Key := key.l1()
	v, err, shared := c.flight.Do(l1Key, func() (interface{}, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, value, ttl); err != nil {
			log.WithComponent("cache").Warn().Err(err).Str("key", l1Key).Msg("failed to persist computed value")
		}
		return value, nil
	})
	if shared {
		monitor.CacheStampedesAvoidedTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate purges key from L1/L2 and broadcasts an invalidation event so
// every other node purges its own L1 entry for the same plan.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	l1Key := key.l1()
	c.l1.Remove(l1Key)

	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, l1Key).Err(); err != nil {
		return err
	}

	ev := InvalidationEvent{PlanID: key.PlanID, TenantID: key.TenantID, SourceNodeID: c.nodeID}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.redis.Publish(ctx, c.invalidateKey, data).Err()
}

// StartInvalidationSubscriber listens for invalidation events from other
// nodes and purges the corresponding L1 entries. Since L1 is keyed finer
// than plan+tenant, this purges the whole L1 tier on any event — coarse
// but safe, matching the tiered-cache idiom this package is built on.
func (c *Cache) StartInvalidationSubscriber(ctx context.Context) {
	if c.redis == nil {
		return
	}
	logger := log.WithComponent("cache")
	ps := c.redis.Subscribe(ctx, c.invalidateKey)

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev InvalidationEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn().Err(err).Msg("invalid invalidation event payload")
					continue
				}
				if ev.SourceNodeID == c.nodeID {
					continue
				}
				c.l1.Purge()
			}
		}
	}()
}
