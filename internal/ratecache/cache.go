// Package ratecache fronts the rate store with a redis TTL cache.
//
// Entries are keyed per (jurisdiction code, category, day bucket) so that a
// rate change for one jurisdiction maps to a single prefix sweep. Concurrent
// misses for the same key are coalesced into one store query; late arrivals
// wait for the in-flight result instead of stampeding the store.
package ratecache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/backend-levy/internal/tax"
)

// Stats receives cache outcome notifications, typically backed by the
// prometheus domain metrics. All methods may be called concurrently.
type Stats interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	CacheInvalidated(keys int)
}

// NopStats discards all notifications.
type NopStats struct{}

func (NopStats) CacheHit(string)      {}
func (NopStats) CacheMiss(string)     {}
func (NopStats) CacheInvalidated(int) {}

// Cache is a read-through redis cache. A nil redis client degrades to
// fetching directly from the backing store, keeping the engine usable in
// tests and cache-less deployments.
type Cache struct {
	client       *redis.Client
	ttl          time.Duration
	fetchTimeout time.Duration
	stats        Stats
	group        singleflight.Group
}

// Config groups Cache construction parameters.
type Config struct {
	Client *redis.Client
	// TTL bounds how long an entry may serve without revisiting the store.
	// Invalidation on rate writes does not wait for it.
	TTL time.Duration
	// FetchTimeout caps the coalesced store query. It runs on a context
	// detached from any single caller so that one caller's cancellation
	// does not abort a query other callers are awaiting.
	FetchTimeout time.Duration
	Stats        Stats
}

// New constructs a Cache.
func New(cfg Config) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 2 * time.Second
	}
	stats := cfg.Stats
	if stats == nil {
		stats = NopStats{}
	}
	return &Cache{client: cfg.Client, ttl: ttl, fetchTimeout: fetchTimeout, stats: stats}
}

// RatesKey builds the cache key for one jurisdiction/category/day lookup.
// The as-of date is bucketed to the day: rates are effective-dated at day
// granularity and callers needing point-in-time audit accuracy bypass the
// cache entirely.
func RatesKey(jurisdictionCode, category string, asOf time.Time) string {
	return "rates:v1:" + strings.ToUpper(jurisdictionCode) + ":" + tax.NormalizeCategory(category) + ":" + asOf.UTC().Format("20060102")
}

// RatesPattern is the invalidation pattern covering every cached entry for a
// jurisdiction code.
func RatesPattern(jurisdictionCode string) string {
	return "rates:v1:" + strings.ToUpper(jurisdictionCode) + ":*"
}

// ExemptionsKey builds the cache key for a state's exempt category set.
func ExemptionsKey(stateCode string) string {
	return "exempt:v1:" + strings.ToUpper(stateCode)
}

// GetRates returns the cached records for key, fetching through on a miss.
func (c *Cache) GetRates(ctx context.Context, key string, fetch func(context.Context) ([]tax.RateRecord, error)) ([]tax.RateRecord, error) {
	data, err := c.through(ctx, key, "rates", func(fctx context.Context) ([]byte, error) {
		records, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []tax.RateRecord{}
		}
		return json.Marshal(records)
	})
	if err != nil {
		return nil, err
	}
	var records []tax.RateRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetExemptions returns the cached exempt categories for key, fetching
// through on a miss.
func (c *Cache) GetExemptions(ctx context.Context, key string, fetch func(context.Context) ([]string, error)) ([]string, error) {
	data, err := c.through(ctx, key, "exemptions", func(fctx context.Context) ([]byte, error) {
		categories, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if categories == nil {
			categories = []string{}
		}
		return json.Marshal(categories)
	})
	if err != nil {
		return nil, err
	}
	var categories []string
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// Invalidate removes every key matching pattern. It must run synchronously
// with the rate write that triggered it: a missed sweep serves stale rates
// past their legal window, which is a correctness bug rather than a
// performance one.
func (c *Cache) Invalidate(ctx context.Context, pattern string) (int, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	c.stats.CacheInvalidated(removed)
	return removed, nil
}

// through implements the read-through path: redis GET, then a single-flight
// store fetch shared by all concurrent missers, then SET with TTL.
func (c *Cache) through(ctx context.Context, key, kind string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil || c.client == nil {
		return fetch(ctx)
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		c.stats.CacheHit(kind)
		return data, nil
	}
	if err != redis.Nil {
		// Redis being unreachable must not take the engine down; fall
		// through to the store.
		return fetch(ctx)
	}
	c.stats.CacheMiss(kind)

	ch := c.group.DoChan(key, func() (any, error) {
		// Detached from the triggering caller: cancellation of one
		// awaiting calculation abandons that caller only.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		payload, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(fctx, key, payload, c.ttl).Err(); err != nil {
			// Population failure degrades to a future miss.
			_ = err
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}
