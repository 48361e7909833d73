package rates

import (
	"context"
	"time"

	"github.com/noah-isme/backend-levy/internal/ratecache"
	"github.com/noah-isme/backend-levy/internal/tax"
)

// CachedSource implements tax.RateSource and tax.ExemptionSource by reading
// through the redis cache into the postgres store.
type CachedSource struct {
	Store *Store
	Cache *ratecache.Cache
}

// ActiveRates serves one jurisdiction/category/day lookup. The as-of instant
// is bucketed to the start of its UTC day, both in the cache key and in the
// store query, so every caller within a day shares one entry.
func (s CachedSource) ActiveRates(ctx context.Context, jurisdictionCode, category string, asOf time.Time) ([]tax.RateRecord, error) {
	day := asOf.UTC().Truncate(24 * time.Hour)
	key := ratecache.RatesKey(jurisdictionCode, category, day)
	if s.Cache == nil {
		return s.Store.FindActiveRates(ctx, jurisdictionCode, category, day)
	}
	return s.Cache.GetRates(ctx, key, func(fctx context.Context) ([]tax.RateRecord, error) {
		return s.Store.FindActiveRates(fctx, jurisdictionCode, category, day)
	})
}

// ExemptCategories serves a state's exemption set through the cache.
func (s CachedSource) ExemptCategories(ctx context.Context, stateCode string) ([]string, error) {
	if s.Cache == nil {
		return s.Store.ListExemptCategories(ctx, stateCode)
	}
	return s.Cache.GetExemptions(ctx, ratecache.ExemptionsKey(stateCode), func(fctx context.Context) ([]string, error) {
		return s.Store.ListExemptCategories(fctx, stateCode)
	})
}
