package tax

import (
	"context"
	"time"
)

// RateSource serves the active rate records for one jurisdiction code. The
// production implementation is the redis-cached postgres store; tests use
// in-memory fakes.
type RateSource interface {
	ActiveRates(ctx context.Context, jurisdictionCode, category string, asOf time.Time) ([]RateRecord, error)
}

// AnomalySink receives diagnostic events the engine emits while it keeps
// calculating. Implementations must be safe for concurrent use.
type AnomalySink interface {
	// RateCollision fires when more than one record is simultaneously in
	// effect for the same jurisdiction scope. chosen is the record the
	// selector proceeded with.
	RateCollision(ctx context.Context, jurisdictionCode, category string, chosen RateRecord, discarded int)
	// CategoryFallback fires when a non-general category matched no
	// category-scoped rate and fell back to the jurisdiction's general rate.
	CategoryFallback(ctx context.Context, jurisdictionCode, category string)
	// EffectiveRateObserved feeds the per-state deviation monitor.
	EffectiveRateObserved(ctx context.Context, stateCode string, effectiveRate Bps)
}

// NopSink discards every anomaly. Useful default for tests.
type NopSink struct{}

func (NopSink) RateCollision(context.Context, string, string, RateRecord, int) {}
func (NopSink) CategoryFallback(context.Context, string, string)               {}
func (NopSink) EffectiveRateObserved(context.Context, string, Bps)             {}

// Selector picks, per jurisdiction level, the single rate record legally in
// effect for a category on a given date.
type Selector struct {
	Source    RateSource
	Anomalies AnomalySink
}

// SelectRates returns the applicable records ordered federal, state, county,
// city. Levels without a resolved code are skipped; levels with a code but no
// matching record contribute nothing.
func (s Selector) SelectRates(ctx context.Context, j Jurisdictions, category string, asOf time.Time) ([]RateRecord, error) {
	category = NormalizeCategory(category)
	codes := []string{j.CountryCode, j.StateCode, j.CountyCode, j.CityCode}

	selected := make([]RateRecord, 0, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		candidates, err := s.Source.ActiveRates(ctx, code, category, asOf)
		if err != nil {
			return nil, err
		}
		record, ok := s.pick(ctx, code, category, asOf, candidates)
		if !ok {
			continue
		}
		selected = append(selected, record)
	}
	return selected, nil
}

// pick filters candidates down to records genuinely in effect, prefers
// category-scoped records over unscoped ones, and resolves residual
// collisions in favour of the latest effective (then latest published)
// record while reporting the anomaly.
func (s Selector) pick(ctx context.Context, code, category string, asOf time.Time, candidates []RateRecord) (RateRecord, bool) {
	var scoped, unscoped []RateRecord
	for _, r := range candidates {
		if !r.InEffect(asOf) || !r.AppliesTo(category) {
			continue
		}
		if r.CategoryScoped(category) {
			scoped = append(scoped, r)
		} else {
			unscoped = append(unscoped, r)
		}
	}

	pool := scoped
	if len(pool) == 0 {
		pool = unscoped
	}
	if len(pool) == 0 {
		return RateRecord{}, false
	}

	best := pool[0]
	for _, r := range pool[1:] {
		if r.EffectiveFrom.After(best.EffectiveFrom) {
			best = r
			continue
		}
		if r.EffectiveFrom.Equal(best.EffectiveFrom) && r.PublishedAt.After(best.PublishedAt) {
			best = r
		}
	}
	if len(pool) > 1 && s.Anomalies != nil {
		s.Anomalies.RateCollision(ctx, code, category, best, len(pool)-1)
	}
	return best, true
}
