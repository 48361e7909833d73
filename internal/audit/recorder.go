// Package audit turns engine diagnostics into durable domain events for the
// compliance monitoring pipeline. Anomalies are reported and forgotten: a
// data problem must never abort a calculation.
package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-levy/internal/events"
	"github.com/noah-isme/backend-levy/internal/obs"
	"github.com/noah-isme/backend-levy/internal/tax"
)

// Recorder implements tax.AnomalySink. It logs each anomaly, bumps the
// domain metrics, and emits a domain event when a bus is configured.
type Recorder struct {
	Bus    *events.Bus
	Logger *zerolog.Logger
	// DeviationRatio is the relative distance from the state's historical
	// mean beyond which an effective rate is reported. Zero means 0.5.
	DeviationRatio float64
	// WarmupSamples is how many observations a state needs before
	// deviations are reported. Zero means 20.
	WarmupSamples int

	mu    sync.Mutex
	stats map[string]*rateStats
}

type rateStats struct {
	mean    float64
	samples int
}

const ewmaAlpha = 0.2

// RateCollision records an overlapping-rate data anomaly.
func (r *Recorder) RateCollision(ctx context.Context, jurisdictionCode, category string, chosen tax.RateRecord, discarded int) {
	if r == nil {
		return
	}
	if r.Logger != nil {
		r.Logger.Warn().
			Str("jurisdiction_code", jurisdictionCode).
			Str("category", category).
			Str("chosen_rate_id", chosen.ID.String()).
			Int("discarded", discarded).
			Msg("overlapping active rate records")
	}
	if obs.RateCollisionsTotal != nil {
		obs.RateCollisionsTotal.Inc()
	}
	r.emit(ctx, events.TopicRateCollision, chosen.ID, map[string]any{
		"jurisdictionCode": jurisdictionCode,
		"category":         category,
		"chosenRateId":     chosen.ID.String(),
		"chosenRateBps":    chosen.RateBps,
		"discarded":        discarded,
	})
}

// CategoryFallback records an unrecognised category falling back to the
// general rate.
func (r *Recorder) CategoryFallback(ctx context.Context, jurisdictionCode, category string) {
	if r == nil {
		return
	}
	if r.Logger != nil {
		r.Logger.Info().
			Str("jurisdiction_code", jurisdictionCode).
			Str("category", category).
			Msg("unrecognised category fell back to general rate")
	}
	if obs.CategoryFallbacksTotal != nil {
		obs.CategoryFallbacksTotal.Inc()
	}
	r.emit(ctx, events.TopicCategoryFallback, uuid.New(), map[string]any{
		"jurisdictionCode": jurisdictionCode,
		"category":         category,
	})
}

// EffectiveRateObserved feeds the per-state deviation monitor. The monitor
// keeps an exponentially weighted mean per state and reports calculations
// whose effective rate lands far outside it.
func (r *Recorder) EffectiveRateObserved(ctx context.Context, stateCode string, effectiveRate tax.Bps) {
	if r == nil || stateCode == "" {
		return
	}
	ratio := r.DeviationRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	warmup := r.WarmupSamples
	if warmup <= 0 {
		warmup = 20
	}

	r.mu.Lock()
	if r.stats == nil {
		r.stats = make(map[string]*rateStats)
	}
	st, ok := r.stats[stateCode]
	if !ok {
		st = &rateStats{}
		r.stats[stateCode] = st
	}
	observed := float64(effectiveRate)
	var deviated bool
	var mean float64
	if st.samples >= warmup && st.mean > 0 {
		mean = st.mean
		delta := observed - mean
		if delta < 0 {
			delta = -delta
		}
		deviated = delta > mean*ratio
	}
	st.samples++
	if st.samples == 1 {
		st.mean = observed
	} else {
		st.mean = ewmaAlpha*observed + (1-ewmaAlpha)*st.mean
	}
	r.mu.Unlock()

	if !deviated {
		return
	}
	if r.Logger != nil {
		r.Logger.Warn().
			Str("state", stateCode).
			Int64("effective_rate_bps", effectiveRate).
			Float64("historical_mean_bps", mean).
			Msg("effective rate deviates from historical average")
	}
	if obs.RateDeviationsTotal != nil {
		obs.RateDeviationsTotal.Inc()
	}
	r.emit(ctx, events.TopicRateDeviation, uuid.New(), map[string]any{
		"state":             stateCode,
		"effectiveRateBps":  effectiveRate,
		"historicalMeanBps": mean,
	})
}

func (r *Recorder) emit(ctx context.Context, topic string, aggregate uuid.UUID, payload map[string]any) {
	if r.Bus == nil {
		return
	}
	if aggregate == uuid.Nil {
		aggregate = uuid.New()
	}
	if _, err := r.Bus.Emit(ctx, topic, pgtype.UUID{Bytes: aggregate, Valid: true}, payload); err != nil && r.Logger != nil {
		r.Logger.Error().Err(err).Str("topic", topic).Msg("emit anomaly event")
	}
}
