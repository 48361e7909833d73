package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CalculationsTotal counts tax calculations by outcome.
	CalculationsTotal *prometheus.CounterVec
	// CalculationDuration records end-to-end calculation latency in milliseconds.
	CalculationDuration *prometheus.HistogramVec
	// RateCacheHits counts rate cache hits.
	RateCacheHits prometheus.Counter
	// RateCacheMisses counts rate cache misses.
	RateCacheMisses prometheus.Counter
	// RateCacheInvalidations counts keys deleted by invalidation sweeps.
	RateCacheInvalidations prometheus.Counter
	// RateCollisionsTotal counts overlapping active rate records detected at selection time.
	RateCollisionsTotal prometheus.Counter
	// CategoryFallbacksTotal counts unrecognised categories falling back to a general rate.
	CategoryFallbacksTotal prometheus.Counter
	// RateDeviationsTotal counts effective rates flagged as deviating from the state average.
	RateDeviationsTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calculations_total",
			Help:      "Count of tax calculation outcomes.",
		}, []string{"result"})
		CalculationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calculation_duration_ms",
			Help:      "End-to-end tax calculation latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"result"})
		RateCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_cache_hits_total",
			Help:      "Number of rate cache hits.",
		})
		RateCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_cache_misses_total",
			Help:      "Number of rate cache misses.",
		})
		RateCacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_cache_invalidations_total",
			Help:      "Number of cache keys removed by invalidation sweeps.",
		})
		RateCollisionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_collisions_total",
			Help:      "Number of overlapping active rate records detected.",
		})
		CategoryFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "category_fallbacks_total",
			Help:      "Number of unrecognised product categories billed at the general rate.",
		})
		RateDeviationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_deviations_total",
			Help:      "Number of effective rates deviating from the state's historical average.",
		})

		mustRegisterCollector(reg, CalculationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CalculationsTotal = v
			}
		})
		mustRegisterCollector(reg, CalculationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CalculationDuration = v
			}
		})
		mustRegisterCollector(reg, RateCacheHits, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RateCacheHits = v
			}
		})
		mustRegisterCollector(reg, RateCacheMisses, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RateCacheMisses = v
			}
		})
		mustRegisterCollector(reg, RateCacheInvalidations, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RateCacheInvalidations = v
			}
		})
		mustRegisterCollector(reg, RateCollisionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RateCollisionsTotal = v
			}
		})
		mustRegisterCollector(reg, CategoryFallbacksTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CategoryFallbacksTotal = v
			}
		})
		mustRegisterCollector(reg, RateDeviationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				RateDeviationsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
