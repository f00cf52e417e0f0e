package projection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("rupture_engine/projection")

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_cache_lookups_total",
		Help: "Projection cache lookups by result (hit, miss, stale, l2_hit, l2_stale)",
	}, []string{"result"})

	cacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_cache_invalidations_total",
		Help: "Projection cache invalidations by scope (product, all)",
	}, []string{"scope"})

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "projection_cache_entries",
		Help: "Entries currently held by the in-process projection cache",
	})

	computeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "projection_compute_duration_seconds",
		Help:    "Time spent aggregating and projecting one product",
		Buckets: prometheus.DefBuckets,
	})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_store_errors_total",
		Help: "Failures reading from a data source by source (events, balance, orders)",
	}, []string{"source"})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "projection_batch_duration_seconds",
		Help:    "Wall time of one batch availability analysis",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	lineVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_line_verdicts_total",
		Help: "Classified order lines by verdict",
	}, []string{"verdict"})
)
