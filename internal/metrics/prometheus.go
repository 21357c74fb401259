package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valgdash_ingest_batch_duration_seconds",
			Help:    "Ingestion batch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"table"},
	)

	BatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_ingest_batches_total",
			Help: "Total ingestion batches processed",
		},
		[]string{"table", "status"},
	)

	RecordsInserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_ingest_records_inserted_total",
			Help: "Records successfully upserted",
		},
		[]string{"table"},
	)

	RecordsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_ingest_records_failed_total",
			Help: "Records rejected by validation or storage",
		},
		[]string{"table"},
	)

	RecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_ingest_records_skipped_total",
			Help: "Records skipped by the schema mapper",
		},
		[]string{"table"},
	)

	ObjectFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "valgdash_object_fetch_duration_seconds",
			Help:    "Object storage fetch duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60},
		},
	)

	ObjectFetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_object_fetch_failures_total",
			Help: "Failed object storage fetches",
		},
		[]string{"reason"},
	)

	AuthFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "valgdash_ingest_auth_failures_total",
			Help: "Rejected ingestion requests due to bad tokens",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_cache_hits_total",
			Help: "Read-side cache hits",
		},
		[]string{"key"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "valgdash_cache_misses_total",
			Help: "Read-side cache misses",
		},
		[]string{"key"},
	)

	PollsImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "valgdash_polls_imported_total",
			Help: "Polls created via the history import path",
		},
	)
)

func Init() {
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(BatchTotal)
	prometheus.MustRegister(RecordsInserted)
	prometheus.MustRegister(RecordsFailed)
	prometheus.MustRegister(RecordsSkipped)
	prometheus.MustRegister(ObjectFetchDuration)
	prometheus.MustRegister(ObjectFetchFailures)
	prometheus.MustRegister(AuthFailures)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(PollsImported)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
