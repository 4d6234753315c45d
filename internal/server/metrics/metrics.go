// Package metrics exposes Prometheus collectors for the record pipeline and
// the HTTP endpoint that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recordkeeper_records_committed_total",
		Help: "Records committed to both stores, by operation.",
	}, []string{"op"})

	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recordkeeper_records_skipped_total",
		Help: "Unchanged records elided by duplicate skipping.",
	})

	RecordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recordkeeper_records_rejected_total",
		Help: "Records excluded from a request, by reason.",
	}, []string{"reason"})

	RecordsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recordkeeper_records_locked_total",
		Help: "Bulk update targets whose live version drifted from the expected one.",
	})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recordkeeper_compensations_total",
		Help: "Compensation attempts after a failed metadata commit, by result.",
	}, []string{"kind", "result"})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recordkeeper_publish_failures_total",
		Help: "Notification batches that could not be delivered.",
	})

	StoreCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recordkeeper_store_call_duration_seconds",
		Help:    "Latency of content and metadata store calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"store", "op"})

	LegalCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recordkeeper_legal_cache_hits_total",
		Help: "Legal validation lookups served from cache.",
	})

	LegalCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recordkeeper_legal_cache_misses_total",
		Help: "Legal validation lookups that went to the source.",
	})
)

// ObserveStoreCall records the time elapsed since start.
func ObserveStoreCall(store, op string, start time.Time) {
	StoreCallDuration.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}
