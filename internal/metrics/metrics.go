// Package metrics exposes logbuf counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	entriesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbuf_entries_appended_total",
		Help: "Log entries persisted to the local store",
	}, []string{"app_key"})
	entriesEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbuf_entries_evicted_total",
		Help: "Log entries removed by quota eviction",
	}, []string{"app_key"})
	storedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logbuf_stored_bytes",
		Help: "Current total size of stored log content",
	}, []string{"app_key"})
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logbuf_queue_depth",
		Help: "Tasks waiting in a serial queue",
	}, []string{"queue"})
	batchesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbuf_batches_sent_total",
		Help: "Report batches delivered, by transport",
	}, []string{"transport"})
	batchesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbuf_batches_failed_total",
		Help: "Report batches discarded after a failed send, by transport",
	}, []string{"transport"})
	flushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logbuf_flushes_total",
		Help: "Debounced dispatcher flushes",
	})
	recordsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logbuf_collector_records_total",
		Help: "Records accepted by the collector",
	}, []string{"app_key"})
)

// EntryAppended records one persisted entry and the resulting total size.
func EntryAppended(appKey string, totalSize int64) {
	entriesAppended.WithLabelValues(appKey).Inc()
	storedBytes.WithLabelValues(appKey).Set(float64(totalSize))
}

// EntriesEvicted records n evicted entries and the resulting total size.
func EntriesEvicted(appKey string, n int, totalSize int64) {
	entriesEvicted.WithLabelValues(appKey).Add(float64(n))
	storedBytes.WithLabelValues(appKey).Set(float64(totalSize))
}

// StoredBytes sets the stored-bytes gauge for appKey.
func StoredBytes(appKey string, totalSize int64) {
	storedBytes.WithLabelValues(appKey).Set(float64(totalSize))
}

// QueueDepth sets the depth gauge for the named serial queue.
func QueueDepth(queue string, n int) {
	queueDepth.WithLabelValues(queue).Set(float64(n))
}

// BatchSent records a delivered batch.
func BatchSent(transport string) {
	batchesSent.WithLabelValues(transport).Inc()
}

// BatchFailed records a discarded batch.
func BatchFailed(transport string) {
	batchesFailed.WithLabelValues(transport).Inc()
}

// Flushed records one dispatcher flush.
func Flushed() {
	flushes.Inc()
}

// RecordsIngested records n records accepted by the collector for appKey.
func RecordsIngested(appKey string, n int) {
	recordsIngested.WithLabelValues(appKey).Add(float64(n))
}

// Handler serves the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
