package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_cycle_duration_seconds",
			Help:    "Duration of one account sync cycle in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7m
		},
		[]string{"outcome"},
	)

	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_processed_total",
			Help: "Total messages handled by the sync engine",
		},
		[]string{"result"}, // fetched, committed, skipped, failed
	)

	AttachmentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachments_processed_total",
			Help: "Total attachments handled by the extraction pipeline",
		},
		[]string{"tier", "result"}, // tier: memory, temp_storage, skipped
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Attachment text extraction duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"family"},
	)

	IdentityResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_resets_total",
			Help: "Total checkpoint resets caused by UIDVALIDITY changes",
		},
	)

	LeaseAcquireBusy = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lease_acquire_busy_total",
			Help: "Sync attempts rejected because the account lease was held",
		},
	)
)

func RecordSyncCycle(outcome string, duration time.Duration) {
	SyncCycleDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordMessage(result string) {
	MessagesProcessed.WithLabelValues(result).Inc()
}

func RecordAttachment(tier, result string) {
	AttachmentsProcessed.WithLabelValues(tier, result).Inc()
}

func RecordExtraction(family string, duration time.Duration) {
	ExtractionDuration.WithLabelValues(family).Observe(duration.Seconds())
}
