// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leadpulse"

var (
	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Events accepted by the ingestor, labeled by kind and bot classification",
	}, []string{"kind", "bot"})

	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "rejected_total",
		Help:      "Events rejected before persistence, labeled by reason",
	}, []string{"reason"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Time spent handling a single event",
		Buckets:   prometheus.DefBuckets,
	})

	tierUpgrades = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "tier_upgrades_total",
		Help:      "Sessions that moved into a higher tier, labeled by the new tier",
	}, []string{"tier"})

	conversions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attribution",
		Name:      "conversions_total",
		Help:      "Sessions that converted, labeled by conversion type",
	}, []string{"type"})

	attributionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attribution",
		Name:      "failures_total",
		Help:      "Conversion paths that could not be persisted",
	})

	enrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "failures_total",
		Help:      "Best-effort lookups that failed or timed out, labeled by source",
	}, []string{"source"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Notification attempts, labeled by kind and delivery status",
	}, []string{"kind", "status"})

	dedupeEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "dedupe_entries",
		Help:      "Keys currently held by the notification de-duplication cache",
	})
)

// EventIngested counts an accepted event.
func EventIngested(kind string, bot bool) {
	eventsIngested.WithLabelValues(kind, strconv.FormatBool(bot)).Inc()
}

// EventRejected counts an event refused before persistence.
func EventRejected(reason string) {
	eventsRejected.WithLabelValues(reason).Inc()
}

// ObserveIngest records how long one ingestion took.
func ObserveIngest(seconds float64) {
	ingestDuration.Observe(seconds)
}

// TierUpgraded counts a session entering a higher tier.
func TierUpgraded(tier string) {
	tierUpgrades.WithLabelValues(tier).Inc()
}

// Converted counts a session's first conversion.
func Converted(conversionType string) {
	conversions.WithLabelValues(conversionType).Inc()
}

// AttributionFailed counts a conversion path that was not persisted.
func AttributionFailed() {
	attributionFailures.Inc()
}

// EnrichmentFailed counts a failed or timed-out lookup.
func EnrichmentFailed(source string) {
	enrichmentFailures.WithLabelValues(source).Inc()
}

// NotificationSent counts a delivery attempt.
func NotificationSent(kind string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	notifications.WithLabelValues(kind, status).Inc()
}

// SetDedupeEntries publishes the de-duplication cache size.
func SetDedupeEntries(n int) {
	dedupeEntries.Set(float64(n))
}

// Handler serves the default registry in Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
