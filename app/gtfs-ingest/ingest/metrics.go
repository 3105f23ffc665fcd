package ingest

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsCollector struct {
	reg *prometheus.Registry

	PollsTotal      *prometheus.CounterVec // feed label: position_updates|trip_updates|service_alerts
	PollErrors      *prometheus.CounterVec // feed label
	PermitsDenied   *prometheus.CounterVec // feed label
	EntitiesDecoded *prometheus.CounterVec // feed label
	EntitiesSkipped *prometheus.CounterVec // feed label
	RowsEmitted     prometheus.Counter
	RowsSuppressed  prometheus.Counter

	QuotaCallsUsed  prometheus.Gauge
	QuotaCeiling    prometheus.Gauge
	TrackedVehicles prometheus.Gauge

	CycleDuration prometheus.Histogram
}

func newMetricsCollector(dailyCeiling int) *metricsCollector {
	reg := prometheus.NewRegistry()

	feedLabels := []string{"feed"}
	c := &metricsCollector{
		reg: reg,
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_polls_total",
			Help: "Total feed polls attempted.",
		}, feedLabels),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_poll_errors_total",
			Help: "Total feed polls that failed to fetch or decode.",
		}, feedLabels),
		PermitsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_permits_denied_total",
			Help: "Total poll permits denied by the quota scheduler.",
		}, feedLabels),
		EntitiesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_entities_decoded_total",
			Help: "Total feed entities decoded.",
		}, feedLabels),
		EntitiesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_entities_skipped_total",
			Help: "Total feed entities skipped for missing required fields.",
		}, feedLabels),
		RowsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_enriched_rows_emitted_total",
			Help: "Total enriched rows emitted after deduplication.",
		}),
		RowsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingest_enriched_rows_suppressed_total",
			Help: "Total enriched rows suppressed as duplicates.",
		}),
		QuotaCallsUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_quota_calls_used",
			Help: "API calls used so far in the current quota day.",
		}),
		QuotaCeiling: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_quota_daily_ceiling",
			Help: "Configured daily API call ceiling.",
		}),
		TrackedVehicles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_tracked_vehicles",
			Help: "Vehicles currently tracked by the deduplicator.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_cycle_duration_seconds",
			Help:    "Duration of one fetch, decode, enrich and publish cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	reg.MustRegister(
		c.PollsTotal, c.PollErrors, c.PermitsDenied,
		c.EntitiesDecoded, c.EntitiesSkipped,
		c.RowsEmitted, c.RowsSuppressed,
		c.QuotaCallsUsed, c.QuotaCeiling, c.TrackedVehicles,
		c.CycleDuration,
	)

	c.QuotaCeiling.Set(float64(dailyCeiling))
	return c
}

func (c *metricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
