// Package metrics exposes prometheus counters for the metering hot path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics aggregates the counters services increment.
type Metrics struct {
	usageRecords *prometheus.CounterVec
	quotaChecks  *prometheus.CounterVec
	counterReset *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		usageRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keychain",
			Name:      "usage_records_total",
			Help:      "Usage events recorded, by metric.",
		}, []string{"metric"}),
		quotaChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keychain",
			Name:      "quota_checks_total",
			Help:      "Quota admission decisions, by metric and decision.",
		}, []string{"metric", "decision"}),
		counterReset: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keychain",
			Name:      "counter_resets_total",
			Help:      "Administrative counter resets, by metric.",
		}, []string{"metric"}),
	}
}

func (m *Metrics) RecordUsage(metric string) {
	if m == nil {
		return
	}
	m.usageRecords.WithLabelValues(metric).Inc()
}

func (m *Metrics) QuotaCheck(metric string, admitted bool) {
	if m == nil {
		return
	}
	decision := "admit"
	if !admitted {
		decision = "deny"
	}
	m.quotaChecks.WithLabelValues(metric, decision).Inc()
}

func (m *Metrics) CounterReset(metric string) {
	if m == nil {
		return
	}
	m.counterReset.WithLabelValues(metric).Inc()
}
