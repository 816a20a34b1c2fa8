// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	GateDecisions    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	TelegramMessages *prometheus.CounterVec
	AuditWriteErrors *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		GateDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendkeys",
				Name:      "gate_decisions_total",
				Help:      "Trend API calls by gate decision and logged status.",
			},
			[]string{"decision", "status"},
		)
		UpstreamDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trendkeys",
				Name:      "upstream_duration_seconds",
				Help:      "Latency of internal trend API calls in seconds.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"game_type", "outcome"},
		)
		TelegramMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendkeys",
				Name:      "telegram_messages_total",
				Help:      "Telegram notification attempts by template and status.",
			},
			[]string{"template", "status"},
		)
		AuditWriteErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendkeys",
				Name:      "audit_write_errors_total",
				Help:      "Swallowed failures writing api or activity logs.",
			},
			[]string{"kind"},
		)
		prometheus.MustRegister(GateDecisions, UpstreamDuration, TelegramMessages, AuditWriteErrors)
	})
}
