// Package metrics exports the service's Prometheus instruments and a
// wallet.MetricsCollector implementation backed by them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_ledger_transactions_total",
			Help: "Total number of ledger transactions posted",
		},
		[]string{"kind"},
	)

	LedgerVolume = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_ledger_volume_total",
			Help: "Total transacted amount by kind",
		},
		[]string{"kind"},
	)

	LedgerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_ledger_errors_total",
			Help: "Total number of ledger operation failures",
		},
		[]string{"operation", "error"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_cache_lookups_total",
			Help: "Cache lookups by outcome",
		},
		[]string{"key", "outcome"},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_sessions_total",
			Help: "Sessions reaching a terminal state",
		},
		[]string{"channel", "status"},
	)

	SweepTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_sweep_ticks_total",
			Help: "Per-session sweep outcomes",
		},
		[]string{"result"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consora_webhook_events_total",
			Help: "Inbound provider webhook deliveries by outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// RecordSessionEnd counts one session reaching a terminal state.
func RecordSessionEnd(channel, status string) {
	SessionsTotal.WithLabelValues(channel, status).Inc()
}

// RecordSweep counts every per-session result of a sweep.
func RecordSweep(results map[string]int) {
	for result, n := range results {
		SweepTicksTotal.WithLabelValues(result).Add(float64(n))
	}
}

// RecordWebhook counts one webhook delivery outcome.
func RecordWebhook(provider, outcome string) {
	WebhookEventsTotal.WithLabelValues(provider, outcome).Inc()
}

// LedgerCollector implements wallet.MetricsCollector on the Prometheus
// instruments above.
type LedgerCollector struct{}

// NewLedgerCollector returns the Prometheus-backed collector.
func NewLedgerCollector() *LedgerCollector { return &LedgerCollector{} }

func (c *LedgerCollector) RecordTransaction(kind string, amount float64) {
	LedgerTransactionsTotal.WithLabelValues(kind).Inc()
	LedgerVolume.WithLabelValues(kind).Add(amount)
}

func (c *LedgerCollector) RecordError(operation, errType string) {
	LedgerErrorsTotal.WithLabelValues(operation, errType).Inc()
}

func (c *LedgerCollector) RecordCacheHit(key string) {
	CacheLookupsTotal.WithLabelValues(key, "hit").Inc()
}

func (c *LedgerCollector) RecordCacheMiss(key string) {
	CacheLookupsTotal.WithLabelValues(key, "miss").Inc()
}
