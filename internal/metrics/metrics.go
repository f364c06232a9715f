package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry         *prometheus.Registry
	syncRuns         *prometheus.CounterVec // total reconciliation passes
	syncDuration     prometheus.Histogram   // time per pass
	resolverRequests *prometheus.CounterVec // external IP lookups
	dnsRequests      *prometheus.CounterVec // dns provider requests
	addressChanges   *prometheus.CounterVec // detected external address changes
}

// Public interface for metrics operations
func (m *Metrics) IncSyncRun(success bool) {
	status := boolToResult(success)
	m.syncRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) SetSyncDuration(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncResolverRequest(recordType string, success bool) {
	status := boolToResult(success)
	m.resolverRequests.WithLabelValues(recordType, status).Inc()
}

func (m *Metrics) IncDNSRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.dnsRequests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncAddressChange(recordType string) {
	m.addressChanges.WithLabelValues(recordType).Inc()
}

// Validation helpers
func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "create", "read", "update":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "ddns_sync"

	m := &Metrics{
		registry: registry,

		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of reconciliation passes",
		}, []string{"status"}),

		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of reconciliation passes in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		resolverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_requests_total",
			Help:      "Total external IP lookup requests",
		}, []string{"record_type", "status"}),

		dnsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_requests_total",
			Help:      "Total DNS provider requests",
		}, []string{"operation", "status"}),

		addressChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_changes_total",
			Help:      "Total detected external address changes",
		}, []string{"record_type"}),
	}

	if register {
		registry.MustRegister(
			m.syncRuns,
			m.syncDuration,
			m.resolverRequests,
			m.dnsRequests,
			m.addressChanges,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
