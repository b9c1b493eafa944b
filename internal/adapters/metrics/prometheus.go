package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SettlementCollector records transfer attempts and settlement outcomes on a
// dedicated registry.
type SettlementCollector struct {
	registry         *prometheus.Registry
	transferAttempts *prometheus.CounterVec
	transferLatency  *prometheus.HistogramVec
	settlements      *prometheus.CounterVec
}

func NewSettlementCollector(namespace string) *SettlementCollector {
	if namespace == "" {
		namespace = "escrow"
	}
	c := &SettlementCollector{
		registry: prometheus.NewRegistry(),
		transferAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_attempts_total",
			Help:      "Payment processor transfer attempts by direction and outcome.",
		}, []string{"direction", "outcome"}),
		transferLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_attempt_seconds",
			Help:      "Latency of individual transfer attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Milestone settlements by target status and outcome.",
		}, []string{"target", "outcome"}),
	}
	c.registry.MustRegister(
		c.transferAttempts,
		c.transferLatency,
		c.settlements,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *SettlementCollector) ObserveTransferAttempt(direction, outcome string, elapsed time.Duration) {
	c.transferAttempts.WithLabelValues(direction, outcome).Inc()
	c.transferLatency.WithLabelValues(direction).Observe(elapsed.Seconds())
}

func (c *SettlementCollector) ObserveSettlement(target, outcome string) {
	c.settlements.WithLabelValues(target, outcome).Inc()
}

func (c *SettlementCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *SettlementCollector) Registry() *prometheus.Registry {
	return c.registry
}
