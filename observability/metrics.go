// Package observability provides metrics and tracing instrumentation for
// Courier deliveries.
package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Metrics holds metric instruments for Courier, backed by any go-utils
// MetricFactory.
type Metrics struct {
	DeliveriesTotal   gu.Counter
	DeliveryLatency   gu.Histogram
	PendingDeliveries gu.Gauge
	DLQSize           gu.Gauge
	BreakerOpens      gu.Counter
	BreakerSkips      gu.Counter
	SecretCacheHits   gu.Counter
	SecretCacheMisses gu.Counter
}

// NewMetrics creates Courier metric instruments using the supplied factory.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	return &Metrics{
		DeliveriesTotal:   factory.Counter("courier_deliveries_total"),
		DeliveryLatency:   factory.Histogram("courier_delivery_latency_seconds"),
		PendingDeliveries: factory.Gauge("courier_pending_deliveries"),
		DLQSize:           factory.Gauge("courier_dlq_size"),
		BreakerOpens:      factory.Counter("courier_breaker_opens_total"),
		BreakerSkips:      factory.Counter("courier_breaker_skips_total"),
		SecretCacheHits:   factory.Counter("courier_secret_cache_hits_total"),
		SecretCacheMisses: factory.Counter("courier_secret_cache_misses_total"),
	}
}

// RecordDelivery records a delivery attempt with the given outcome and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabels(map[string]string{"status": status}).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}
