package observability

import (
	"testing"

	gu "github.com/xraph/go-utils/metrics"
)

func TestNewMetricsRegisters(t *testing.T) {
	m := NewMetrics(gu.NewMetricsCollector("courier"))

	if m.DeliveriesTotal == nil {
		t.Fatal("DeliveriesTotal should not be nil")
	}
	if m.DeliveryLatency == nil {
		t.Fatal("DeliveryLatency should not be nil")
	}
	if m.PendingDeliveries == nil {
		t.Fatal("PendingDeliveries should not be nil")
	}
	if m.DLQSize == nil {
		t.Fatal("DLQSize should not be nil")
	}
	if m.BreakerOpens == nil {
		t.Fatal("BreakerOpens should not be nil")
	}
	if m.SecretCacheHits == nil {
		t.Fatal("SecretCacheHits should not be nil")
	}
}

func TestRecordDelivery(t *testing.T) {
	m := NewMetrics(gu.NewMetricsCollector("courier"))

	m.RecordDelivery("succeeded", 0.5)
	m.RecordDelivery("succeeded", 1.2)
	m.RecordDelivery("failed", 0.3)
}

func TestGauges(t *testing.T) {
	m := NewMetrics(gu.NewMetricsCollector("courier"))

	m.DLQSize.Set(42)
	m.PendingDeliveries.Set(100)
	m.PendingDeliveries.Dec()
}
