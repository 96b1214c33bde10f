package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ingestd/marketfeed/internal/connector"
	"github.com/ingestd/marketfeed/internal/model"
)

func TestObserverUpdatesConnectorStateGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, func() float64 { return 0 })

	observe := m.Observer()
	observe("BINANCE_SPOT_BTCUSDT", model.ExchangeBinance, connector.StateConnected)

	metric := &dto.Metric{}
	gauge, err := m.ConnectorState.GetMetricWithLabelValues("BINANCE_SPOT_BTCUSDT", "BINANCE", "connected")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if err := gauge.Write(metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if metric.GetGauge().GetValue() != 1 {
		t.Fatalf("expected connected state gauge = 1, got %v", metric.GetGauge().GetValue())
	}
}
