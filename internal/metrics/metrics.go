// Package metrics exposes Prometheus counters/gauges for connector state
// transitions, broadcast lag, and session counts. All updates are read-only
// with respect to existing critical sections — this package never adds a
// lock to the hot path (SPEC_FULL.md §5).
//
// Grounded on sawpanic-cryptorun/internal/interfaces/http/metrics.go's
// client_golang registration pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ingestd/marketfeed/internal/connector"
	"github.com/ingestd/marketfeed/internal/model"
	"github.com/ingestd/marketfeed/internal/registry"
)

// Metrics bundles every collector this deployment registers.
type Metrics struct {
	ConnectorState    *prometheus.GaugeVec
	ConnectorRestarts *prometheus.CounterVec
	BroadcastLag      prometheus.Counter
	SessionCount      prometheus.GaugeFunc
	FIFOOccupancy     *prometheus.GaugeVec
}

// New constructs and registers all collectors against registry. sessionCount
// is polled lazily via the provided function (sampled, not synchronous, per
// SPEC_FULL.md §5).
func New(registry *prometheus.Registry, sessionCount func() float64) *Metrics {
	m := &Metrics{
		ConnectorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketfeed_connector_state",
			Help: "Current connector state per topic (1 = in that state, 0 otherwise).",
		}, []string{"topic", "venue", "state"}),
		ConnectorRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfeed_connector_restarts_total",
			Help: "Count of connector reconnect attempts per topic.",
		}, []string{"topic", "venue"}),
		BroadcastLag: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_broadcast_lag_events_total",
			Help: "Count of subscriber lag events on the broadcast bus.",
		}),
		FIFOOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketfeed_fifo_occupancy",
			Help: "Sampled occupancy of a bounded per-topic FIFO.",
		}, []string{"topic", "family"}),
	}
	m.SessionCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "marketfeed_active_sessions",
		Help: "Current number of connected subscription-server sessions.",
	}, sessionCount)

	registry.MustRegister(m.ConnectorState, m.ConnectorRestarts, m.BroadcastLag, m.FIFOOccupancy, m.SessionCount)
	return m
}

// Observer returns a connector.StateObserver that updates ConnectorState and
// ConnectorRestarts, suitable for connector.WithStateObserver.
func (m *Metrics) Observer() connector.StateObserver {
	return func(topic string, venue model.Exchange, state connector.State) {
		for _, s := range []connector.State{connector.StateConnecting, connector.StateConnected, connector.StateDraining, connector.StateSleeping} {
			v := 0.0
			if s == state {
				v = 1.0
			}
			m.ConnectorState.WithLabelValues(topic, string(venue), string(s)).Set(v)
		}
		if state == connector.StateConnecting {
			m.ConnectorRestarts.WithLabelValues(topic, string(venue)).Inc()
		}
	}
}

// ObserveLag satisfies broadcast.LagRecorder: every lag event (regardless of
// how many entries were skipped) counts once against BroadcastLag.
func (m *Metrics) ObserveLag(n uint64) {
	if n > 0 {
		m.BroadcastLag.Inc()
	}
}

// ObserveOccupancy satisfies registry.OccupancyRecorder.
func (m *Metrics) ObserveOccupancy(topic string, family registry.Family, n int) {
	m.FIFOOccupancy.WithLabelValues(topic, string(family)).Set(float64(n))
}

// Handler returns the HTTP handler the bootstrap CLI mounts at /metrics.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
