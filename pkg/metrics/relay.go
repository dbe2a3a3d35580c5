package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics tracks live notification fan-out.
type RelayMetrics struct {
	subscriptions prometheus.Gauge
	delivered     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
}

// NewRelayMetrics registers relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	subscriptions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_active_subscriptions",
		Help: "Currently connected live notification subscriptions.",
	})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_delivered_total",
		Help: "Lifecycle events forwarded to subscribers.",
	}, []string{"event"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_dropped_total",
		Help: "Lifecycle events dropped because a subscriber could not keep up.",
	}, []string{"event"})
	reg.MustRegister(subscriptions, delivered, dropped)
	return &RelayMetrics{
		subscriptions: subscriptions,
		delivered:     delivered,
		dropped:       dropped,
	}
}

func (m *RelayMetrics) SetSubscriptions(n int) {
	if m == nil || m.subscriptions == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *RelayMetrics) IncDelivered(event string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(event)).Inc()
}

func (m *RelayMetrics) IncDropped(event string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(event)).Inc()
}
