// Package metrics holds the gateway's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gateway"

type Metrics struct {
	Connections  prometheus.Gauge
	Opcodes      *prometheus.CounterVec
	RateLimited  *prometheus.CounterVec
	Dispatches   *prometheus.CounterVec
	Closes       *prometheus.CounterVec
	SweepReverts prometheus.Counter
	VoiceExpired prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open WebSocket connections.",
		}),
		Opcodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opcodes_received_total",
			Help:      "Inbound frames by opcode.",
		}, []string{"op"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Inbound frames dropped by the rate limiter.",
		}, []string{"op"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatch events sent by event name.",
		}, []string{"event"}),
		Closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Connections closed by close code.",
		}, []string{"code"}),
		SweepReverts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_schedule_reverts_total",
			Help:      "Scheduled statuses reverted by the sweeper.",
		}),
		VoiceExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_states_expired_total",
			Help:      "Voice states removed by the sweeper.",
		}),
	}

	reg.MustRegister(
		m.Connections,
		m.Opcodes,
		m.RateLimited,
		m.Dispatches,
		m.Closes,
		m.SweepReverts,
		m.VoiceExpired,
	)
	return m
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed(code string) {
	if m != nil {
		m.Connections.Dec()
		m.Closes.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) Opcode(op string) {
	if m != nil {
		m.Opcodes.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Limited(op string) {
	if m != nil {
		m.RateLimited.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Dispatched(event string) {
	if m != nil {
		m.Dispatches.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Reverted(n int) {
	if m != nil && n > 0 {
		m.SweepReverts.Add(float64(n))
	}
}

func (m *Metrics) VoiceSwept(n int) {
	if m != nil && n > 0 {
		m.VoiceExpired.Add(float64(n))
	}
}
