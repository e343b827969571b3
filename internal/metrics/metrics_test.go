package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ConnOpened()
	m.ConnClosed("4000")
	m.Opcode("HEARTBEAT")
	m.Reverted(3)
}

func TestConnectionGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed("4009")

	if got := testutil.ToFloat64(m.Connections); got != 1 {
		t.Fatalf("connections_open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Closes.WithLabelValues("4009")); got != 1 {
		t.Fatalf("closes_total{code=4009} = %v, want 1", got)
	}
}

func TestRevertedIgnoresZero(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Reverted(0)
	m.Reverted(2)
	if got := testutil.ToFloat64(m.SweepReverts); got != 2 {
		t.Fatalf("reverts = %v, want 2", got)
	}
}
