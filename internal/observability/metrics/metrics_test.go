package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestHelpers_NoopBeforeInit(t *testing.T) {
	// Must not panic with nil collectors.
	if framesTotal != nil {
		t.Skip("collectors already initialised by another test")
	}
	ObserveFrame(true, time.Millisecond, time.Now())
	IncDiagnostic("")
	IncEventEmitted("BATTERY")
	AddEventsSuppressed(3)
	IncSinkWrite("sqlite", false)
	IncSinkDropped("sqlite")
	SetSinkQueueDepth(4)
	SetLinkUp("mqtt", true)
}

func TestInit_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg)

	ObserveFrame(false, time.Millisecond, time.Unix(1700000000, 0))
	ObserveFrame(true, time.Millisecond, time.Unix(1700000001, 0))
	IncEventEmitted("CLOSURE")
	AddEventsSuppressed(2)
	AddEventsSuppressed(0)
	IncSinkWrite("sqlite", true)
	SetLinkUp("mqtt", true)

	if got := value(t, framesTotal.WithLabelValues(frameInvalid)); got != 1 {
		t.Fatalf("invalid frames = %v, want 1", got)
	}
	if got := value(t, eventsTotal.WithLabelValues("any", outcomeSuppressed)); got != 2 {
		t.Fatalf("suppressed = %v, want 2", got)
	}
	if got := value(t, lastFrameUnix); got != 1700000001 {
		t.Fatalf("last frame = %v", got)
	}
	if got := value(t, linkUp.WithLabelValues("mqtt")); got != 1 {
		t.Fatalf("link_up = %v", got)
	}
}
