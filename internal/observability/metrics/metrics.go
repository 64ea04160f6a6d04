// Package metrics exposes Prometheus collectors for the ingestion path.
// Every helper is a no-op until Init has been called, so tests and tools can
// run the pipeline without a registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "container_telemetry_"

	resultSuccess = "success"
	resultError   = "error"
	resultDropped = "dropped"

	frameValid   = "valid"
	frameInvalid = "invalid"

	outcomeEmitted    = "emitted"
	outcomeSuppressed = "suppressed"
)

var (
	registerOnce sync.Once

	framesTotal      *prometheus.CounterVec
	ingestLatency    prometheus.Histogram
	diagnosticsTotal *prometheus.CounterVec
	eventsTotal      *prometheus.CounterVec
	sinkWrites       *prometheus.CounterVec
	sinkQueueDepth   prometheus.Gauge
	linkUp           *prometheus.GaugeVec
	lastFrameUnix    prometheus.Gauge
)

// Init registers the collectors with reg, or with the default registry when reg is nil.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		framesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "frames_total",
				Help: "Frames ingested by validity",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Time spent processing one frame",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		)
		diagnosticsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "parse_diagnostics_total",
				Help: "Parser diagnostics by kind",
			},
			[]string{"kind"},
		)
		eventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_total",
				Help: "Candidate events by category and limiter outcome",
			},
			[]string{"category", "outcome"},
		)
		sinkWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_writes_total",
				Help: "Event sink writes by result",
			},
			[]string{"sink", "result"},
		)
		sinkQueueDepth = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sink_queue_depth",
				Help: "Events waiting in the asynchronous sink buffer",
			},
		)
		linkUp = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "link_up",
				Help: "1 when the named link is delivering data",
			},
			[]string{"link"},
		)
		lastFrameUnix = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "last_frame_timestamp_seconds",
				Help: "Unix time of the last frame received",
			},
		)

		reg.MustRegister(
			framesTotal,
			ingestLatency,
			diagnosticsTotal,
			eventsTotal,
			sinkWrites,
			sinkQueueDepth,
			linkUp,
			lastFrameUnix,
		)
	})
}

// ObserveFrame records one processed frame.
func ObserveFrame(valid bool, duration time.Duration, at time.Time) {
	result := frameValid
	if !valid {
		result = frameInvalid
	}
	if framesTotal != nil {
		framesTotal.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.Observe(duration.Seconds())
	}
	if lastFrameUnix != nil && !at.IsZero() {
		lastFrameUnix.Set(float64(at.Unix()))
	}
}

func IncDiagnostic(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if diagnosticsTotal != nil {
		diagnosticsTotal.WithLabelValues(kind).Inc()
	}
}

func IncEventEmitted(category string) {
	incEvent(category, outcomeEmitted, 1)
}

// AddEventsSuppressed counts suppressed candidates without a category breakdown.
func AddEventsSuppressed(count int) {
	incEvent("any", outcomeSuppressed, count)
}

func incEvent(category, outcome string, n int) {
	if n <= 0 {
		return
	}
	if category == "" {
		category = "unknown"
	}
	if eventsTotal != nil {
		eventsTotal.WithLabelValues(category, outcome).Add(float64(n))
	}
}

// IncSinkWrite records a sink write. ok=false means the write failed.
func IncSinkWrite(sink string, ok bool) {
	result := resultSuccess
	if !ok {
		result = resultError
	}
	incSink(sink, result)
}

func IncSinkDropped(sink string) {
	incSink(sink, resultDropped)
}

func incSink(sink, result string) {
	if sink == "" {
		sink = "unknown"
	}
	if sinkWrites != nil {
		sinkWrites.WithLabelValues(sink, result).Inc()
	}
}

func SetSinkQueueDepth(n int) {
	if sinkQueueDepth != nil {
		sinkQueueDepth.Set(float64(n))
	}
}

func SetLinkUp(link string, up bool) {
	if link == "" {
		link = "unknown"
	}
	v := 0.0
	if up {
		v = 1
	}
	if linkUp != nil {
		linkUp.WithLabelValues(link).Set(v)
	}
}

// Exported label values for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultDropped = resultDropped
)
