package service

import (
	"context"
	"fmt"
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/observability/metrics"
	"container_telemetry/internal/repository"
	"container_telemetry/internal/telemetry"

	"github.com/google/uuid"
)

const (
	eventSinkName        = "sqlite"
	defaultSinkBuffer    = 256
	defaultWriteTimeout  = 2 * time.Second
	sinkFailureKey       = "sink:" + eventSinkName
	sinkConditionFailing = "failing"
	sinkConditionOK      = "ok"
)

// LocationProvider attaches a position to events at the sink boundary.
type LocationProvider interface {
	Locate(ctx context.Context) (*models.Location, error)
}

// StaticLocation is a fixed position from config.
type StaticLocation struct {
	loc *models.Location
}

// NewStaticLocation returns a provider that never locates anything when all
// arguments are zero.
func NewStaticLocation(lat, lon float64, label string) StaticLocation {
	if lat == 0 && lon == 0 && label == "" {
		return StaticLocation{}
	}
	return StaticLocation{loc: &models.Location{Latitude: lat, Longitude: lon, Label: label}}
}

func (s StaticLocation) Locate(context.Context) (*models.Location, error) {
	if s.loc == nil {
		return nil, nil
	}
	l := *s.loc
	return &l, nil
}

// ConditionReporter is satisfied by Telemetry and the pipeline.
type ConditionReporter interface {
	ReportCondition(category models.Category, key, condition, message string, severity models.Severity) bool
}

// AsyncSink persists events on its own goroutine so ingestion never waits on
// storage. When the buffer is full the event is dropped and counted.
type AsyncSink struct {
	repo     repository.EventRepo
	loc      LocationProvider
	ch       chan models.Event
	timeout  time.Duration
	limiter  *telemetry.Limiter
	reporter ConditionReporter
	failing  bool
	log      *logger.Logger
}

func NewAsyncSink(repo repository.EventRepo, loc LocationProvider, buffer int, log *logger.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	return &AsyncSink{
		repo:    repo,
		loc:     loc,
		ch:      make(chan models.Event, buffer),
		timeout: defaultWriteTimeout,
		limiter: telemetry.NewLimiter(telemetry.DefaultLimiterConfig(), nil),
		log:     logger.OrNop(log).Named("event_sink"),
	}
}

// SetReporter wires storage failures back into the event stream as SYSTEM
// conditions. Call before Run.
func (s *AsyncSink) SetReporter(r ConditionReporter) {
	s.reporter = r
}

// Emit never blocks.
func (s *AsyncSink) Emit(ev models.Event) {
	if s == nil {
		return
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	select {
	case s.ch <- ev:
		metrics.SetSinkQueueDepth(len(s.ch))
	default:
		metrics.IncSinkDropped(eventSinkName)
		if s.limiter.AdmitSampled("sink:buffer", "full", false, time.Time{}) {
			s.log.Warnw("sink_buffer_full", "category", ev.Category, "capacity", cap(s.ch))
		}
	}
}

// Run drains the buffer until ctx is canceled, then flushes what is left.
func (s *AsyncSink) Run(ctx context.Context) {
	for {
		select {
		case ev := <-s.ch:
			s.write(ctx, ev)
		case <-ctx.Done():
			s.flush()
			return
		}
	}
}

func (s *AsyncSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*s.timeout)
	defer cancel()
	for {
		select {
		case ev := <-s.ch:
			s.write(ctx, ev)
		default:
			return
		}
	}
}

func (s *AsyncSink) write(ctx context.Context, ev models.Event) {
	metrics.SetSinkQueueDepth(len(s.ch))

	if ev.Location == nil && s.loc != nil {
		loc, err := s.loc.Locate(ctx)
		if err != nil {
			// persist without a position rather than lose the event
			s.log.Debugw("locate_failed", "event_id", ev.EventID, "err", err)
		} else {
			ev.Location = loc
		}
	}

	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.repo.Append(wctx, ev)
	cancel()
	metrics.IncSinkWrite(eventSinkName, err == nil)

	s.track(ev, err)
}

// track reports failing/recovered transitions with sampled repetition.
func (s *AsyncSink) track(ev models.Event, err error) {
	if err == nil {
		if !s.failing {
			return
		}
		s.failing = false
		s.limiter.AdmitSampled(sinkFailureKey, sinkConditionOK, false, time.Time{})
		s.log.Infow("sink_recovered", "sink", eventSinkName)
		if s.reporter != nil {
			s.reporter.ReportCondition(models.CategorySystem, sinkFailureKey, sinkConditionOK,
				"Event storage recovered", models.SeveritySuccess)
		}
		return
	}

	s.failing = true
	if s.limiter.AdmitSampled(sinkFailureKey, sinkConditionFailing, false, time.Time{}) {
		s.log.Errorw("sink_write_failed", "sink", eventSinkName, "event_id", ev.EventID, "category", ev.Category, "err", err)
	}
	if s.reporter != nil && ev.Category != models.CategorySystem {
		s.reporter.ReportCondition(models.CategorySystem, sinkFailureKey, sinkConditionFailing,
			fmt.Sprintf("Event storage failing: %v", err), models.SeverityWarning)
	}
}

// MultiSink fans events out to several sinks. A panicking sink does not stop
// the others.
type MultiSink struct {
	sinks []telemetry.Sink
	log   *logger.Logger
}

func NewMultiSink(log *logger.Logger, sinks ...telemetry.Sink) *MultiSink {
	return &MultiSink{sinks: sinks, log: logger.OrNop(log).Named("multi_sink")}
}

func (m *MultiSink) Emit(ev models.Event) {
	if m == nil {
		return
	}
	for i, sink := range m.sinks {
		if sink != nil {
			m.emitOne(i, sink, ev)
		}
	}
}

func (m *MultiSink) emitOne(i int, sink telemetry.Sink, ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorw("sink_panic", "index", i, "event_id", ev.EventID, "panic", r)
		}
	}()
	sink.Emit(ev)
}
