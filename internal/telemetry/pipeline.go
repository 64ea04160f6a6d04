package telemetry

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
)

// Sink receives admitted events. Emit must not block for long; the pipeline
// calls it synchronously after releasing its lock.
type Sink interface {
	Emit(ev models.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(models.Event)

func (f SinkFunc) Emit(ev models.Event) { f(ev) }

const defaultInvalidReportEvery = 10

type PipelineConfig struct {
	Parser   ParserConfig
	Profiles Profiles
	Limiter  LimiterConfig
	Policies Policies
	// InvalidReportEvery raises one diagnostic event per that many undecodable frames.
	InvalidReportEvery int
}

func DefaultPipelineConfig() PipelineConfig {
	lc := DefaultLimiterConfig()
	return PipelineConfig{
		Parser:             DefaultParserConfig(),
		Profiles:           DefaultProfiles(),
		Limiter:            lc,
		Policies:           DefaultPolicies(lc),
		InvalidReportEvery: defaultInvalidReportEvery,
	}
}

// Statistics are diagnostic counters; they never influence processing.
type Statistics struct {
	TotalProcessed int        `json:"total_processed"`
	InvalidCount   int        `json:"invalid_count"`
	SuccessRate    float64    `json:"success_rate"`
	Emitted        int        `json:"emitted"`
	Suppressed     int        `json:"suppressed"`
	LastFrameAt    *time.Time `json:"last_frame_at,omitempty"`
}

// IngestResult describes what one raw line did to the session.
type IngestResult struct {
	Sample      models.TelemetrySample `json:"-"`
	Diagnostics []Diagnostic           `json:"diagnostics"`
	Events      []models.Event         `json:"events"`
	Suppressed  int                    `json:"suppressed"`
	Stats       Statistics             `json:"stats"`
	Display     models.DeviceSnapshot  `json:"display"`
}

type candidate struct {
	key      string
	category models.Category
	state    string
	message  string
	severity models.Severity
	meta     map[string]any
}

// Pipeline is one monitoring session: parser, monitor and limiter plus the
// counters and carry-forward values for a single device stream.
type Pipeline struct {
	mu sync.Mutex

	parser   *Parser
	monitor  *Monitor
	limiter  *Limiter
	policies Policies
	sink     Sink
	clock    Clock
	log      *logger.Logger

	invalidEvery int

	processed  int
	invalid    int
	emitted    int
	suppressed int
	lastFrame  time.Time

	display   models.DeviceSnapshot
	hotFault  bool
	coldFault bool
}

func NewPipeline(cfg PipelineConfig, sink Sink, clock Clock, log *logger.Logger) *Pipeline {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies(cfg.Limiter)
	}
	if cfg.InvalidReportEvery <= 0 {
		cfg.InvalidReportEvery = defaultInvalidReportEvery
	}
	return &Pipeline{
		parser:       NewParser(cfg.Parser),
		monitor:      NewMonitor(cfg.Profiles),
		limiter:      NewLimiter(cfg.Limiter, clock),
		policies:     cfg.Policies,
		sink:         sink,
		clock:        clock,
		log:          logger.OrNop(log).Named("pipeline"),
		invalidEvery: cfg.InvalidReportEvery,
	}
}

// Ingest processes one raw frame. It never fails: bad input only shows up
// in diagnostics, counters and events.
func (p *Pipeline) Ingest(raw string) IngestResult {
	now := p.clock.Now()
	parsed := p.parser.Parse(raw)
	sample := parsed.Sample

	p.mu.Lock()

	p.processed++
	p.lastFrame = now

	var cands []candidate
	if sample.AllInvalid() {
		p.invalid++
		if p.invalid%p.invalidEvery == 0 {
			cands = append(cands, candidate{
				key:      "diagnostic:invalid_frames",
				category: models.CategoryDiagnostic,
				message:  fmt.Sprintf("%d of %d frames could not be decoded", p.invalid, p.processed),
				severity: models.SeverityWarning,
				meta:     map[string]any{"invalid": p.invalid, "processed": p.processed},
			})
		}
	}

	p.updateDisplay(sample, now)

	cands = append(cands, p.temperature(ChannelHot, sample.HotTemp, &p.hotFault)...)
	cands = append(cands, p.temperature(ChannelCold, sample.ColdTemp, &p.coldFault)...)
	if sample.BatteryPercent != nil {
		cands = append(cands, p.observe(ChannelBattery, float64(*sample.BatteryPercent))...)
	}
	if sample.ShakeMagnitude != nil {
		cands = append(cands, p.observe(ChannelShake, *sample.ShakeMagnitude)...)
	}
	if sample.Closed != nil {
		c := candidate{key: "closure", category: models.CategoryClosure, severity: models.SeverityInfo}
		if *sample.Closed {
			c.state, c.message = "closed", "Container closed"
		} else {
			c.state, c.message = "open", "Container opened"
		}
		cands = append(cands, c)
	}
	if sample.ActiveFunctionCount != nil {
		n := *sample.ActiveFunctionCount
		cands = append(cands, candidate{
			key:      "functions",
			category: models.CategoryFunctions,
			state:    strconv.Itoa(n),
			message:  fmt.Sprintf("Active functions: %d", n),
			severity: models.SeverityInfo,
			meta:     map[string]any{"count": n},
		})
	}

	res := IngestResult{Sample: sample, Diagnostics: parsed.Diagnostics}
	for _, c := range cands {
		if ev, ok := p.admit(c, now); ok {
			res.Events = append(res.Events, ev)
		} else {
			res.Suppressed++
		}
	}
	res.Stats = p.statsLocked()
	res.Display = p.displayLocked()

	p.mu.Unlock()

	for _, ev := range res.Events {
		p.emit(ev)
	}
	return res
}

// ReportCondition feeds a persistent condition from outside the frame stream
// (link watchdog, broker connection, sink health) through the sampling policy.
// It reports whether an event was emitted.
func (p *Pipeline) ReportCondition(category models.Category, key, condition, message string, severity models.Severity) bool {
	now := p.clock.Now()
	pol := p.policies.Resolve(category)

	p.mu.Lock()
	admitted := p.limiter.Decide(Request{
		Key:      key,
		Policy:   PolicySampled,
		Cooldown: pol.Cooldown,
		State:    condition,
		Critical: severity == models.SeverityCritical,
		Now:      now,
	})
	var ev models.Event
	if admitted {
		p.emitted++
		ev = newEvent(now, category, message, severity, map[string]any{"key": key, "condition": condition})
	} else {
		p.suppressed++
	}
	p.mu.Unlock()

	if admitted {
		p.emit(ev)
	}
	return admitted
}

// Reset starts a new session: counters, hysteresis latches, limiter entries
// and carry-forward values are all cleared.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed, p.invalid, p.emitted, p.suppressed = 0, 0, 0, 0
	p.lastFrame = time.Time{}
	p.display = models.DeviceSnapshot{}
	p.hotFault, p.coldFault = false, false
	p.monitor.Reset()
	p.limiter.Reset()
	p.log.Infow("session_reset")
}

func (p *Pipeline) Statistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

// Display returns the carry-forward snapshot.
func (p *Pipeline) Display() models.DeviceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayLocked()
}

// ChannelState exposes the monitor's bookkeeping for one channel.
func (p *Pipeline) ChannelState(ch Channel) ChannelState {
	return p.monitor.State(ch)
}

// LastFrameAt is zero until the first frame arrives.
func (p *Pipeline) LastFrameAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}

func (p *Pipeline) temperature(ch Channel, t models.Temperature, fault *bool) []candidate {
	key := "sensor:" + ch.String()
	label := compartmentLabel(ch)
	switch t.Status {
	case models.TempOK:
		out := p.observe(ch, t.Celsius)
		if *fault {
			*fault = false
			out = append(out, candidate{
				key:      key,
				category: models.CategorySensor,
				state:    "ok",
				message:  label + " temperature sensor recovered",
				severity: models.SeveritySuccess,
			})
		}
		return out
	case models.TempSensorError:
		*fault = true
		return []candidate{{
			key:      key,
			category: models.CategorySensor,
			state:    "fault",
			message:  label + " temperature sensor error",
			severity: models.SeverityWarning,
		}}
	}
	return nil
}

func (p *Pipeline) observe(ch Channel, value float64) []candidate {
	evs := p.monitor.Observe(ch, value)
	out := make([]candidate, 0, len(evs))
	for _, te := range evs {
		c := candidate{
			category: channelCategory(ch),
			message:  te.Message,
			severity: te.Severity,
			meta: map[string]any{
				"channel":  ch.String(),
				"previous": te.Previous,
				"current":  te.Current,
			},
		}
		if te.Anomaly {
			c.category = models.CategoryAnomaly
			c.key = "anomaly:" + ch.String()
		} else {
			c.key = fmt.Sprintf("threshold:%s:%s:%d", ch, te.Key.Direction, te.Key.Value)
			c.meta["threshold"] = te.Key.Value
		}
		out = append(out, c)
	}
	return out
}

func (p *Pipeline) admit(c candidate, now time.Time) (models.Event, bool) {
	pol := p.policies.Resolve(c.category)
	ok := p.limiter.Decide(Request{
		Key:      c.key,
		Policy:   pol.Policy,
		Cooldown: pol.Cooldown,
		State:    c.state,
		Critical: c.severity == models.SeverityCritical,
		Now:      now,
	})
	if !ok {
		p.suppressed++
		return models.Event{}, false
	}
	p.emitted++
	var meta any
	if c.meta != nil {
		meta = c.meta
	}
	return newEvent(now, c.category, c.message, c.severity, meta), true
}

// emit hands ev to the sink. A panicking sink is contained here so the next
// Ingest call is unaffected.
func (p *Pipeline) emit(ev models.Event) {
	if p.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("sink_panic", "category", ev.Category, "panic", r)
		}
	}()
	p.sink.Emit(ev)
}

func (p *Pipeline) updateDisplay(s models.TelemetrySample, now time.Time) {
	d := &p.display
	var stale []string

	if s.BatteryPercent != nil {
		d.BatteryPercent = models.IntPtr(*s.BatteryPercent)
	} else {
		stale = append(stale, "battery")
	}
	switch s.HotTemp.Status {
	case models.TempOK:
		d.HotTempC, d.HotSensorFault = models.FloatPtr(s.HotTemp.Celsius), false
	case models.TempSensorError:
		d.HotSensorFault = true
		stale = append(stale, "hot_temp")
	default:
		stale = append(stale, "hot_temp")
	}
	switch s.ColdTemp.Status {
	case models.TempOK:
		d.ColdTempC, d.ColdSensorFault = models.FloatPtr(s.ColdTemp.Celsius), false
	case models.TempSensorError:
		d.ColdSensorFault = true
		stale = append(stale, "cold_temp")
	default:
		stale = append(stale, "cold_temp")
	}
	if s.Closed != nil {
		d.Closed = models.BoolPtr(*s.Closed)
	} else {
		stale = append(stale, "closed")
	}
	if s.ActiveFunctionCount != nil {
		d.ActiveFunctionCount = models.IntPtr(*s.ActiveFunctionCount)
	} else {
		stale = append(stale, "active_functions")
	}
	if s.ShakeMagnitude != nil {
		d.ShakeMagnitude = models.FloatPtr(*s.ShakeMagnitude)
	} else {
		stale = append(stale, "shake")
	}

	d.StaleFields = stale
	t := now
	d.LastFrameAt = &t
	d.UpdatedAt = now
}

func (p *Pipeline) displayLocked() models.DeviceSnapshot {
	d := p.display
	d.StaleFields = append([]string(nil), p.display.StaleFields...)
	return d
}

func (p *Pipeline) statsLocked() Statistics {
	st := Statistics{
		TotalProcessed: p.processed,
		InvalidCount:   p.invalid,
		Emitted:        p.emitted,
		Suppressed:     p.suppressed,
	}
	if p.processed > 0 {
		st.SuccessRate = float64(p.processed-p.invalid) / float64(p.processed) * 100
	}
	if !p.lastFrame.IsZero() {
		t := p.lastFrame
		st.LastFrameAt = &t
	}
	return st
}

func newEvent(now time.Time, cat models.Category, msg string, sev models.Severity, meta any) models.Event {
	return models.Event{
		EventID:    uuid.NewString(),
		OccurredAt: now.UTC(),
		Category:   cat,
		Message:    msg,
		Severity:   sev,
		Metadata:   meta,
	}
}

func channelCategory(ch Channel) models.Category {
	switch ch {
	case ChannelBattery:
		return models.CategoryBattery
	case ChannelShake:
		return models.CategoryShake
	default:
		return models.CategoryTemperature
	}
}

func compartmentLabel(ch Channel) string {
	if ch == ChannelCold {
		return "Cold compartment"
	}
	return "Hot compartment"
}
