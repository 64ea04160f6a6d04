package simulator

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/telemetry"
)

var ErrUnknownCommand = errors.New("unknown actuator command")

// Config holds scenario durations (in steps) and the sensor-error cadence.
type Config struct {
	Durations        map[Scenario]int
	HotFaultEvery    int
	ColdFaultEvery   int
	FaultWindowStart int
	FaultWindowEnd   int
}

func DefaultConfig() Config {
	return Config{
		Durations: map[Scenario]int{
			BatteryDrain:         40,
			HeatingCycle:         35,
			CoolingCycle:         35,
			BagCycle:             20,
			ShakeCycle:           25,
			SensorErrorInjection: 30,
		},
		HotFaultEvery:    3,
		ColdFaultEvery:   5,
		FaultWindowStart: 5,
		FaultWindowEnd:   25,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	durations := make(map[Scenario]int, len(def.Durations))
	for s, d := range def.Durations {
		durations[s] = d
	}
	for s, d := range c.Durations {
		if d > 0 {
			durations[s] = d
		}
	}
	c.Durations = durations
	if c.HotFaultEvery <= 0 {
		c.HotFaultEvery = def.HotFaultEvery
	}
	if c.ColdFaultEvery <= 0 {
		c.ColdFaultEvery = def.ColdFaultEvery
	}
	if c.FaultWindowEnd <= c.FaultWindowStart {
		c.FaultWindowStart, c.FaultWindowEnd = def.FaultWindowStart, def.FaultWindowEnd
	}
	return c
}

// InitialState is where a fresh generator starts: charged, idle, lid closed.
func InitialState() State {
	return State{
		Scenario: Normal,
		Battery:  95,
		HotC:     ambientHotC,
		ColdC:    8,
		Closed:   true,
		Shake:    idleShake,
	}
}

// Generator advances the scenario state machine one step per call.
// Safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	fired  map[string]bool
	parser *telemetry.Parser
	log    *logger.Logger
}

func NewGenerator(cfg Config, log *logger.Logger) *Generator {
	return &Generator{
		cfg:    cfg.withDefaults(),
		state:  InitialState(),
		fired:  make(map[string]bool),
		parser: telemetry.NewParser(telemetry.DefaultParserConfig()),
		log:    logger.OrNop(log).Named("simulator"),
	}
}

// Step computes the next state and returns it as a sample together with the
// wire frame it was decoded from.
func (g *Generator) Step() (models.TelemetrySample, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.state
	cur.HotFault, cur.ColdFault = false, false
	next := transitions[cur.Scenario](cur, g.cfg)
	next.Scenario, next.Step = cur.Scenario, cur.Step
	g.checkMilestones(next)

	frame := FormatFrame(next)

	next.Step++
	if d, ok := g.cfg.Durations[next.Scenario]; ok && next.Scenario != Normal && next.Step >= d {
		g.log.Infow("scenario_finished", "scenario", next.Scenario, "steps", next.Step)
		next.Scenario, next.Step = Normal, 0
		g.fired = make(map[string]bool)
	}
	g.state = next

	return g.parser.Parse(frame).Sample, frame
}

// SetScenario switches scenario and restarts its step counter. Hysteresis
// state in the ingestion pipeline is not touched.
func (g *Generator) SetScenario(s Scenario) error {
	if _, ok := transitions[s]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownScenario, int(s))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.Scenario, g.state.Step = s, 0
	g.fired = make(map[string]bool)
	g.log.Infow("scenario_started", "scenario", s)
	return nil
}

// HandleCommand applies a single-character actuator command: H/h heat on/off,
// C/c cool on/off, L/l light on/off. Repeating a command is a no-op.
func (g *Generator) HandleCommand(cmd rune) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var flag *bool
	var name string
	on := cmd == 'H' || cmd == 'C' || cmd == 'L'
	switch cmd {
	case 'H', 'h':
		flag, name = &g.state.Heat, "heat"
	case 'C', 'c':
		flag, name = &g.state.Cool, "cool"
	case 'L', 'l':
		flag, name = &g.state.Light, "light"
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	if *flag == on {
		g.log.Debugw("command_noop", "actuator", name, "on", on)
		return nil
	}
	*flag = on
	g.log.Infow("command_applied", "actuator", name, "on", on)
	return nil
}

// State returns a copy of the current model.
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Milestones lists the scenario-local milestones reached since the last
// scenario switch.
func (g *Generator) Milestones() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.fired))
	for k := range g.fired {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *Generator) checkMilestones(st State) {
	mark := func(name string, reached bool) {
		if !reached || g.fired[name] {
			return
		}
		g.fired[name] = true
		g.log.Infow("scenario_milestone", "scenario", st.Scenario, "step", st.Step, "milestone", name)
	}
	switch st.Scenario {
	case BatteryDrain:
		mark("battery_low", st.Battery <= 5)
	case HeatingCycle:
		mark("hot_target", st.HotC >= maxHotC)
		mark("heater_off", !st.Heat)
	case CoolingCycle:
		mark("cold_target", st.ColdC <= minColdC)
	case ShakeCycle:
		mark("impact", st.Shake >= impactShake)
	case SensorErrorInjection:
		mark("first_fault", st.HotFault || st.ColdFault)
	}
}
