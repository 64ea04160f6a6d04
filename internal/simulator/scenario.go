// Package simulator produces synthetic container frames in the device wire
// format so the ingestion pipeline can be exercised without hardware.
package simulator

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a scripted sequence of physical changes.
type Scenario int

const (
	Normal Scenario = iota
	BatteryDrain
	HeatingCycle
	CoolingCycle
	BagCycle
	ShakeCycle
	SensorErrorInjection
)

var scenarioNames = [...]string{
	"normal",
	"battery_drain",
	"heating_cycle",
	"cooling_cycle",
	"bag_cycle",
	"shake_cycle",
	"sensor_error_injection",
}

func (s Scenario) String() string {
	if s < Normal || int(s) >= len(scenarioNames) {
		return fmt.Sprintf("scenario(%d)", int(s))
	}
	return scenarioNames[s]
}

func (s Scenario) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseScenario accepts names like "heating_cycle", "heating-cycle" or "HeatingCycle".
func ParseScenario(name string) (Scenario, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.ReplaceAll(norm, "-", "_")
	for i, n := range scenarioNames {
		if norm == n || norm == strings.ReplaceAll(n, "_", "") {
			return Scenario(i), nil
		}
	}
	return Normal, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// Scenarios lists every scenario in declaration order.
func Scenarios() []Scenario {
	out := make([]Scenario, len(scenarioNames))
	for i := range out {
		out[i] = Scenario(i)
	}
	return out
}

// State is the generator's physical model at one step.
type State struct {
	Scenario  Scenario `json:"scenario"`
	Step      int      `json:"step"`
	Battery   float64  `json:"battery"`
	HotC      float64  `json:"hot_c"`
	ColdC     float64  `json:"cold_c"`
	HotFault  bool     `json:"hot_fault"`
	ColdFault bool     `json:"cold_fault"`
	Closed    bool     `json:"closed"`
	Heat      bool     `json:"heat"`
	Cool      bool     `json:"cool"`
	Light     bool     `json:"light"`
	Shake     float64  `json:"shake"`
}

// ActiveFunctions counts the actuators that are on.
func (s State) ActiveFunctions() int {
	n := 0
	for _, on := range []bool{s.Heat, s.Cool, s.Light} {
		if on {
			n++
		}
	}
	return n
}

// Physical limits of the model.
const (
	ambientHotC  = 22.0
	maxHotC      = 75.0
	ambientColdC = 18.0
	minColdC     = -2.0
	coolTargetC  = 3.0
	idleShake    = 0.1
	impactShake  = 12.5
)

// transition computes the quantities for st.Step. It must not touch Step or Scenario.
type transition func(st State, cfg Config) State

var transitions = map[Scenario]transition{
	Normal:               normalStep,
	BatteryDrain:         batteryDrainStep,
	HeatingCycle:         heatingStep,
	CoolingCycle:         coolingStep,
	BagCycle:             bagStep,
	ShakeCycle:           shakeStep,
	SensorErrorInjection: sensorErrorStep,
}

// normalStep drifts temperatures according to the actuator flags.
func normalStep(st State, _ Config) State {
	if st.Heat {
		st.HotC = math.Min(st.HotC+1.5, maxHotC)
	} else {
		st.HotC = math.Max(st.HotC-0.5, ambientHotC)
	}
	if st.Cool {
		st.ColdC = math.Max(st.ColdC-0.8, coolTargetC)
	} else {
		st.ColdC = math.Min(st.ColdC+0.2, ambientColdC)
	}
	st.Battery = math.Max(st.Battery-0.05, 0)
	st.Shake = idleShake + 0.05*math.Abs(math.Sin(float64(st.Step)/3))
	st.HotFault, st.ColdFault = false, false
	return st
}

// batteryDrainStep: steps 0-29 drain 3%/step down to 2%, then the charger kicks in.
func batteryDrainStep(st State, _ Config) State {
	if st.Step < 30 {
		st.Battery = math.Max(st.Battery-3, 2)
	} else {
		st.Battery = math.Min(st.Battery+5, 100)
	}
	return st
}

// heatingStep: steps 0-19 heat at 2.5°C/step, then the heater is off and the
// compartment cools at 2°C/step.
func heatingStep(st State, _ Config) State {
	if st.Step < 20 {
		st.Heat = true
		st.HotC = math.Min(st.HotC+2.5, maxHotC)
	} else {
		st.Heat = false
		st.HotC = math.Max(st.HotC-2, ambientHotC)
	}
	return st
}

// coolingStep: steps 0-14 cool at 1°C/step towards -2°C, then warm back.
func coolingStep(st State, _ Config) State {
	if st.Step < 15 {
		st.Cool = true
		st.ColdC = math.Max(st.ColdC-1, minColdC)
	} else {
		st.Cool = false
		st.ColdC = math.Min(st.ColdC+1, ambientColdC)
	}
	return st
}

// bagStep toggles the lid every 5 steps: open, closed, open, closed.
func bagStep(st State, _ Config) State {
	st.Closed = (st.Step/5)%2 == 1
	return st
}

// shakeStep ramps up, injects one impact at step 5, decays, then settles.
func shakeStep(st State, _ Config) State {
	switch {
	case st.Step < 5:
		st.Shake = 0.2 + 0.6*float64(st.Step)
	case st.Step == 5:
		st.Shake = impactShake
	case st.Step < 15:
		st.Shake = math.Max(st.Shake*0.6, idleShake)
	default:
		st.Shake = idleShake + 0.05*math.Abs(math.Sin(float64(st.Step)))
	}
	return st
}

// sensorErrorStep replaces temperatures with the sentinel on a modular
// schedule inside the configured window.
func sensorErrorStep(st State, cfg Config) State {
	st = normalStep(st, cfg)
	if st.Step < cfg.FaultWindowStart || st.Step >= cfg.FaultWindowEnd {
		return st
	}
	offset := st.Step - cfg.FaultWindowStart
	st.HotFault = offset%cfg.HotFaultEvery == 0
	st.ColdFault = offset%cfg.ColdFaultEvery == 0
	return st
}
