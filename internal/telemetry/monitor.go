package telemetry

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"container_telemetry/internal/models"
)

// Channel is one monitored quantity of the container.
type Channel int

const (
	ChannelHot Channel = iota
	ChannelCold
	ChannelBattery
	ChannelShake
)

var channelNames = map[Channel]string{
	ChannelHot:     "hot",
	ChannelCold:    "cold",
	ChannelBattery: "battery",
	ChannelShake:   "shake",
}

func (c Channel) String() string {
	if n, ok := channelNames[c]; ok {
		return n
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// ParseChannel maps a profile-file key back to a Channel.
func ParseChannel(s string) (Channel, bool) {
	for c, n := range channelNames {
		if n == s {
			return c, true
		}
	}
	return 0, false
}

// Direction tells which way a value must move to cross a threshold.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ThresholdKey identifies a latch. Ascending-40 and descending-40 are different keys.
type ThresholdKey struct {
	Value     int       `json:"value"`
	Direction Direction `json:"direction"`
}

// ThresholdEvent is a crossing (or an anomalous jump) detected by the Monitor.
type ThresholdEvent struct {
	Channel  Channel
	Key      ThresholdKey
	Previous int
	Current  int
	Message  string
	Severity models.Severity
	Anomaly  bool
}

type channelState struct {
	last    *int
	latched map[ThresholdKey]struct{}
}

func newChannelState() *channelState {
	return &channelState{latched: make(map[ThresholdKey]struct{})}
}

// Monitor is the per-session hysteresis engine. Each threshold fires once and
// stays latched until the value crosses back past a threshold of the opposite
// list, so noise around a single boundary cannot produce repeated events.
type Monitor struct {
	mu       sync.Mutex
	profiles Profiles
	states   map[Channel]*channelState
}

func NewMonitor(profiles Profiles) *Monitor {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Monitor{
		profiles: profiles.normalized(),
		states:   make(map[Channel]*channelState),
	}
}

// Observe rounds the reading and compares it with the channel's previous value.
func (m *Monitor) Observe(ch Channel, value float64) []ThresholdEvent {
	current := int(math.Round(value))

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(ch)
	return m.evaluate(ch, st, st.last, current)
}

// ObserveRounded evaluates a transition with an explicit previous value.
// A nil previous only records the baseline.
func (m *Monitor) ObserveRounded(ch Channel, previous *int, current int) []ThresholdEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluate(ch, m.state(ch), previous, current)
}

// Reset forgets every latch and last value; called on session boundaries.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[Channel]*channelState)
}

// ChannelState is a copy of one channel's hysteresis bookkeeping.
type ChannelState struct {
	Last    *int           `json:"last,omitempty"`
	Latched []ThresholdKey `json:"latched"`
}

// State returns a snapshot of the channel for diagnostics. Latched keys are
// sorted ascending first, then by value.
func (m *Monitor) State(ch Channel) ChannelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[ch]
	if !ok {
		return ChannelState{Latched: []ThresholdKey{}}
	}
	out := ChannelState{Latched: make([]ThresholdKey, 0, len(st.latched))}
	if st.last != nil {
		v := *st.last
		out.Last = &v
	}
	for k := range st.latched {
		out.Latched = append(out.Latched, k)
	}
	sort.Slice(out.Latched, func(i, j int) bool {
		a, b := out.Latched[i], out.Latched[j]
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Value < b.Value
	})
	return out
}

func (m *Monitor) state(ch Channel) *channelState {
	st, ok := m.states[ch]
	if !ok {
		st = newChannelState()
		m.states[ch] = st
	}
	return st
}

func (m *Monitor) evaluate(ch Channel, st *channelState, previous *int, current int) []ThresholdEvent {
	cur := current
	st.last = &cur

	if previous == nil {
		return nil
	}
	prev := *previous
	if prev == current {
		return nil
	}

	profile := m.profiles[ch]
	var out []ThresholdEvent

	if profile.MaxDelta > 0 && absInt(current-prev) > profile.MaxDelta {
		out = append(out, ThresholdEvent{
			Channel:  ch,
			Previous: prev,
			Current:  current,
			Message:  anomalyMessage(ch, prev, current),
			Severity: models.SeverityWarning,
			Anomaly:  true,
		})
	}

	if current > prev {
		for _, t := range profile.Ascending {
			if t.Value <= prev || t.Value > current {
				continue
			}
			unlatch(st, Descending, func(v int) bool { return v < t.Value })
			key := ThresholdKey{Value: t.Value, Direction: Ascending}
			if fire(st, key) {
				out = append(out, crossing(ch, key, t, prev, current))
			}
		}
		if len(profile.Ascending) == 0 && profile.RearmMargin > 0 {
			unlatch(st, Descending, func(v int) bool { return current >= v+profile.RearmMargin })
		}
		return out
	}

	for _, t := range profile.Descending {
		if t.Value >= prev || t.Value < current {
			continue
		}
		unlatch(st, Ascending, func(v int) bool { return v > t.Value })
		key := ThresholdKey{Value: t.Value, Direction: Descending}
		if fire(st, key) {
			out = append(out, crossing(ch, key, t, prev, current))
		}
	}
	if len(profile.Descending) == 0 && profile.RearmMargin > 0 {
		unlatch(st, Ascending, func(v int) bool { return current <= v-profile.RearmMargin })
	}
	return out
}

// fire latches key and reports whether it was armed.
func fire(st *channelState, key ThresholdKey) bool {
	if _, latched := st.latched[key]; latched {
		return false
	}
	st.latched[key] = struct{}{}
	return true
}

func unlatch(st *channelState, dir Direction, match func(int) bool) {
	for k := range st.latched {
		if k.Direction == dir && match(k.Value) {
			delete(st.latched, k)
		}
	}
}

func crossing(ch Channel, key ThresholdKey, t Threshold, prev, current int) ThresholdEvent {
	return ThresholdEvent{
		Channel:  ch,
		Key:      key,
		Previous: prev,
		Current:  current,
		Message:  t.Message,
		Severity: t.Severity,
	}
}

func anomalyMessage(ch Channel, prev, current int) string {
	switch ch {
	case ChannelHot:
		return fmt.Sprintf("Hot compartment reading jumped from %d°C to %d°C", prev, current)
	case ChannelCold:
		return fmt.Sprintf("Cold compartment reading jumped from %d°C to %d°C", prev, current)
	case ChannelBattery:
		return fmt.Sprintf("Battery level jumped from %d%% to %d%%", prev, current)
	default:
		return fmt.Sprintf("%s reading jumped from %d to %d", ch, prev, current)
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
