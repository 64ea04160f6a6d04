package telemetry

import (
	"sync"
	"time"

	"container_telemetry/internal/models"
)

// Policy selects how repeated events for one key are suppressed.
type Policy int

const (
	// PolicyCooldown admits when the cooldown since the last admission has elapsed.
	PolicyCooldown Policy = iota
	// PolicySampled is for persistent conditions: admit on change, then every Nth repeat.
	PolicySampled
	// PolicyStateChange admits only when a discrete value differs from the last admitted one.
	PolicyStateChange
)

func (p Policy) String() string {
	switch p {
	case PolicySampled:
		return "sampled"
	case PolicyStateChange:
		return "state_change"
	default:
		return "cooldown"
	}
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Entry is the per-key bookkeeping shared by all policies.
type Entry struct {
	LastEmittedAt   time.Time `json:"last_emitted_at"`
	OccurrenceCount int       `json:"occurrence_count"`
	LastState       string    `json:"last_state,omitempty"`
}

// Request is one admission query.
type Request struct {
	Key      string
	Policy   Policy
	Cooldown time.Duration // zero means the limiter default
	State    string        // condition or discrete value; ignored by PolicyCooldown
	Critical bool
	Now      time.Time // zero means the limiter clock
}

type LimiterConfig struct {
	RoutineCooldown time.Duration
	SystemCooldown  time.Duration
	SampleEvery     int
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		RoutineCooldown: 60 * time.Second,
		SystemCooldown:  300 * time.Second,
		SampleEvery:     10,
	}
}

// Limiter suppresses repeated events. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	cfg     LimiterConfig
	clock   Clock
	entries map[string]*Entry
}

func NewLimiter(cfg LimiterConfig, clock Clock) *Limiter {
	def := DefaultLimiterConfig()
	if cfg.RoutineCooldown <= 0 {
		cfg.RoutineCooldown = def.RoutineCooldown
	}
	if cfg.SystemCooldown <= 0 {
		cfg.SystemCooldown = def.SystemCooldown
	}
	if cfg.SampleEvery <= 0 {
		cfg.SampleEvery = def.SampleEvery
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Limiter{cfg: cfg, clock: clock, entries: make(map[string]*Entry)}
}

// Admit applies the cooldown policy with the routine cooldown.
func (l *Limiter) Admit(key string, critical bool, now time.Time) bool {
	return l.Decide(Request{Key: key, Policy: PolicyCooldown, Critical: critical, Now: now})
}

// AdmitSampled applies the sampling policy to a persistent condition.
func (l *Limiter) AdmitSampled(key, condition string, critical bool, now time.Time) bool {
	return l.Decide(Request{Key: key, Policy: PolicySampled, State: condition, Critical: critical, Now: now})
}

// AdmitStateChange admits when state differs from the last admitted state of key.
func (l *Limiter) AdmitStateChange(key, state string, critical bool, now time.Time) bool {
	return l.Decide(Request{Key: key, Policy: PolicyStateChange, State: state, Critical: critical, Now: now})
}

// Decide reports whether the event described by r should be emitted now.
// Critical requests are always admitted and still update bookkeeping.
func (l *Limiter) Decide(r Request) bool {
	if r.Now.IsZero() {
		r.Now = l.clock.Now()
	}
	cooldown := r.Cooldown
	if cooldown <= 0 {
		cooldown = l.cfg.RoutineCooldown
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, seen := l.entries[r.Key]
	if !seen {
		e = &Entry{}
		l.entries[r.Key] = e
	}

	if r.Critical {
		if r.Policy != PolicyCooldown {
			if e.LastState != r.State {
				e.OccurrenceCount = 0
			}
			e.LastState = r.State
		}
		e.admit(r.Now)
		return true
	}

	switch r.Policy {
	case PolicySampled:
		if !seen || e.LastState != r.State {
			e.LastState = r.State
			e.OccurrenceCount = 0
			e.admit(r.Now)
			return true
		}
		e.OccurrenceCount++
		if e.OccurrenceCount%l.cfg.SampleEvery == 0 || r.Now.Sub(e.LastEmittedAt) >= cooldown {
			e.OccurrenceCount = 0
			e.admit(r.Now)
			return true
		}
		return false

	case PolicyStateChange:
		if seen && e.LastState == r.State {
			return false
		}
		e.LastState = r.State
		e.admit(r.Now)
		return true

	default:
		if seen && r.Now.Sub(e.LastEmittedAt) < cooldown {
			return false
		}
		e.admit(r.Now)
		return true
	}
}

// admit records an emission. LastEmittedAt never moves backwards, so an
// out-of-order timestamp cannot reopen a cooldown window.
func (e *Entry) admit(now time.Time) {
	if now.After(e.LastEmittedAt) {
		e.LastEmittedAt = now
	}
}

// Entry returns a copy of the bookkeeping for key.
func (l *Limiter) Entry(key string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*Entry)
}

// CategoryPolicy is the suppression rule attached to an event category.
type CategoryPolicy struct {
	Policy   Policy
	Cooldown time.Duration
}

// Policies resolves a category to its rule when a candidate event is built.
type Policies map[models.Category]CategoryPolicy

func DefaultPolicies(cfg LimiterConfig) Policies {
	routine, system := cfg.RoutineCooldown, cfg.SystemCooldown
	return Policies{
		models.CategoryTemperature: {PolicyCooldown, routine},
		models.CategoryBattery:     {PolicyCooldown, routine},
		models.CategoryShake:       {PolicyCooldown, routine},
		models.CategoryAnomaly:     {PolicyCooldown, routine},
		models.CategoryClosure:     {PolicyStateChange, 0},
		models.CategoryFunctions:   {PolicyStateChange, 0},
		models.CategorySensor:      {PolicySampled, routine},
		models.CategoryLink:        {PolicySampled, system},
		models.CategoryDiagnostic:  {PolicyCooldown, system},
		models.CategorySystem:      {PolicySampled, system},
	}
}

// Resolve falls back to the cooldown policy for unknown categories.
func (p Policies) Resolve(c models.Category) CategoryPolicy {
	if cp, ok := p[c]; ok {
		return cp
	}
	return CategoryPolicy{Policy: PolicyCooldown}
}
