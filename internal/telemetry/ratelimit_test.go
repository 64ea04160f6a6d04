package telemetry

import (
	"sync"
	"testing"
	"time"

	"container_telemetry/internal/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_CooldownWindow(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig(), nil)

	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{10 * time.Second, false},
		{59 * time.Second, false},
		{60 * time.Second, true},
		{61 * time.Second, false},
	}
	for _, s := range steps {
		if got := l.Admit("temp:hot", false, t0.Add(s.at)); got != s.want {
			t.Fatalf("Admit at +%v = %v, want %v", s.at, got, s.want)
		}
	}
}

func TestLimiter_CriticalBypassesAndUpdatesBookkeeping(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig(), nil)

	if !l.Admit("battery", false, t0) {
		t.Fatalf("first admit should pass")
	}
	if !l.Admit("battery", true, t0.Add(time.Second)) {
		t.Fatalf("critical must always pass")
	}
	e, ok := l.Entry("battery")
	if !ok || !e.LastEmittedAt.Equal(t0.Add(time.Second)) {
		t.Fatalf("critical should update LastEmittedAt, got %+v", e)
	}
	if l.Admit("battery", false, t0.Add(30*time.Second)) {
		t.Fatalf("cooldown counts from the critical emission")
	}
}

func TestLimiter_SampledEmitsOnFirstAndNPlusOne(t *testing.T) {
	cfg := DefaultLimiterConfig()
	cfg.RoutineCooldown = time.Hour
	l := NewLimiter(cfg, nil)

	var admitted []int
	for i := 1; i <= 25; i++ {
		if l.AdmitSampled("link", "unavailable", false, t0.Add(time.Duration(i)*time.Second)) {
			admitted = append(admitted, i)
		}
	}
	want := []int{1, 11, 21}
	if len(admitted) != len(want) {
		t.Fatalf("admitted %v, want %v", admitted, want)
	}
	for i := range want {
		if admitted[i] != want[i] {
			t.Fatalf("admitted %v, want %v", admitted, want)
		}
	}
}

func TestLimiter_SampledConditionChangeAdmitsAndResets(t *testing.T) {
	cfg := DefaultLimiterConfig()
	cfg.RoutineCooldown = time.Hour
	l := NewLimiter(cfg, nil)

	l.AdmitSampled("sensor:hot", "fault", false, t0)
	for i := 0; i < 4; i++ {
		l.AdmitSampled("sensor:hot", "fault", false, t0)
	}
	if e, _ := l.Entry("sensor:hot"); e.OccurrenceCount != 4 {
		t.Fatalf("count = %d, want 4", e.OccurrenceCount)
	}
	if !l.AdmitSampled("sensor:hot", "ok", false, t0) {
		t.Fatalf("condition change must admit regardless of cooldown")
	}
	if e, _ := l.Entry("sensor:hot"); e.OccurrenceCount != 0 || e.LastState != "ok" {
		t.Fatalf("entry after change = %+v", e)
	}
}

func TestLimiter_SampledCooldownElapses(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig(), nil)

	l.AdmitSampled("link", "down", false, t0)
	if l.AdmitSampled("link", "down", false, t0.Add(30*time.Second)) {
		t.Fatalf("second occurrence inside cooldown must be suppressed")
	}
	if !l.AdmitSampled("link", "down", false, t0.Add(61*time.Second)) {
		t.Fatalf("cooldown elapsed, should admit before the Nth occurrence")
	}
}

func TestLimiter_StateChange(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig(), nil)

	seq := []struct {
		state string
		want  bool
	}{
		{"closed", true},
		{"closed", false},
		{"closed", false},
		{"open", true},
		{"closed", true},
	}
	for i, s := range seq {
		if got := l.AdmitStateChange("closure", s.state, false, t0); got != s.want {
			t.Fatalf("step %d (%s) = %v, want %v", i, s.state, got, s.want)
		}
	}
}

func TestLimiter_LastEmittedNeverMovesBackwards(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig(), nil)

	l.Admit("k", true, t0.Add(time.Minute))
	l.Admit("k", true, t0)
	e, _ := l.Entry("k")
	if !e.LastEmittedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("LastEmittedAt moved backwards: %v", e.LastEmittedAt)
	}
}

func TestLimiter_ZeroNowUsesClock(t *testing.T) {
	clk := newFakeClock(t0)
	l := NewLimiter(DefaultLimiterConfig(), clk)

	if !l.Decide(Request{Key: "k"}) {
		t.Fatalf("first decision should admit")
	}
	clk.Advance(time.Minute)
	if !l.Decide(Request{Key: "k"}) {
		t.Fatalf("clock advanced past cooldown, should admit")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(DefaultLimiterConfig(), nil)
	l.Admit("a", false, t0)
	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("expected no entries after reset")
	}
	if !l.Admit("a", false, t0.Add(time.Second)) {
		t.Fatalf("reset should forget cooldowns")
	}
}

func TestPolicies_Resolve(t *testing.T) {
	p := DefaultPolicies(DefaultLimiterConfig())

	if got := p.Resolve(models.CategoryClosure).Policy; got != PolicyStateChange {
		t.Fatalf("closure policy = %v", got)
	}
	if got := p.Resolve(models.CategoryLink); got.Policy != PolicySampled || got.Cooldown != 300*time.Second {
		t.Fatalf("link policy = %+v", got)
	}
	if got := p.Resolve(models.Category("OTHER")).Policy; got != PolicyCooldown {
		t.Fatalf("unknown category policy = %v", got)
	}
}
