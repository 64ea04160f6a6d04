package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"container_telemetry/internal/models"
)

type stubLastFrame struct {
	at time.Time
}

func (s *stubLastFrame) LastFrameAt() time.Time { return s.at }

type countingResetter struct {
	mu    sync.Mutex
	count int
	src   *stubLastFrame
}

func (r *countingResetter) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	if r.src != nil {
		r.src.at = time.Time{}
	}
	return nil
}

func (r *countingResetter) resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func newTestWatchdog(src *stubLastFrame, rep *recordingReporter, now *time.Time) *LinkWatchdog {
	w := NewLinkWatchdog(src, rep, nil, 10*time.Second, nil)
	w.now = func() time.Time { return *now }
	w.started = *now
	return w
}

func TestLinkWatchdog_StaleAndRestore(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &stubLastFrame{at: now}
	rep := &recordingReporter{}
	w := newTestWatchdog(src, rep, &now)

	if !w.Check() {
		t.Fatalf("fresh frame: link should be up")
	}

	now = now.Add(11 * time.Second)
	if w.Check() {
		t.Fatalf("11s of silence: link should be down")
	}
	now = now.Add(time.Second)
	w.Check()

	src.at = now
	if !w.Check() {
		t.Fatalf("frame arrived: link should be up")
	}
	w.Check()

	got := rep.all()
	want := []string{"unavailable", "unavailable", "restored"}
	if len(got) != len(want) {
		t.Fatalf("reported %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reported %v, want %v", got, want)
		}
	}
}

func TestLinkWatchdog_NoFramesSinceStart(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rep := &recordingReporter{}
	w := newTestWatchdog(&stubLastFrame{}, rep, &now)

	if !w.Check() {
		t.Fatalf("within grace period after start")
	}
	now = now.Add(30 * time.Second)
	if w.Check() {
		t.Fatalf("no frames for 30s should be reported")
	}
	if got := rep.all(); len(got) != 1 || got[0] != "unavailable" {
		t.Fatalf("unexpected reports: %v", got)
	}
}

func TestLinkWatchdog_StaleEndsSessionOnce(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &stubLastFrame{at: now}
	rep := &recordingReporter{}
	res := &countingResetter{src: src}
	w := newTestWatchdog(src, rep, &now)
	w.resetter = res

	w.Check()
	if res.resets() != 0 {
		t.Fatalf("fresh link must not reset the session")
	}

	now = now.Add(11 * time.Second)
	w.Check()
	if res.resets() != 1 {
		t.Fatalf("expected one reset on going stale, got %d", res.resets())
	}

	// the reset clears the last frame time; silence still counts from the old frame
	now = now.Add(5 * time.Second)
	if w.Check() {
		t.Fatalf("link should stay down after the session reset")
	}
	if res.resets() != 1 {
		t.Fatalf("repeated stale checks must not reset again, got %d", res.resets())
	}

	src.at = now
	if !w.Check() {
		t.Fatalf("frame arrived: link should be up")
	}
	if got := rep.all(); got[len(got)-1] != "restored" {
		t.Fatalf("unexpected reports: %v", got)
	}
}

func TestLinkWatchdog_FirstFrameAfterOutageStartsFresh(t *testing.T) {
	svc, _ := newTelemetryService(t, &fakeSnapshotRepo{}, &eventRecorder{})
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, "80,45.0,5.0,1,0,0.1"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	w := NewLinkWatchdog(svc, svc, svc, 10*time.Second, nil)
	last := svc.LastFrameAt()
	w.now = func() time.Time { return last.Add(time.Minute) }
	if w.Check() {
		t.Fatalf("a minute of silence should mark the link stale")
	}
	if hot := svc.Channels()["hot"]; hot.Last != nil {
		t.Fatalf("stale link should clear the session, hot=%+v", hot)
	}

	// 52 would cross 50 against the pre-outage 45; in a fresh session it is only a baseline
	res, err := svc.Ingest(ctx, "80,52.0,5.0,1,0,0.1")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n := countCategory(res.Events, models.CategoryTemperature); n != 0 {
		t.Fatalf("first frame after the outage must not fire: %+v", res.Events)
	}

	_, _ = svc.Ingest(ctx, "80,45.0,5.0,1,0,0.1")
	res, _ = svc.Ingest(ctx, "80,52.0,5.0,1,0,0.1")
	if n := countCategory(res.Events, models.CategoryTemperature); n != 1 {
		t.Fatalf("crossing inside the new session should fire once, got %+v", res.Events)
	}
}

func countCategory(evs []models.Event, c models.Category) int {
	n := 0
	for _, ev := range evs {
		if ev.Category == c {
			n++
		}
	}
	return n
}
