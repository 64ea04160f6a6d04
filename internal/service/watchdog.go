package service

import (
	"context"
	"fmt"
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/observability/metrics"
)

const (
	linkFramesKey = "link:frames"
	linkName      = "frames"
)

// lastFrameSource is satisfied by Telemetry.
type lastFrameSource interface {
	LastFrameAt() time.Time
}

// SessionResetter is satisfied by Telemetry.
type SessionResetter interface {
	Reset(ctx context.Context) error
}

// LinkWatchdog raises a LINK condition when no frame arrived for StaleAfter,
// and a restore event when frames come back. Going stale ends the monitoring
// session, so the first frame after the outage is judged against a fresh
// baseline.
type LinkWatchdog struct {
	source     lastFrameSource
	reporter   ConditionReporter
	resetter   SessionResetter
	staleAfter time.Duration
	now        func() time.Time
	started    time.Time
	since      time.Time // last frame seen, survives the session reset
	stale      bool
	log        *logger.Logger
}

// NewLinkWatchdog accepts a nil resetter, in which case the session survives outages.
func NewLinkWatchdog(source lastFrameSource, reporter ConditionReporter, resetter SessionResetter, staleAfter time.Duration, log *logger.Logger) *LinkWatchdog {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	return &LinkWatchdog{
		source:     source,
		reporter:   reporter,
		resetter:   resetter,
		staleAfter: staleAfter,
		now:        time.Now,
		started:    time.Now(),
		log:        logger.OrNop(log).Named("watchdog"),
	}
}

// Run checks the link every tick until ctx is canceled.
func (w *LinkWatchdog) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Check()
		}
	}
}

// Check evaluates the link once and reports whether it is considered up.
func (w *LinkWatchdog) Check() bool {
	now := w.now()
	ref := w.source.LastFrameAt()
	switch {
	case !ref.IsZero():
		w.since = ref
	case !w.since.IsZero():
		ref = w.since
	default:
		ref = w.started
	}
	silent := now.Sub(ref)

	if silent > w.staleAfter {
		if !w.stale {
			w.log.Warnw("link_stale", "silent_for", silent.Round(time.Second))
			w.endSession()
		}
		w.stale = true
		metrics.SetLinkUp(linkName, false)
		w.reporter.ReportCondition(models.CategoryLink, linkFramesKey, "unavailable",
			fmt.Sprintf("No telemetry received for %s", silent.Round(time.Second)), models.SeverityWarning)
		return false
	}

	metrics.SetLinkUp(linkName, true)
	if w.stale {
		w.stale = false
		w.log.Infow("link_restored")
		w.reporter.ReportCondition(models.CategoryLink, linkFramesKey, "restored",
			"Telemetry link restored", models.SeveritySuccess)
	}
	return true
}

func (w *LinkWatchdog) endSession() {
	if w.resetter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.resetter.Reset(ctx); err != nil {
		w.log.Errorw("session_reset_failed", "err", err)
	}
}
