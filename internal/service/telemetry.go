package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/observability/metrics"
	"container_telemetry/internal/repository"
	"container_telemetry/internal/telemetry"
)

var ErrEmptyLine = errors.New("empty telemetry line")

var monitoredChannels = []telemetry.Channel{
	telemetry.ChannelHot,
	telemetry.ChannelCold,
	telemetry.ChannelBattery,
	telemetry.ChannelShake,
}

const snapshotSaveTimeout = 2 * time.Second

// TelemetryService feeds frames into the session pipeline, records metrics
// and persists the carry-forward snapshot. Persistence happens on the
// PersistSnapshots goroutine; only the newest snapshot is written.
type TelemetryService struct {
	pipeline  *telemetry.Pipeline
	snapshots repository.SnapshotRepo
	log       *logger.Logger

	mu      sync.Mutex
	pending *models.DeviceSnapshot
	dirty   chan struct{}
}

func NewTelemetryService(p *telemetry.Pipeline, snapshots repository.SnapshotRepo, log *logger.Logger) *TelemetryService {
	return &TelemetryService{
		pipeline:  p,
		snapshots: snapshots,
		log:       logger.OrNop(log).Named("telemetry"),
		dirty:     make(chan struct{}, 1),
	}
}

// Ingest processes one frame. Only a blank line is rejected; every other
// problem is reported inside the result.
func (s *TelemetryService) Ingest(ctx context.Context, line string) (telemetry.IngestResult, error) {
	if strings.TrimSpace(line) == "" {
		return telemetry.IngestResult{}, ErrEmptyLine
	}
	if err := ctx.Err(); err != nil {
		return telemetry.IngestResult{}, err
	}

	start := time.Now()
	res := s.pipeline.Ingest(line)
	metrics.ObserveFrame(!res.Sample.AllInvalid(), time.Since(start), start)

	for _, d := range res.Diagnostics {
		metrics.IncDiagnostic(d.Kind.String())
	}
	for _, ev := range res.Events {
		metrics.IncEventEmitted(string(ev.Category))
	}
	metrics.AddEventsSuppressed(res.Suppressed)

	if s.snapshots != nil {
		s.markDirty(res.Display)
	}
	return res, nil
}

func (s *TelemetryService) markDirty(snap models.DeviceSnapshot) {
	snap.ID = 1
	s.mu.Lock()
	s.pending = &snap
	s.mu.Unlock()
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// PersistSnapshots writes the newest snapshot whenever frames arrived, until
// ctx is canceled; then it flushes once more. Frames that arrive while a write
// is in flight are coalesced into the next write.
func (s *TelemetryService) PersistSnapshots(ctx context.Context) {
	if s.snapshots == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-s.dirty:
			s.saveLatest(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), snapshotSaveTimeout)
			s.saveLatest(flushCtx)
			cancel()
			return
		}
	}
}

func (s *TelemetryService) saveLatest(ctx context.Context) {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	s.mu.Unlock()
	if snap == nil {
		return
	}

	wctx, cancel := context.WithTimeout(ctx, snapshotSaveTimeout)
	defer cancel()
	if err := s.snapshots.Save(wctx, *snap); err != nil {
		s.log.Warnw("snapshot_save_failed", "err", err)
	}
}

func (s *TelemetryService) ReportCondition(category models.Category, key, condition, message string, severity models.Severity) bool {
	ok := s.pipeline.ReportCondition(category, key, condition, message, severity)
	if ok {
		metrics.IncEventEmitted(string(category))
	} else {
		metrics.AddEventsSuppressed(1)
	}
	return ok
}

func (s *TelemetryService) Statistics() telemetry.Statistics {
	return s.pipeline.Statistics()
}

// Channels returns the hysteresis state of every monitored channel keyed by name.
func (s *TelemetryService) Channels() map[string]telemetry.ChannelState {
	out := make(map[string]telemetry.ChannelState, len(monitoredChannels))
	for _, ch := range monitoredChannels {
		out[ch.String()] = s.pipeline.ChannelState(ch)
	}
	return out
}

func (s *TelemetryService) LastFrameAt() time.Time {
	return s.pipeline.LastFrameAt()
}

// Reset starts a new monitoring session, e.g. after a reconnect.
func (s *TelemetryService) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.pipeline.Reset()
	s.log.Infow("telemetry_session_reset")
	return nil
}
