package service

import (
	"context"
	"time"

	"container_telemetry/internal/models"
	"container_telemetry/internal/repository"
)

// displaySource is satisfied by *telemetry.Pipeline.
type displaySource interface {
	Display() models.DeviceSnapshot
}

type MonitoringService struct {
	live      displaySource
	snapshots repository.SnapshotRepo
}

func NewMonitoringService(live displaySource, snapshots repository.SnapshotRepo) *MonitoringService {
	return &MonitoringService{live: live, snapshots: snapshots}
}

// GetSnapshot prefers the live session. Before the first frame of this
// process it falls back to the persisted snapshot, and to an empty baseline
// when nothing was ever stored.
func (s *MonitoringService) GetSnapshot(ctx context.Context) (models.DeviceSnapshot, error) {
	if s.live != nil {
		if d := s.live.Display(); d.LastFrameAt != nil {
			d.ID = 1
			return d, nil
		}
	}

	snap, err := s.snapshots.Load(ctx)
	if err != nil {
		return models.DeviceSnapshot{}, err
	}
	if snap.ID == 0 {
		return baselineSnapshot(), nil
	}
	snap.UpdatedAt = toUTC(snap.UpdatedAt)
	return snap, nil
}

// baselineSnapshot is returned for an uninitialized DB: every value unknown.
func baselineSnapshot() models.DeviceSnapshot {
	return models.DeviceSnapshot{
		ID:        1, // single-row table, id=1
		UpdatedAt: time.Now().UTC(),
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
