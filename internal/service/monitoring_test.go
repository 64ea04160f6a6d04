package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"container_telemetry/internal/models"
)

type stubDisplay struct {
	snap models.DeviceSnapshot
}

func (s stubDisplay) Display() models.DeviceSnapshot { return s.snap }

func TestMonitoringService_GetSnapshot_PrefersLive(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	live := stubDisplay{snap: models.DeviceSnapshot{BatteryPercent: models.IntPtr(70), LastFrameAt: &at}}
	repo := &fakeSnapshotRepo{stored: models.DeviceSnapshot{ID: 1, BatteryPercent: models.IntPtr(10)}}
	svc := NewMonitoringService(live, repo)

	got, err := svc.GetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 || got.BatteryPercent == nil || *got.BatteryPercent != 70 {
		t.Fatalf("expected live snapshot, got %+v", got)
	}
}

func TestMonitoringService_GetSnapshot_FallsBackToRepo(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	stored := models.DeviceSnapshot{
		ID:             1,
		BatteryPercent: models.IntPtr(33),
		UpdatedAt:      time.Date(2025, 1, 1, 10, 0, 0, 0, loc),
	}
	svc := NewMonitoringService(stubDisplay{}, &fakeSnapshotRepo{stored: stored})

	got, err := svc.GetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BatteryPercent == nil || *got.BatteryPercent != 33 {
		t.Fatalf("expected stored snapshot, got %+v", got)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("UpdatedAt should be UTC, got %v", got.UpdatedAt.Location())
	}
}

func TestMonitoringService_GetSnapshot_Baseline(t *testing.T) {
	svc := NewMonitoringService(nil, &fakeSnapshotRepo{})

	got, err := svc.GetSnapshot(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != 1 || got.BatteryPercent != nil || got.HotTempC != nil {
		t.Fatalf("expected empty baseline, got %+v", got)
	}
	if got.UpdatedAt.IsZero() || got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("baseline UpdatedAt should be set in UTC, got %v", got.UpdatedAt)
	}
}

func TestMonitoringService_GetSnapshot_RepoError(t *testing.T) {
	svc := NewMonitoringService(stubDisplay{}, &fakeSnapshotRepo{loadErr: errors.New("locked")})

	if _, err := svc.GetSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
