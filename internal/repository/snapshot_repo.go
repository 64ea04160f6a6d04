package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"container_telemetry/internal/models"
)

type SnapshotSQLite struct {
	db *sql.DB
}

func NewSnapshotSQLite(db *sql.DB) *SnapshotSQLite {
	return &SnapshotSQLite{db: db}
}

const (
	snapshotRowID = 1

	upsertSnapshotSQL = `
		INSERT INTO device_snapshot (id, battery, hot_c, cold_c, hot_fault, cold_fault, closed, functions, shake, stale, last_frame_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			battery=excluded.battery,
			hot_c=excluded.hot_c,
			cold_c=excluded.cold_c,
			hot_fault=excluded.hot_fault,
			cold_fault=excluded.cold_fault,
			closed=excluded.closed,
			functions=excluded.functions,
			shake=excluded.shake,
			stale=excluded.stale,
			last_frame_at=excluded.last_frame_at,
			updated_at=excluded.updated_at
	`

	selectSnapshotSQL = `
		SELECT id, battery, hot_c, cold_c, hot_fault, cold_fault, closed, functions, shake, stale, last_frame_at, updated_at
		FROM device_snapshot WHERE id=?
	`
)

// Save upserts the single snapshot row (id always 1). Nil fields are stored as NULL.
func (r *SnapshotSQLite) Save(ctx context.Context, s models.DeviceSnapshot) error {
	stale, err := json.Marshal(s.StaleFields)
	if err != nil {
		return fmt.Errorf("marshal stale fields: %w", err)
	}

	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	var lastFrame any
	if s.LastFrameAt != nil {
		lastFrame = s.LastFrameAt.UTC()
	}

	_, err = r.db.ExecContext(ctx, upsertSnapshotSQL,
		snapshotRowID,
		nullableInt(s.BatteryPercent),
		nullableFloat(s.HotTempC),
		nullableFloat(s.ColdTempC),
		s.HotSensorFault,
		s.ColdSensorFault,
		nullableBool(s.Closed),
		nullableInt(s.ActiveFunctionCount),
		nullableFloat(s.ShakeMagnitude),
		string(stale),
		lastFrame,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or a zero snapshot (ID 0) when none exists yet.
func (r *SnapshotSQLite) Load(ctx context.Context) (models.DeviceSnapshot, error) {
	var (
		s         models.DeviceSnapshot
		battery   sql.NullInt64
		hot, cold sql.NullFloat64
		closed    sql.NullBool
		functions sql.NullInt64
		shake     sql.NullFloat64
		stale     sql.NullString
		lastFrame sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, selectSnapshotSQL, snapshotRowID).Scan(
		&s.ID, &battery, &hot, &cold, &s.HotSensorFault, &s.ColdSensorFault,
		&closed, &functions, &shake, &stale, &lastFrame, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DeviceSnapshot{}, nil
		}
		return models.DeviceSnapshot{}, fmt.Errorf("select snapshot: %w", err)
	}

	if battery.Valid {
		s.BatteryPercent = models.IntPtr(int(battery.Int64))
	}
	if hot.Valid {
		s.HotTempC = models.FloatPtr(hot.Float64)
	}
	if cold.Valid {
		s.ColdTempC = models.FloatPtr(cold.Float64)
	}
	if closed.Valid {
		s.Closed = models.BoolPtr(closed.Bool)
	}
	if functions.Valid {
		s.ActiveFunctionCount = models.IntPtr(int(functions.Int64))
	}
	if shake.Valid {
		s.ShakeMagnitude = models.FloatPtr(shake.Float64)
	}
	if stale.Valid && stale.String != "" && stale.String != "null" {
		if err := json.Unmarshal([]byte(stale.String), &s.StaleFields); err != nil {
			return models.DeviceSnapshot{}, fmt.Errorf("decode stale fields: %w", err)
		}
	}
	if lastFrame.Valid {
		t := lastFrame.Time.UTC()
		s.LastFrameAt = &t
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
