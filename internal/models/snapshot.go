package models

import "time"

// DeviceSnapshot is the carry-forward view of the container: the last good
// value of every field, kept for display even while fresh frames are bad.
type DeviceSnapshot struct {
	ID                  int        `json:"id"`
	BatteryPercent      *int       `json:"battery_percent,omitempty"`
	HotTempC            *float64   `json:"hot_temp_c,omitempty"`
	ColdTempC           *float64   `json:"cold_temp_c,omitempty"`
	HotSensorFault      bool       `json:"hot_sensor_fault"`
	ColdSensorFault     bool       `json:"cold_sensor_fault"`
	Closed              *bool      `json:"closed,omitempty"`
	ActiveFunctionCount *int       `json:"active_function_count,omitempty"`
	ShakeMagnitude      *float64   `json:"shake_magnitude,omitempty"`
	StaleFields         []string   `json:"stale_fields,omitempty"`
	LastFrameAt         *time.Time `json:"last_frame_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
