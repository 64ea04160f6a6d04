package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks how urgently an operator should look at an event.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityCritical
)

var severityNames = [...]string{"INFO", "SUCCESS", "WARNING", "CRITICAL"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// ParseSeverity accepts the names produced by String, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range severityNames {
		if name == want {
			return Severity(i), nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Category groups events; the rate-limit policy for an event is looked up by category.
type Category string

const (
	CategoryTemperature Category = "TEMPERATURE"
	CategoryBattery     Category = "BATTERY"
	CategoryClosure     Category = "CLOSURE"
	CategoryFunctions   Category = "FUNCTIONS"
	CategoryShake       Category = "SHAKE"
	CategorySensor      Category = "SENSOR"
	CategoryAnomaly     Category = "ANOMALY"
	CategoryLink        Category = "LINK"
	CategoryDiagnostic  Category = "DIAGNOSTIC"
	CategorySystem      Category = "SYSTEM"
)

// Location is attached by the sink boundary, never by the ingestion core.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// Event is a single human-readable log entry.
type Event struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Category   Category  `json:"category"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Location   *Location `json:"location,omitempty"`
	Metadata   any       `json:"metadata,omitempty"`
}
