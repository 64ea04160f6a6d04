package service

import "time"

// LogFilter is the query accepted by EventLog.List. Zero values mean "no filter".
type LogFilter struct {
	From     time.Time
	To       time.Time
	Category string
	Severity string // minimum severity, e.g. "WARNING"
	Limit    int
}
