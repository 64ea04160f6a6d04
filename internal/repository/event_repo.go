package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"container_telemetry/internal/models"
)

type EventSQLite struct {
	db *sql.DB
}

func NewEventSQLite(db *sql.DB) *EventSQLite { return &EventSQLite{db: db} }

const (
	insertEventSQL = `
		INSERT INTO telemetry_events (id, occurred_at, category, severity, message, location, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	selectEventsSQL = `SELECT id, occurred_at, category, severity, message, location, meta FROM telemetry_events`

	sqliteTimestampLayout = "2006-01-02 15:04:05"
)

// Append inserts an event. Missing ids and timestamps are filled in.
func (r *EventSQLite) Append(ctx context.Context, e models.Event) error {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	var locPtr *string
	if e.Location != nil {
		if b, err := json.Marshal(e.Location); err == nil {
			s := string(b)
			locPtr = &s
		}
	}
	var metaPtr *string
	if e.Metadata != nil {
		if b, err := json.Marshal(e.Metadata); err == nil {
			s := string(b)
			metaPtr = &s
		}
	}

	_, err := r.db.ExecContext(ctx, insertEventSQL,
		e.EventID,
		e.OccurredAt.UTC().Format(sqliteTimestampLayout),
		strings.ToUpper(strings.TrimSpace(string(e.Category))),
		int(e.Severity),
		e.Message,
		locPtr,
		metaPtr,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	return nil
}

// List returns events matching q ordered by time ascending. With a limit,
// the most recent events are kept.
func (r *EventSQLite) List(ctx context.Context, q EventQuery) ([]models.Event, error) {
	var (
		conds []string
		args  []any
	)

	if !q.From.IsZero() {
		conds = append(conds, "occurred_at >= ?")
		args = append(args, q.From.UTC().Format(sqliteTimestampLayout))
	}
	if !q.To.IsZero() {
		conds = append(conds, "occurred_at <= ?")
		args = append(args, q.To.UTC().Format(sqliteTimestampLayout))
	}
	if c := strings.ToUpper(strings.TrimSpace(string(q.Category))); c != "" {
		conds = append(conds, "category = ?")
		args = append(args, c)
	}
	if q.MinSeverity != nil {
		conds = append(conds, "severity >= ?")
		args = append(args, int(*q.MinSeverity))
	}

	query := selectEventsSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if q.Limit > 0 {
		query = "SELECT * FROM (" + query + " ORDER BY occurred_at DESC LIMIT ?) ORDER BY occurred_at ASC"
		args = append(args, q.Limit)
	} else {
		query += " ORDER BY occurred_at ASC"
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := make([]models.Event, 0, 64)
	for rows.Next() {
		var (
			ev       models.Event
			category string
			severity int
			locStr   sql.NullString
			metaStr  sql.NullString
		)
		if err := rows.Scan(&ev.EventID, &ev.OccurredAt, &category, &severity, &ev.Message, &locStr, &metaStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.OccurredAt = ev.OccurredAt.UTC()
		ev.Category = models.Category(category)
		ev.Severity = models.Severity(severity)

		if locStr.Valid && locStr.String != "" {
			var loc models.Location
			if err := json.Unmarshal([]byte(locStr.String), &loc); err == nil {
				ev.Location = &loc
			}
		}
		if metaStr.Valid && metaStr.String != "" {
			var v any
			if err := json.Unmarshal([]byte(metaStr.String), &v); err == nil {
				ev.Metadata = v
			} else {
				ev.Metadata = metaStr.String // keep raw if malformed
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
