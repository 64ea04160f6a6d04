package repository

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"container_telemetry/internal/models"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func newEventRepo(t *testing.T) (*EventSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("mock expectations: %v", err)
		}
		_ = db.Close()
	})
	return NewEventSQLite(db), mock
}

var eventColumns = []string{"id", "occurred_at", "category", "severity", "message", "location", "meta"}

func TestAppend_Success_WithDefaults(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(),
			"TEMPERATURE", int(models.SeverityWarning), "hot",
			`{"latitude":41.3,"longitude":69.2,"label":"depot"}`,
			`{"a":1}`,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(ctx(t), models.Event{
		Category: " temperature ",
		Message:  "hot",
		Severity: models.SeverityWarning,
		Location: &models.Location{Latitude: 41.3, Longitude: 69.2, Label: "depot"},
		Metadata: map[string]any{"a": 1},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAppend_NilLocationAndMeta(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	at := time.Date(2025, 5, 2, 8, 30, 0, 0, time.FixedZone("UZT", 5*3600))
	mock.ExpectExec("INSERT INTO telemetry_events").
		WithArgs("ev-1", "2025-05-02 03:30:00", "CLOSURE", int(models.SeverityInfo), "Container opened", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(ctx(t), models.Event{
		EventID:    "ev-1",
		OccurredAt: at,
		Category:   models.CategoryClosure,
		Message:    "Container opened",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	mock.ExpectExec("INSERT INTO telemetry_events").WillReturnError(errors.New("down"))

	err := repo.Append(ctx(t), models.Event{Category: models.CategoryLink, Message: "x"})
	if err == nil || !strings.Contains(err.Error(), "down") {
		t.Fatalf("expected error, got %v", err)
	}
}

func TestList_NoFilters_DecodesColumns(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	meta, _ := json.Marshal(map[string]any{"channel": "hot"})
	rows := sqlmock.NewRows(eventColumns).
		AddRow("1", now, "TEMPERATURE", int64(2), "m1", `{"latitude":1,"longitude":2}`, string(meta)).
		AddRow("2", now.Add(time.Hour), "LINK", int64(3), "m2", nil, "not-json")

	mock.ExpectQuery(regexp.QuoteMeta(selectEventsSQL + " ORDER BY occurred_at ASC")).
		WillReturnRows(rows)

	got, err := repo.List(ctx(t), EventQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2, got %d", len(got))
	}
	if got[0].Category != models.CategoryTemperature || got[0].Severity != models.SeverityWarning {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[0].Location == nil || got[0].Location.Longitude != 2 {
		t.Fatalf("location not decoded: %+v", got[0].Location)
	}
	b, _ := json.Marshal(got[0].Metadata)
	if string(b) != string(meta) {
		t.Fatalf("metadata mismatch: %s vs %s", b, meta)
	}
	if got[1].Location != nil {
		t.Fatalf("expected nil location")
	}
	if got[1].Metadata != "not-json" {
		t.Fatalf("malformed meta should be kept raw, got %#v", got[1].Metadata)
	}
}

func TestList_AllFilters(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	sev := models.SeverityWarning

	want := selectEventsSQL +
		" WHERE occurred_at >= ? AND occurred_at <= ? AND category = ? AND severity >= ? ORDER BY occurred_at ASC"
	mock.ExpectQuery(regexp.QuoteMeta(want)).
		WithArgs("2025-01-01 00:00:00", "2025-01-02 00:00:00", "BATTERY", int(sev)).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	got, err := repo.List(ctx(t), EventQuery{From: from, To: to, Category: "battery", MinSeverity: &sev})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
}

func TestList_LimitKeepsMostRecent(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	want := "SELECT * FROM (" + selectEventsSQL + " ORDER BY occurred_at DESC LIMIT ?) ORDER BY occurred_at ASC"
	mock.ExpectQuery(regexp.QuoteMeta(want)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	if _, err := repo.List(ctx(t), EventQuery{Limit: 50}); err != nil {
		t.Fatalf("List: %v", err)
	}
}

func TestList_QueryError(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	mock.ExpectQuery("SELECT id, occurred_at").WillReturnError(errors.New("boom"))

	if _, err := repo.List(ctx(t), EventQuery{}); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestList_ScanError(t *testing.T) {
	t.Parallel()
	repo, mock := newEventRepo(t)

	rows := sqlmock.NewRows(eventColumns).
		AddRow("1", "not-a-time", "LINK", "x", "m", nil, nil)
	mock.ExpectQuery("SELECT id, occurred_at").WillReturnRows(rows)

	if _, err := repo.List(ctx(t), EventQuery{}); err == nil {
		t.Fatalf("expected scan error")
	}
}
