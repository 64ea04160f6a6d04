package repository

import (
	"context"
	"database/sql"
	"time"

	"container_telemetry/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, u models.User) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// SnapshotRepo keeps the single last-known device snapshot.
type SnapshotRepo interface {
	Save(ctx context.Context, s models.DeviceSnapshot) error
	Load(ctx context.Context) (models.DeviceSnapshot, error)
}

// EventQuery filters the event log. Zero values mean "no constraint".
type EventQuery struct {
	From        time.Time
	To          time.Time
	Category    models.Category
	MinSeverity *models.Severity
	Limit       int
}

type EventRepo interface {
	Append(ctx context.Context, e models.Event) error
	List(ctx context.Context, q EventQuery) ([]models.Event, error)
}

type Repository struct {
	SnapshotRepo SnapshotRepo
	EventRepo    EventRepo
	Auth         Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		SnapshotRepo: NewSnapshotSQLite(db),
		EventRepo:    NewEventSQLite(db),
		Auth:         NewUserRepository(db),
	}
}
