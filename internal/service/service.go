package service

import (
	"context"
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/models"
	"container_telemetry/internal/repository"
	"container_telemetry/internal/simulator"
	"container_telemetry/internal/telemetry"
)

// Authorization registers accounts and turns credentials into role-carrying tokens.
type Authorization interface {
	SignUp(ctx context.Context, username, password string) (models.Identity, error)
	GenerateToken(ctx context.Context, username, password string) (Token, error)
	ParseToken(accessToken string) (models.Identity, error)
}

// Telemetry is the line-source entry point shared by the simulator loop, the
// MQTT subscriber and the HTTP frame endpoint.
type Telemetry interface {
	Ingest(ctx context.Context, line string) (telemetry.IngestResult, error)
	ReportCondition(category models.Category, key, condition, message string, severity models.Severity) bool
	Statistics() telemetry.Statistics
	Channels() map[string]telemetry.ChannelState
	LastFrameAt() time.Time
	Reset(ctx context.Context) error
	PersistSnapshots(ctx context.Context)
}

// Monitoring exposes the last-known device values.
type Monitoring interface {
	GetSnapshot(ctx context.Context) (models.DeviceSnapshot, error)
}

// EventLog exposes the persisted event history with filtering.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.Event, error)
}

// Simulator drives the scenario generator. Stop Run via context cancellation.
type Simulator interface {
	Run(ctx context.Context, tick time.Duration)
	Step(ctx context.Context) (string, telemetry.IngestResult, error)
	SetScenario(name string) (simulator.State, error)
	HandleCommand(cmd string) (simulator.State, error)
	State() simulator.State
	Running() bool
}

// Service aggregates all sub-services for the HTTP layer.
type Service struct {
	Telemetry
	Monitoring
	EventLog
	Simulator
	Authorization
}

// Deps carries the runtime objects built in main next to the repositories.
type Deps struct {
	Pipeline  *telemetry.Pipeline
	Generator *simulator.Generator
	Auth      AuthConfig
	Log       *logger.Logger
}

func NewService(repos *repository.Repository, deps Deps) *Service {
	tel := NewTelemetryService(deps.Pipeline, repos.SnapshotRepo, deps.Log)
	return &Service{
		Telemetry:     tel,
		Monitoring:    NewMonitoringService(deps.Pipeline, repos.SnapshotRepo),
		EventLog:      NewEventLogService(repos.EventRepo),
		Simulator:     NewSimulatorService(deps.Generator, tel, deps.Log),
		Authorization: NewAuthService(repos.Auth, deps.Auth),
	}
}
