package handlers

import (
	"context"
	"net/http"
	"time"

	"container_telemetry/internal/models"
	"container_telemetry/internal/service"
	"container_telemetry/internal/simulator"
	"container_telemetry/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

// mockAuth resolves viewerToken to a viewer and every other token to an operator.
type mockAuth struct {
	signUpErr error
	tokenErr  error
	parseErr  error

	lastSignUpUsername string
	lastGenUsername    string
	lastParseToken     string
}

const (
	operatorToken = "operator-token"
	viewerToken   = "viewer-token"
)

func (m *mockAuth) SignUp(_ context.Context, username, _ string) (models.Identity, error) {
	m.lastSignUpUsername = username
	if m.signUpErr != nil {
		return models.Identity{}, m.signUpErr
	}
	return models.Identity{UserID: 42, Username: username, Role: models.RoleViewer}, nil
}
func (m *mockAuth) GenerateToken(_ context.Context, username, _ string) (service.Token, error) {
	m.lastGenUsername = username
	if m.tokenErr != nil {
		return service.Token{}, m.tokenErr
	}
	return service.Token{AccessToken: viewerToken, Role: models.RoleViewer, ExpiresAt: time.Unix(1700000000, 0).UTC()}, nil
}
func (m *mockAuth) ParseToken(token string) (models.Identity, error) {
	m.lastParseToken = token
	if m.parseErr != nil {
		return models.Identity{}, m.parseErr
	}
	if token == viewerToken {
		return models.Identity{UserID: 7, Username: "driver-7", Role: models.RoleViewer}, nil
	}
	return models.Identity{UserID: 1, Username: "dispatch", Role: models.RoleOperator}, nil
}

type mockTelemetry struct {
	ingestErr  error
	resetErr   error
	lines      []string
	resetCalls int
	stats      telemetry.Statistics
	channels   map[string]telemetry.ChannelState
	lastFrame  time.Time
}

func (m *mockTelemetry) Ingest(_ context.Context, line string) (telemetry.IngestResult, error) {
	m.lines = append(m.lines, line)
	if m.ingestErr != nil {
		return telemetry.IngestResult{}, m.ingestErr
	}
	return telemetry.IngestResult{Stats: telemetry.Statistics{TotalProcessed: len(m.lines)}}, nil
}
func (m *mockTelemetry) ReportCondition(models.Category, string, string, string, models.Severity) bool {
	return true
}
func (m *mockTelemetry) Statistics() telemetry.Statistics              { return m.stats }
func (m *mockTelemetry) Channels() map[string]telemetry.ChannelState { return m.channels }
func (m *mockTelemetry) LastFrameAt() time.Time                       { return m.lastFrame }
func (m *mockTelemetry) Reset(context.Context) error {
	m.resetCalls++
	return m.resetErr
}
func (m *mockTelemetry) PersistSnapshots(context.Context) {}

type mockMonitoring struct {
	snap models.DeviceSnapshot
	err  error
}

func (m *mockMonitoring) GetSnapshot(ctx context.Context) (models.DeviceSnapshot, error) {
	return m.snap, m.err
}

type mockEventLog struct {
	resp       []models.Event
	err        error
	lastFilter service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.Event, error) {
	m.lastFilter = f
	return m.resp, m.err
}

type mockSimulator struct {
	state       simulator.State
	scenarioErr error
	commandErr  error
	lastName    string
	lastCommand string
	steps       int
	running     bool
}

func (m *mockSimulator) Run(context.Context, time.Duration) {}
func (m *mockSimulator) Step(context.Context) (string, telemetry.IngestResult, error) {
	m.steps++
	return "95,22.00,8.00,1,0,0.10", telemetry.IngestResult{}, nil
}
func (m *mockSimulator) SetScenario(name string) (simulator.State, error) {
	m.lastName = name
	return m.state, m.scenarioErr
}
func (m *mockSimulator) HandleCommand(cmd string) (simulator.State, error) {
	m.lastCommand = cmd
	return m.state, m.commandErr
}
func (m *mockSimulator) State() simulator.State { return m.state }
func (m *mockSimulator) Running() bool          { return m.running }

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

// withAuth signs the request as an operator.
func withAuth(req *http.Request) *http.Request {
	return withToken(req, operatorToken)
}

func withViewer(req *http.Request) *http.Request {
	return withToken(req, viewerToken)
}

func withToken(req *http.Request, token string) *http.Request {
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
