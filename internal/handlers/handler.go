package handlers

import (
	"time"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger

	// default push period for /ws when the client does not ask for one
	streamInterval time.Duration
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log, streamInterval: defaultInterval}
}

// SetStreamInterval overrides the default /ws push period. Values outside
// (0, 10s] are ignored.
func (h *Handler) SetStreamInterval(d time.Duration) {
	if d > 0 && d <= maxInterval {
		h.streamInterval = d
	}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health and Prometheus scrape endpoints
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Live state stream (HTTP upgrade) on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.identityMiddleware)
	{
		api.GET("/me", h.whoAmI)
		h.registerTelemetryRoutes(api)
		h.registerSimulatorRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerTelemetryRoutes(api *gin.RouterGroup) {
	tel := api.Group("/telemetry")
	{
		// Body: one frame per line (text/plain) or {"lines":["85,25.50,15.20,1,2,0.15"]}
		tel.POST("/frames", h.requireOperator, h.postFrames)
		tel.GET("/state", h.getTelemetryState)
		tel.GET("/stats", h.getTelemetryStats)
		tel.POST("/reset", h.requireOperator, h.resetTelemetry)
	}
}

func (h *Handler) registerSimulatorRoutes(api *gin.RouterGroup) {
	sim := api.Group("/simulator")
	{
		sim.GET("/state", h.getSimulatorState)
		// Body example: {"scenario":"heating_cycle"}
		sim.POST("/scenario", h.requireOperator, h.setScenario)
		// Body example: {"command":"H"}
		sim.POST("/command", h.requireOperator, h.sendCommand)
		sim.POST("/step", h.requireOperator, h.stepSimulator)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
