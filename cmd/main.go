package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"container_telemetry/internal/config"
	"container_telemetry/internal/handlers"
	"container_telemetry/internal/logger"
	"container_telemetry/internal/observability/metrics"
	"container_telemetry/internal/repository"
	"container_telemetry/internal/repository/db"
	"container_telemetry/internal/server"
	"container_telemetry/internal/service"
	"container_telemetry/internal/simulator"
	"container_telemetry/internal/telemetry"
	"container_telemetry/internal/transport/mqtt"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default configs/config.yml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	metrics.Init(nil)

	// open DB
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer closeDB(sqlDB, log)

	profiles, err := loadProfiles(cfg.Thresholds.File)
	if err != nil {
		log.Fatalw("failed to load threshold profiles", "err", err, "file", cfg.Thresholds.File)
	}

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	loc := service.NewStaticLocation(cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.Label)
	store := service.NewAsyncSink(repos.EventRepo, loc, cfg.Sink.Buffer, log)

	sinks := []telemetry.Sink{store}
	var (
		client    *mqtt.Client
		publisher *mqtt.EventPublisher
	)
	if cfg.MQTT.Enabled {
		client = mqtt.NewClient(mqtt.ClientConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, log)
		if cfg.MQTT.EventTopic != "" {
			publisher = mqtt.NewEventPublisher(client, cfg.MQTT.EventTopic, cfg.MQTT.QoS, cfg.Sink.Buffer, log)
			sinks = append(sinks, publisher)
		}
	}

	pipeline := telemetry.NewPipeline(cfg.PipelineConfig(profiles), service.NewMultiSink(log, sinks...), nil, log)

	genCfg, err := cfg.GeneratorConfig()
	if err != nil {
		log.Fatalw("invalid simulator config", "err", err)
	}
	gen := simulator.NewGenerator(genCfg, log)

	services := service.NewService(repos, service.Deps{
		Pipeline:  pipeline,
		Generator: gen,
		Auth:      cfg.AuthConfig(),
		Log:       log,
	})
	store.SetReporter(services.Telemetry)
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		store.Run(ctx)
	}()
	snapshotDone := make(chan struct{})
	go func() {
		defer close(snapshotDone)
		services.Telemetry.PersistSnapshots(ctx)
	}()
	if publisher != nil {
		go publisher.Run(ctx)
	}

	if _, err := services.Simulator.SetScenario(cfg.Simulator.Scenario); err != nil {
		log.Fatalw("invalid simulator scenario", "err", err)
	}
	if cfg.Simulator.Enabled {
		go services.Simulator.Run(ctx, cfg.Simulator.Tick)
	}

	watchdog := service.NewLinkWatchdog(services.Telemetry, services.Telemetry, services.Telemetry, cfg.Watchdog.StaleAfter, log)
	go watchdog.Run(ctx, cfg.Watchdog.Tick)

	if client != nil {
		src := mqtt.NewLineSource(mqtt.SourceConfig{Topic: cfg.MQTT.FrameTopic, QoS: cfg.MQTT.QoS}, services.Telemetry, services.Telemetry, services.Telemetry, log)
		if err := client.Connect(src); err != nil {
			log.Fatalw("failed to connect to mqtt broker", "err", err, "broker", cfg.MQTT.Broker)
		}
		defer client.Close()
	}

	apiHandler := handlers.NewHandler(services, log)
	apiHandler.SetStreamInterval(cfg.WS.Interval)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)

	deadline := time.After(shutdownTimeout)
	for name, done := range map[string]<-chan struct{}{"event sink": sinkDone, "snapshot writer": snapshotDone} {
		select {
		case <-done:
		case <-deadline:
			log.Warnw("background writer did not drain before timeout", "writer", name)
		}
	}
}

// loadProfiles overlays the optional YAML file on the built-in tables.
func loadProfiles(path string) (telemetry.Profiles, error) {
	if path == "" {
		return telemetry.DefaultProfiles(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return telemetry.LoadProfiles(f, telemetry.DefaultProfiles())
}

func closeDB(sqlDB *sql.DB, log *logger.Logger) {
	if err := sqlDB.Close(); err != nil {
		log.Errorw("failed to close sqlite", "err", err)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		log.Infow("http_listening", "port", port)
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}

	// stop background goroutines; the sink flushes what is queued
	cancel()
}
