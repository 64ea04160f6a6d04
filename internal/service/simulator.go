package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"container_telemetry/internal/logger"
	"container_telemetry/internal/simulator"
	"container_telemetry/internal/telemetry"
)

// ingester is the part of Telemetry the simulator feeds.
type ingester interface {
	Ingest(ctx context.Context, line string) (telemetry.IngestResult, error)
}

// SimulatorService pushes generator frames through the same ingestion path
// as a real device.
type SimulatorService struct {
	gen     *simulator.Generator
	ingest  ingester
	running atomic.Bool
	log     *logger.Logger
}

func NewSimulatorService(gen *simulator.Generator, ingest ingester, log *logger.Logger) *SimulatorService {
	return &SimulatorService{
		gen:    gen,
		ingest: ingest,
		log:    logger.OrNop(log).Named("simulator"),
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) {
	s.running.Store(true)
	defer s.running.Store(false)

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, _, err := s.Step(ctx); err != nil {
				s.log.Warnw("simulator_step_failed", "err", err)
			}
		}
	}
}

// Running reports whether Run is feeding the pipeline. While it is, the
// simulator owns the session and manual frames would interleave with it.
func (s *SimulatorService) Running() bool {
	return s.running.Load()
}

// Step advances the generator once and ingests the produced frame.
func (s *SimulatorService) Step(ctx context.Context) (string, telemetry.IngestResult, error) {
	_, frame := s.gen.Step()
	res, err := s.ingest.Ingest(ctx, frame)
	if err != nil {
		return frame, telemetry.IngestResult{}, fmt.Errorf("ingest frame %q: %w", frame, err)
	}
	return frame, res, nil
}

func (s *SimulatorService) SetScenario(name string) (simulator.State, error) {
	sc, err := simulator.ParseScenario(name)
	if err != nil {
		return simulator.State{}, err
	}
	if err := s.gen.SetScenario(sc); err != nil {
		return simulator.State{}, err
	}
	return s.gen.State(), nil
}

// HandleCommand accepts exactly one command character (H/h, C/c, L/l).
func (s *SimulatorService) HandleCommand(cmd string) (simulator.State, error) {
	if utf8.RuneCountInString(cmd) != 1 {
		return simulator.State{}, fmt.Errorf("%w: %q", simulator.ErrUnknownCommand, cmd)
	}
	r, _ := utf8.DecodeRuneInString(cmd)
	if err := s.gen.HandleCommand(r); err != nil {
		return simulator.State{}, err
	}
	return s.gen.State(), nil
}

func (s *SimulatorService) State() simulator.State {
	return s.gen.State()
}
