// Package session owns the simulation a server is currently showing. It is
// the only place that holds the mutable handle: resets discard the old
// simulation and swap in a new one under the lock.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"outbreak/internal/history"
	"outbreak/internal/sim"
	"outbreak/internal/wire"
)

// MaxSpeed caps how many ticks a single frame may advance.
const MaxSpeed = 8.0

// Config describes the first run of a session.
type Config struct {
	Width, Height float64
	Mode          sim.Mode
	Compliance    float64
	// Params overrides the engine constants when non-nil.
	Params *sim.Params
	// Seed makes every run reproducible when non-zero. Run n uses Seed+n.
	Seed            int64
	HistoryCapacity int
}

// Session advances one simulation at a time and remembers its history.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	current *sim.Simulation
	runID   uint64
	speed   float64
	carry   float64
	ended   bool
	history *history.Recorder
	logger  *slog.Logger
}

// New builds the session and its first simulation.
func New(cfg Config, logger *slog.Logger) (*Session, error) {
	s := &Session{
		cfg:     cfg,
		speed:   1,
		history: history.NewRecorder(cfg.HistoryCapacity),
		logger:  logger,
	}
	current, err := s.build(cfg.Mode, cfg.Compliance, 1)
	if err != nil {
		return nil, err
	}
	s.install(current, 1)
	return s, nil
}

func (s *Session) build(mode sim.Mode, compliance float64, runID uint64) (*sim.Simulation, error) {
	var opts []sim.Option
	if s.cfg.Params != nil {
		opts = append(opts, sim.WithParams(*s.cfg.Params))
	}
	if s.cfg.Seed != 0 {
		opts = append(opts, sim.WithSeed(s.cfg.Seed+int64(runID)))
	}
	current, err := sim.New(s.cfg.Width, s.cfg.Height, mode, compliance, opts...)
	if err != nil {
		return nil, fmt.Errorf("build simulation: %w", err)
	}
	return current, nil
}

func (s *Session) install(current *sim.Simulation, runID uint64) {
	s.current = current
	s.runID = runID
	s.carry = 0
	s.ended = false
	s.history.Reset()
	s.history.Record(current.Tick(), current.Counts())
	s.logger.Info("simulation started",
		"run", runID,
		"mode", current.Mode(),
		"compliance", current.Compliance(),
		"population", current.Population(),
		"compliant", current.CompliantTotal())
}

// Reset replaces the running simulation with a fresh one. When the new
// configuration is invalid the current run continues untouched.
func (s *Session) Reset(mode sim.Mode, compliance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.runID + 1
	current, err := s.build(mode, compliance, next)
	if err != nil {
		return err
	}
	s.install(current, next)
	return nil
}

// SetSpeed sets how many ticks each Step advances. Fractions accumulate
// across steps; zero pauses. Values are clamped to [0, MaxSpeed] and the
// applied value is returned.
func (s *Session) SetSpeed(speed float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !(speed > 0) {
		speed = 0
	} else if speed > MaxSpeed {
		speed = MaxSpeed
	}
	s.speed = speed
	return speed
}

func (s *Session) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// Step advances the simulation by the current speed and returns the frame to
// render.
func (s *Session) Step() wire.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carry += s.speed
	for s.carry >= 1 {
		s.carry--
		s.current.Advance()
		s.history.Record(s.current.Tick(), s.current.Counts())
	}

	if !s.ended && s.current.SickTotal() == 0 {
		s.ended = true
		s.logger.Info("outbreak over",
			"run", s.runID,
			"tick", s.current.Tick(),
			"healthy", s.current.HealthyTotal(),
			"recovered", s.current.RecoveredTotal())
	}
	return s.frameLocked()
}

// Frame returns the current state without advancing.
func (s *Session) Frame() wire.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameLocked()
}

func (s *Session) frameLocked() wire.Frame {
	return wire.Frame{
		RunID:      s.runID,
		Tick:       s.current.Tick(),
		Mode:       s.current.Mode().String(),
		Compliance: s.current.Compliance(),
		Agents:     s.current.Snapshot(),
		Counts:     s.current.Counts(),
		Speed:      s.speed,
	}
}

// History returns the recorder for the current run.
func (s *Session) History() *history.Recorder {
	return s.history
}

// Population returns the size of the current run.
func (s *Session) Population() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Population()
}

// Run steps the session every interval and hands each frame to report until
// ctx is cancelled.
func (s *Session) Run(ctx context.Context, interval time.Duration, report func(wire.Frame)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := s.Step()
			if report != nil {
				report(frame)
			}
			s.logger.Debug("simulation step",
				"run", frame.RunID,
				"tick", frame.Tick,
				"healthy", frame.Counts.Healthy,
				"sick", frame.Counts.Sick,
				"recovered", frame.Counts.Recovered)
		}
	}
}
