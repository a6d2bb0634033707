// Package poller runs a single repeating capture task on a fixed interval.
//
// At most one poller task is active at a time: starting a second one with a
// different configuration is rejected rather than silently running two
// timers. Tick failures are recorded through the coordinator's normal error
// path and never stop the loop; only Stop does.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ybartosh/contextshot/internal/capture"
	"github.com/ybartosh/contextshot/internal/status"
)

// ErrAlreadyRunning is returned by Start when a poller with a different
// configuration is active. The caller must Stop first.
var ErrAlreadyRunning = errors.New("poller already running with a different configuration")

// Config describes one poller instance. Comparable: two Configs are the
// same instance configuration iff they are ==.
type Config struct {
	Target   capture.Target
	Interval time.Duration
}

// Phase is the poller lifecycle state.
type Phase string

const (
	Idle     Phase = "idle"
	Running  Phase = "running"
	Stopping Phase = "stopping"
)

// State is a point-in-time view of the scheduler.
type State struct {
	Phase  Phase
	Config Config
}

// CaptureLogger routes a tick's capture through the write coordinator.
type CaptureLogger interface {
	LogCapture(ctx context.Context, target capture.Target, contextText string, fn capture.Func) (int, error)
}

// Scheduler manages the lifecycle of the background polling task.
type Scheduler struct {
	mu     sync.Mutex
	phase  Phase
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	coord    CaptureLogger
	reporter *status.Reporter
	logger   *slog.Logger

	// captureFor is swapped in tests to avoid real screenshots.
	captureFor func(capture.Target) capture.Func
}

// NewScheduler creates an idle Scheduler publishing lifecycle changes to
// reporter.
func NewScheduler(coord CaptureLogger, reporter *status.Reporter) *Scheduler {
	return &Scheduler{
		phase:      Idle,
		coord:      coord,
		reporter:   reporter,
		logger:     slog.Default(),
		captureFor: capture.ForTarget,
	}
}

// Start launches the polling task for cfg. Starting with the identical
// configuration while already running is a no-op success; a different
// configuration is rejected with ErrAlreadyRunning until Stop is called.
// The first tick fires immediately, then every cfg.Interval.
func (s *Scheduler) Start(cfg Config) error {
	if cfg.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", cfg.Interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case Running:
		if cfg == s.cfg {
			return nil
		}
		return ErrAlreadyRunning
	case Stopping:
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.phase = Running
	s.cfg = cfg
	s.cancel = cancel
	s.done = make(chan struct{})

	s.reporter.Update(func(snap *status.Snapshot) {
		snap.PollerRunning = true
		snap.PollerTarget = cfg.Target.String()
		snap.PollerInterval = cfg.Interval.String()
	})
	s.logger.Info("poller started", "target", cfg.Target.String(), "interval", cfg.Interval)

	go s.run(ctx, cfg, s.done)
	return nil
}

// Stop requests cancellation and blocks until the in-flight tick (if any)
// has completed. Stopping an idle scheduler is a no-op. No new tick starts
// after a stop request is observed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.phase == Idle {
		s.mu.Unlock()
		return
	}
	if s.phase == Running {
		s.phase = Stopping
		s.cancel()
	}
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Stopping {
		s.phase = Idle
		s.cfg = Config{}
		s.reporter.Update(func(snap *status.Snapshot) {
			snap.PollerRunning = false
			snap.PollerTarget = ""
			snap.PollerInterval = ""
		})
		s.logger.Info("poller stopped")
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{Phase: s.phase, Config: s.cfg}
}

// run fires ticks at a fixed rate measured start-to-start. If a tick
// overruns the interval the next one fires immediately after it completes;
// missed ticks are never replayed.
func (s *Scheduler) run(ctx context.Context, cfg Config, done chan struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		tickStart := time.Now()
		s.tick(ctx, cfg)

		wait := time.Until(tickStart.Add(cfg.Interval))
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// tick performs one capture-and-log cycle. Cancellation is cooperative: the
// capture runs on a context detached from the stop signal so an in-flight
// capture finishes even while Stop is waiting.
func (s *Scheduler) tick(ctx context.Context, cfg Config) {
	contextText := "Polled: " + cfg.Target.String()
	fn := s.captureFor(cfg.Target)

	if _, err := s.coord.LogCapture(context.WithoutCancel(ctx), cfg.Target, contextText, fn); err != nil {
		s.logger.Warn("poll tick failed", "target", cfg.Target.String(), "error", err)
	}
}
