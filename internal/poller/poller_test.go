package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ybartosh/contextshot/internal/capture"
	"github.com/ybartosh/contextshot/internal/status"
)

// recordingLogger stands in for the coordinator and records every tick.
type recordingLogger struct {
	mu       sync.Mutex
	calls    []string
	captures int
	err      error
	block    time.Duration
}

func (r *recordingLogger) LogCapture(ctx context.Context, target capture.Target, contextText string, fn capture.Func) (int, error) {
	if r.block > 0 {
		time.Sleep(r.block)
	}
	if _, err := fn(ctx); err != nil {
		r.record(contextText)
		return 0, err
	}
	if r.err != nil {
		r.record(contextText)
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, contextText)
	r.captures++
	return r.captures, nil
}

func (r *recordingLogger) record(contextText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, contextText)
}

func (r *recordingLogger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestScheduler(log *recordingLogger, captureErr error) (*Scheduler, *status.Reporter) {
	rep := status.NewReporter()
	s := NewScheduler(log, rep)
	s.captureFor = func(capture.Target) capture.Func {
		return func(ctx context.Context) (capture.Image, error) {
			if captureErr != nil {
				return capture.Image{}, captureErr
			}
			return capture.Image{PNG: []byte{1}, Width: 1, Height: 1}, nil
		}
	}
	return s, rep
}

func webConfig(t *testing.T, interval time.Duration) Config {
	t.Helper()
	tgt, err := capture.Website("https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	return Config{Target: tgt, Interval: interval}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartStopLifecycle(t *testing.T) {
	log := &recordingLogger{}
	s, rep := newTestScheduler(log, nil)

	if got := s.State().Phase; got != Idle {
		t.Fatalf("initial phase = %v", got)
	}

	cfg := webConfig(t, 10*time.Millisecond)
	if err := s.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State().Phase; got != Running {
		t.Errorf("phase after Start = %v", got)
	}
	if snap := rep.Snapshot(); !snap.PollerRunning || snap.PollerTarget != "https://example.com" {
		t.Errorf("snapshot after Start = %+v", snap)
	}

	waitFor(t, time.Second, func() bool { return log.count() >= 2 })

	s.Stop()
	if got := s.State().Phase; got != Idle {
		t.Errorf("phase after Stop = %v", got)
	}
	if snap := rep.Snapshot(); snap.PollerRunning {
		t.Error("snapshot still reports running after Stop")
	}

	// No new ticks after stop completes.
	n := log.count()
	time.Sleep(50 * time.Millisecond)
	if got := log.count(); got != n {
		t.Errorf("ticks after Stop: %d -> %d", n, got)
	}
}

func TestTickContextText(t *testing.T) {
	log := &recordingLogger{}
	s, _ := newTestScheduler(log, nil)

	if err := s.Start(webConfig(t, 50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return log.count() >= 1 })
	s.Stop()

	log.mu.Lock()
	defer log.mu.Unlock()
	if !strings.HasPrefix(log.calls[0], "Polled: https://example.com") {
		t.Errorf("tick context = %q", log.calls[0])
	}
}

func TestStartSameConfigIsNoOp(t *testing.T) {
	log := &recordingLogger{}
	s, _ := newTestScheduler(log, nil)
	cfg := webConfig(t, time.Hour)

	if err := s.Start(cfg); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.Start(cfg); err != nil {
		t.Errorf("Start with identical config: %v, want nil", err)
	}
	if got := s.State().Phase; got != Running {
		t.Errorf("phase = %v", got)
	}
}

func TestStartDifferentConfigRejected(t *testing.T) {
	log := &recordingLogger{}
	s, _ := newTestScheduler(log, nil)

	if err := s.Start(webConfig(t, time.Hour)); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	other := Config{Target: capture.Desktop(), Interval: time.Hour}
	if err := s.Start(other); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start with different config err = %v, want ErrAlreadyRunning", err)
	}

	// After Stop the new config is accepted.
	s.Stop()
	if err := s.Start(other); err != nil {
		t.Errorf("Start after Stop: %v", err)
	}
	s.Stop()
}

func TestStopIdempotentWhenIdle(t *testing.T) {
	log := &recordingLogger{}
	s, _ := newTestScheduler(log, nil)

	s.Stop()
	s.Stop()
	if got := s.State().Phase; got != Idle {
		t.Errorf("phase = %v", got)
	}
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	log := &recordingLogger{}
	s, _ := newTestScheduler(log, nil)
	if err := s.Start(Config{Target: capture.Desktop()}); err == nil {
		t.Error("Start with zero interval succeeded")
	}
}

// TestFailingCaptureKeepsPolling drives the poller against a target whose
// capture always fails: ticks must keep coming and Stop must still work.
func TestFailingCaptureKeepsPolling(t *testing.T) {
	log := &recordingLogger{}
	s, _ := newTestScheduler(log, errors.New("render crashed"))

	if err := s.Start(webConfig(t, 10*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool { return log.count() >= 2 })

	s.Stop()
	if got := s.State().Phase; got != Idle {
		t.Errorf("phase after Stop = %v", got)
	}
	if log.captures != 0 {
		t.Errorf("successful captures = %d, want 0", log.captures)
	}
}

// TestStopWaitsForInFlightTick starts a tick that blocks, then checks Stop
// does not return until it completes.
func TestStopWaitsForInFlightTick(t *testing.T) {
	log := &recordingLogger{block: 80 * time.Millisecond}
	s, _ := newTestScheduler(log, nil)

	if err := s.Start(webConfig(t, 5*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return log.count() >= 1 })

	stopReturned := make(chan struct{})
	go func() {
		s.Stop()
		close(stopReturned)
	}()

	select {
	case <-stopReturned:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if got := s.State().Phase; got != Idle {
		t.Errorf("phase = %v", got)
	}
}

// TestOverrunningTickFiresNextImmediately uses a tick longer than the
// interval and verifies the loop does not accumulate a backlog: tick count
// tracks elapsed/tickDuration, not elapsed/interval.
func TestOverrunningTickFiresNextImmediately(t *testing.T) {
	log := &recordingLogger{block: 30 * time.Millisecond}
	s, _ := newTestScheduler(log, nil)

	if err := s.Start(webConfig(t, 5*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	// ~3 ticks of 30ms fit in 100ms; a catch-up burst would show far more.
	if got := log.count(); got > 6 {
		t.Errorf("tick count = %d, backlog suspected", got)
	}
	if got := log.count(); got < 2 {
		t.Errorf("tick count = %d, want at least 2", got)
	}
}
