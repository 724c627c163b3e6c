package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"relaycast/internal/media"
)

// ErrMaxRestarts is wrapped into the terminal failure recorded after the
// restart budget is exhausted. The stream stays down until an explicit new
// start request.
var ErrMaxRestarts = errors.New("restart budget exhausted")

// exit classification for one encoder run.
type exitClass int

const (
	exitClean exitClass = iota
	exitStalled
	exitAbnormal
	exitCanceled
)

func (c exitClass) String() string {
	switch c {
	case exitClean:
		return "clean"
	case exitStalled:
		return "stalled"
	case exitCanceled:
		return "canceled"
	default:
		return "abnormal"
	}
}

// Metrics receives supervisor lifecycle events. The observability package
// provides the Prometheus-backed implementation; nopMetrics is the default.
type Metrics interface {
	StreamStarted()
	StreamStopped()
	ProcessExit(class string)
	RestartScheduled()
}

type nopMetrics struct{}

func (nopMetrics) StreamStarted()     {}
func (nopMetrics) StreamStopped()     {}
func (nopMetrics) ProcessExit(string) {}
func (nopMetrics) RestartScheduled()  {}

// Plan is one fully built encoder invocation, produced by the resolver,
// playlist builder, and command builder before the supervisor runs it.
type Plan struct {
	Args []string
	// Media describes the current input for status snapshots: a file path,
	// URL, or playlist description.
	Media string
	// LoopForever restarts immediately on clean EOF instead of ending the
	// run, and disables the restart budget.
	LoopForever bool
	// Generation is the playlist manifest generation feeding this plan,
	// zero when the input is not a manifest.
	Generation uint64
	// Destinations is the eligible output count, for status reporting.
	Destinations int
}

// Config tunes the supervisor.
type Config struct {
	Binary         string
	StallTimeout   time.Duration
	GracePeriod    time.Duration
	MaxRestarts    uint
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	BackoffFactor  float64
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = "ffmpeg"
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 30 * time.Second
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 10
	}
	return c
}

// Supervisor owns the run loop for the single active stream: it launches the
// encoder, pumps its output into the log ring while feeding the stall
// watchdog, classifies every exit, and applies the restart policy. Exactly
// one stream may be active; concurrent starts are no-op successes.
type Supervisor struct {
	cfg      Config
	logger   *slog.Logger
	state    *State
	ring     *LogRing
	tracker  *media.ManifestTracker
	metrics  Metrics
	launcher launcher

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastActivity atomic.Int64
	stalled      atomic.Bool
}

// New constructs an idle Supervisor. tracker and metrics may be nil.
func New(cfg Config, state *State, ring *LogRing, tracker *media.ManifestTracker, metrics Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if state == nil {
		state = NewState(nil)
	}
	if ring == nil {
		ring = NewLogRing(0)
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Supervisor{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		state:    state,
		ring:     ring,
		tracker:  tracker,
		metrics:  metrics,
		launcher: execLauncher{},
	}
}

// State exposes the shared run state for observers.
func (s *Supervisor) State() *State { return s.state }

// Logs exposes the log ring for observers.
func (s *Supervisor) Logs() *LogRing { return s.ring }

// Running reports whether a run loop is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked()
}

func (s *Supervisor) activeLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start launches the run loop for the plan on a dedicated goroutine. A start
// while already running is an idempotent no-op. A start racing a completing
// stop is impossible: Stop joins the worker under the same mutex discipline
// before a new run is accepted.
func (s *Supervisor) Start(plan Plan) error {
	if len(plan.Args) == 0 {
		return fmt.Errorf("plan has no arguments")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked() {
		s.logger.Info("start ignored, stream already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.state.beginRun()
	go s.run(ctx, plan, done)
	return nil
}

// Stop cancels the run loop and joins the worker before returning. The
// watchdog observes the cancellation and terminates the process group
// (graceful signal, then forceful kill after the grace period); routing the
// escalation through the watchdog means a process whose spawn was still in
// flight when Stop ran is terminated too. Stopping an idle supervisor is a
// no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	done := s.done
	cancel := s.cancel
	s.mu.Unlock()
	if done == nil || cancel == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}

	cancel()
	<-done
}

// Close stops the stream and releases deferred resources, including every
// outstanding playlist manifest. Used at daemon shutdown.
func (s *Supervisor) Close() {
	s.Stop()
	s.state.Reset()
}

func (s *Supervisor) run(ctx context.Context, plan Plan, done chan struct{}) {
	defer close(done)
	defer func() {
		// A panic in the run loop must not take down the control plane.
		if r := recover(); r != nil {
			s.logger.Error("supervisor run loop panic", "panic", r)
			s.state.RecordError(fmt.Sprintf("internal error: %v", r))
			s.state.MarkStopped()
		}
	}()

	backoff := NewBackoff(s.cfg.BackoffFloor, s.cfg.BackoffCeiling, s.cfg.BackoffFactor)

	for {
		if ctx.Err() != nil {
			return
		}

		class, reason := s.runOnce(ctx, plan)
		s.metrics.ProcessExit(class.String())

		switch class {
		case exitCanceled:
			return

		case exitClean:
			if !plan.LoopForever {
				s.logger.Info("stream ended", "media", plan.Media)
				return
			}
			// Looping a playlist: clean EOF is expected, restart right
			// away with the backoff back at its floor.
			backoff.Reset()
			s.state.RecordRestart()
			s.metrics.RestartScheduled()
			s.logger.Info("clean end of input, looping", "media", plan.Media)

		default:
			s.state.RecordError(reason)
			if !plan.LoopForever && backoff.ConsecutiveAbnormal()+1 >= s.cfg.MaxRestarts {
				err := fmt.Errorf("%w after %d attempts: %s", ErrMaxRestarts, s.cfg.MaxRestarts, reason)
				s.state.RecordError(err.Error())
				s.logger.Error("stream failed permanently", "error", err)
				return
			}
			s.state.RecordRestart()
			s.metrics.RestartScheduled()
			delay := backoff.Next()
			s.logger.Warn("restarting after abnormal exit",
				"class", class.String(),
				"reason", reason,
				"delay", delay,
				"consecutive", backoff.ConsecutiveAbnormal(),
			)
			if !sleepCtx(ctx, delay) {
				return
			}
		}
	}
}

// runOnce spawns and supervises a single encoder instance, returning the
// exit classification and a human-readable reason for abnormal exits.
func (s *Supervisor) runOnce(ctx context.Context, plan Plan) (exitClass, string) {
	proc, err := s.launcher.Launch(s.cfg.Binary, plan.Args)
	if err != nil {
		if ctx.Err() != nil {
			return exitCanceled, ""
		}
		return exitAbnormal, err.Error()
	}

	s.stalled.Store(false)
	s.touch()
	s.state.MarkStarted(proc.PID(), plan.Media, plan.Destinations)
	s.metrics.StreamStarted()
	s.logger.Info("encoder started", "pid", proc.PID(), "media", plan.Media)

	if s.tracker != nil && plan.Generation > 0 {
		// The new manifest is confirmed in use; older generations are now
		// safe to delete.
		s.tracker.ConfirmActive(plan.Generation)
		s.tracker.Sweep()
	}

	procDone := make(chan struct{})
	go s.watchdog(ctx, proc, procDone)

	scanner := bufio.NewScanner(proc.Output())
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.touch()
		s.ring.Append(line)
	}

	waitErr := proc.Wait()
	close(procDone)
	s.state.MarkStopped()
	s.metrics.StreamStopped()

	switch {
	case ctx.Err() != nil:
		return exitCanceled, ""
	case s.stalled.Load():
		return exitStalled, fmt.Sprintf("stall timeout exceeded (no output for %s)", s.cfg.StallTimeout)
	case waitErr == nil:
		return exitClean, ""
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitAbnormal, fmt.Sprintf("encoder exited with code %d", exitErr.ExitCode())
		}
		return exitAbnormal, waitErr.Error()
	}
}

// watchdog force-terminates the encoder when no output line arrives within
// the stall timeout, and applies the same escalation when the run is
// canceled. The watchdog starts only after Launch returns, so it sees an
// already-canceled context even when Stop raced the spawn.
func (s *Supervisor) watchdog(ctx context.Context, proc process, procDone <-chan struct{}) {
	interval := s.cfg.StallTimeout / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-procDone:
			return
		case <-ctx.Done():
			s.escalate(proc, procDone)
			return
		case <-ticker.C:
			idle := time.Since(time.Unix(0, s.lastActivity.Load()))
			if idle < s.cfg.StallTimeout {
				continue
			}
			s.stalled.Store(true)
			s.logger.Warn("stall detected, terminating encoder", "idle", idle, "pid", proc.PID())
			s.escalate(proc, procDone)
			return
		}
	}
}

// escalate applies the stop sequence to a live process: graceful group
// signal, bounded grace period, then forceful kill.
func (s *Supervisor) escalate(proc process, procDone <-chan struct{}) {
	if err := proc.Terminate(); err != nil {
		s.logger.Warn("terminate failed, killing", "error", err, "pid", proc.PID())
		_ = proc.Kill()
		return
	}
	select {
	case <-procDone:
	case <-time.After(s.cfg.GracePeriod):
		s.logger.Warn("grace period elapsed, killing encoder", "pid", proc.PID())
		_ = proc.Kill()
	}
}

func (s *Supervisor) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// sleepCtx sleeps for d unless the context is canceled first, reporting
// whether the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
