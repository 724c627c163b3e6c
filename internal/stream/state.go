// Package stream contains the supervisor subsystem: the shared run state,
// the log ring buffer, the restart backoff policy, and the process
// supervisor itself.
package stream

import (
	"sync"
	"time"

	"relaycast/internal/models"
)

// State is the shared, lock-protected record of the current run. It is
// mutated only by the supervisor through the transition methods below and
// read by any number of concurrent observers via Snapshot.
type State struct {
	mu           sync.Mutex
	running      bool
	pid          int
	startedAt    time.Time
	cumulative   time.Duration
	restarts     uint
	lastError    string
	currentMedia string
	destinations int

	// onReset performs deferred resource cleanup (playlist manifests) and
	// is always invoked outside the mutex, never during the critical
	// section.
	onReset func()

	now func() time.Time
}

// NewState constructs an idle State. onReset may be nil.
func NewState(onReset func()) *State {
	return &State{onReset: onReset, now: time.Now}
}

// MarkStarted transitions to running and records the process identity.
func (s *State) MarkStarted(pid int, media string, destinations int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.pid = pid
	s.startedAt = s.now()
	s.currentMedia = media
	s.destinations = destinations
}

// MarkStopped transitions out of running, folding the elapsed run time into
// the cumulative uptime.
func (s *State) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !s.startedAt.IsZero() {
		s.cumulative += s.now().Sub(s.startedAt)
	}
	s.running = false
	s.pid = 0
	s.startedAt = time.Time{}
}

// RecordRestart increments the restart counter.
func (s *State) RecordRestart() {
	s.mu.Lock()
	s.restarts++
	s.mu.Unlock()
}

// RecordError stores the most recent failure reason.
func (s *State) RecordError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// ClearError resets the failure reason at the start of a fresh run.
func (s *State) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
}

// Reset returns the state to idle and zeroes counters, then triggers the
// deferred cleanup hook outside the lock so file deletion never happens
// inside the critical section.
func (s *State) Reset() {
	s.mu.Lock()
	s.running = false
	s.pid = 0
	s.startedAt = time.Time{}
	s.cumulative = 0
	s.restarts = 0
	s.lastError = ""
	s.currentMedia = ""
	s.destinations = 0
	hook := s.onReset
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// beginRun zeroes the counters for a fresh run without touching deferred
// resources; the manifest for the new run is already registered by the time
// the supervisor starts.
func (s *State) beginRun() {
	s.mu.Lock()
	s.restarts = 0
	s.cumulative = 0
	s.lastError = ""
	s.mu.Unlock()
}

// Snapshot returns a consistent view of the state. Current uptime adds the
// elapsed time since startedAt while running, so observers see it advance
// between transitions.
func (s *State) Snapshot() models.StreamStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	uptime := s.cumulative
	if s.running && !s.startedAt.IsZero() {
		uptime += s.now().Sub(s.startedAt)
	}
	return models.StreamStatus{
		Running:          s.running,
		Restarts:         s.restarts,
		UptimeSeconds:    int64(uptime / time.Second),
		LastError:        s.lastError,
		ProcessID:        s.pid,
		CurrentMedia:     s.currentMedia,
		DestinationCount: s.destinations,
		StartedAt:        s.startedAt,
	}
}
