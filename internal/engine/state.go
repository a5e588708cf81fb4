package engine

import (
	"sync"
	"time"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"codeberg.org/mutker/vitalsim/internal/generator"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	Idle State = iota
	Loaded
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrorRecord describes one failed delivery.
type ErrorRecord struct {
	Time    time.Time
	Elapsed float64
	Code    errors.ErrorCode
	Err     string
	Status  int
}

// Stats counts delivery outcomes. Completions of concurrent deliveries
// update it, so every access goes through the mutex.
type Stats struct {
	mu     sync.Mutex
	sent   int
	failed int
	errors []ErrorRecord
}

// StatsSnapshot is a consistent copy of Stats.
type StatsSnapshot struct {
	Sent   int
	Failed int
	Errors []ErrorRecord
}

func (s *Stats) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
}

func (s *Stats) recordFailure(rec ErrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.errors = append(s.errors, rec)
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]ErrorRecord, len(s.errors))
	copy(errs, s.errors)

	return StatsSnapshot{Sent: s.sent, Failed: s.failed, Errors: errs}
}

// RunState lives for one Run. Values and Elapsed belong to the tick loop;
// Stats is shared with delivery completions.
type RunState struct {
	Values  *generator.State
	Elapsed float64
	Stats   *Stats
}

func newRunState() *RunState {
	return &RunState{
		Values: generator.NewState(),
		Stats:  &Stats{},
	}
}
