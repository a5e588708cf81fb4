package history

import (
	"context"
	"time"
)

// Recorder keeps an audit trail of simulator runs. It stores delivery
// outcomes only, never the simulated vital values.
type Recorder interface {
	RecordFailure(ctx context.Context, failure *FailureRecord) error
	RecordRun(ctx context.Context, run *RunRecord) error
	Close() error
}

// Repository defines the interface for history data storage
type Repository interface {
	StoreFailure(failure *FailureRecord) error
	StoreRun(run *RunRecord) error
	Runs(limit int) ([]RunRecord, error)
	Failures(runID string) ([]FailureRecord, error)
	Close() error
}

// RunRecord summarizes one finished run
type RunRecord struct {
	RunID     string
	Scenario  string
	PatientID string
	DeviceID  string
	StartedAt time.Time
	EndedAt   time.Time
	Ticks     int
	Sent      int
	Failed    int
}

// FailureRecord is one failed delivery
type FailureRecord struct {
	RunID   string
	Time    time.Time
	Elapsed float64
	Code    string
	Status  int
	Message string
}
