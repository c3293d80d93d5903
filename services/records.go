package services

import (
	"time"
)

// EpochRecord captures the telemetry the orchestrator reads once per
// epoch: test accuracy and the compression ratio accumulated since the
// compressor was last reset.
type EpochRecord struct {
	Epoch         int       `json:"epoch"`
	TestAccuracy  float64   `json:"test_accuracy"`
	CompressRatio float64   `json:"compress_ratio"`
	Rounds        int       `json:"rounds"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// RunRecord is the persistent result of one experiment run.
type RunRecord struct {
	RunID         string        `json:"run_id"`
	Compressor    string        `json:"compressor"`
	Mode          int           `json:"mode"`
	NumParameters int           `json:"num_parameters"`
	StartedAt     time.Time     `json:"started_at"`
	CommRounds    int           `json:"comm_rounds"`
	Epochs        []EpochRecord `json:"epochs"`
}

// RecordStore persists run records. Implementations: PostgresStore for
// deployments, InMemoryStore for tests and one-off runs.
type RecordStore interface {
	// SaveRun persists the run header; it must be called before any
	// SaveEpoch for that run.
	SaveRun(run *RunRecord) error

	// SaveEpoch appends one epoch record to an existing run.
	SaveEpoch(runID string, rec EpochRecord) error

	// LoadRun retrieves a run with all its epoch records.
	LoadRun(runID string) (*RunRecord, error)

	// Close releases any underlying resources.
	Close() error
}
