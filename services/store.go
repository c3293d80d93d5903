package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// ErrRunNotFound is returned when a run ID has no persisted header.
var ErrRunNotFound = errors.New("services: run not found")

// PostgresStore implements RecordStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed record store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id VARCHAR(64) PRIMARY KEY,
		compressor VARCHAR(64) NOT NULL,
		mode INTEGER NOT NULL,
		num_parameters INTEGER NOT NULL,
		comm_rounds INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS epochs (
		run_id VARCHAR(64) NOT NULL REFERENCES runs(run_id),
		epoch INTEGER NOT NULL,
		test_accuracy DOUBLE PRECISION NOT NULL,
		compress_ratio DOUBLE PRECISION NOT NULL,
		rounds INTEGER NOT NULL,
		recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (run_id, epoch)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun persists (or refreshes) a run header.
func (s *PostgresStore) SaveRun(run *RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO runs (run_id, compressor, mode, num_parameters, comm_rounds, started_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (run_id) DO UPDATE SET
		comm_rounds = EXCLUDED.comm_rounds
	`

	_, err := s.db.ExecContext(ctx, query,
		run.RunID,
		run.Compressor,
		run.Mode,
		run.NumParameters,
		run.CommRounds,
		run.StartedAt,
	)
	return err
}

// SaveEpoch appends one epoch record.
func (s *PostgresStore) SaveEpoch(runID string, rec EpochRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO epochs (run_id, epoch, test_accuracy, compress_ratio, rounds, recorded_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (run_id, epoch) DO UPDATE SET
		test_accuracy = EXCLUDED.test_accuracy,
		compress_ratio = EXCLUDED.compress_ratio,
		rounds = EXCLUDED.rounds,
		recorded_at = EXCLUDED.recorded_at
	`

	_, err := s.db.ExecContext(ctx, query,
		runID, rec.Epoch, rec.TestAccuracy, rec.CompressRatio, rec.Rounds, rec.RecordedAt)
	return err
}

// LoadRun retrieves a run header together with its epoch records.
func (s *PostgresStore) LoadRun(runID string) (*RunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run := &RunRecord{RunID: runID}
	err := s.db.QueryRowContext(ctx, `
		SELECT compressor, mode, num_parameters, comm_rounds, started_at
		FROM runs WHERE run_id = $1
	`, runID).Scan(&run.Compressor, &run.Mode, &run.NumParameters, &run.CommRounds, &run.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT epoch, test_accuracy, compress_ratio, rounds, recorded_at
		FROM epochs WHERE run_id = $1 ORDER BY epoch
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rec EpochRecord
		if err := rows.Scan(&rec.Epoch, &rec.TestAccuracy, &rec.CompressRatio, &rec.Rounds, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning epoch row: %w", err)
		}
		run.Epochs = append(run.Epochs, rec)
	}
	return run, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InMemoryStore implements RecordStore for testing without a database.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

// NewInMemoryStore creates an in-memory record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*RunRecord)}
}

// SaveRun stores a copy of the run header.
func (s *InMemoryStore) SaveRun(run *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.RunID]
	if !ok {
		cp := *run
		cp.Epochs = append([]EpochRecord(nil), run.Epochs...)
		s.runs[run.RunID] = &cp
		return nil
	}
	stored.CommRounds = run.CommRounds
	return nil
}

// SaveEpoch appends one epoch record.
func (s *InMemoryStore) SaveEpoch(runID string, rec EpochRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Epochs = append(run.Epochs, rec)
	sort.Slice(run.Epochs, func(i, j int) bool { return run.Epochs[i].Epoch < run.Epochs[j].Epoch })
	return nil
}

// LoadRun returns a copy of the stored run.
func (s *InMemoryStore) LoadRun(runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	cp := *run
	cp.Epochs = append([]EpochRecord(nil), run.Epochs...)
	return &cp, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
