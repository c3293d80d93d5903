package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/fl"
	"github.com/KAI-YUE/GCFL/metrics"
	"github.com/KAI-YUE/GCFL/optimizer"
)

// Status is the live snapshot served by the status API while a run is in
// progress.
type Status struct {
	RunID         string  `json:"run_id"`
	Running       bool    `json:"running"`
	Epoch         int     `json:"epoch"`
	Round         int     `json:"round"`
	TestAccuracy  float64 `json:"test_accuracy"`
	CompressRatio float64 `json:"compress_ratio"`
}

// Orchestrator drives the simulated federated training: per round it
// samples a set of users, runs one local update per user (each ending in
// a Gather call), then performs exactly one server Step. Per epoch it
// evaluates the model, records the compression ratio, and resets the
// compressor's statistics.
type Orchestrator struct {
	cfg   *ExperimentConfig
	log   *slog.Logger
	store RecordStore

	model  *fl.SoftmaxRegression
	comp   compress.Compressor
	opt    optimizer.GatherStepper
	train  *fl.Dataset
	test   *fl.Dataset
	shards [][]int
	rng    *rand.Rand

	mu     sync.RWMutex
	status Status
	run    *RunRecord
}

// NewOrchestrator validates the configuration and builds the full
// simulation: datasets, model, compressor, and the aggregation wrapper.
// Reserved wrapper modes fail here, before any state is created.
func NewOrchestrator(cfg *ExperimentConfig, store RecordStore, log *slog.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	if log == nil {
		log = slog.Default()
	}

	comp, err := compress.New(cfg.Compressor)
	if err != nil {
		return nil, err
	}

	model, err := fl.NewSoftmaxRegression(cfg.Features, cfg.Classes)
	if err != nil {
		return nil, err
	}

	base, err := optimizer.NewSGD(cfg.LR, cfg.Momentum)
	if err != nil {
		return nil, err
	}

	opt, err := optimizer.Wrap(base, comp, cfg.Mode(), model.Parameters())
	if err != nil {
		return nil, fmt.Errorf("services: wrap optimizer: %w", err)
	}

	train, err := fl.SyntheticClassification(cfg.TrainSamples, cfg.Features, cfg.Classes, cfg.Seed)
	if err != nil {
		return nil, err
	}
	test, err := fl.SyntheticClassification(cfg.TestSamples, cfg.Features, cfg.Classes, cfg.Seed+1)
	if err != nil {
		return nil, err
	}

	shards, err := fl.AssignUserData(train, cfg.Users, cfg.Seed+2)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:    cfg,
		log:    log,
		store:  store,
		model:  model,
		comp:   comp,
		opt:    opt,
		train:  train,
		test:   test,
		shards: shards,
		rng:    rand.New(rand.NewSource(cfg.Seed + 3)),
	}, nil
}

// Compressor exposes the active policy's telemetry surface.
func (o *Orchestrator) Compressor() compress.Compressor { return o.comp }

// Model returns the global model.
func (o *Orchestrator) Model() *fl.SoftmaxRegression { return o.model }

// Status returns the current run snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Run executes the configured experiment and returns the completed run
// record. Cancellation is honored between rounds; a round that has begun
// always finishes its Step so no gathered state is abandoned mid-round.
func (o *Orchestrator) Run(ctx context.Context) (*RunRecord, error) {
	run := &RunRecord{
		RunID:         uuid.NewString(),
		Compressor:    o.cfg.Compressor,
		Mode:          int(o.cfg.Mode()),
		NumParameters: o.model.NumParameters(),
		StartedAt:     time.Now().UTC(),
	}
	if err := o.store.SaveRun(run); err != nil {
		return nil, fmt.Errorf("services: save run: %w", err)
	}

	o.mu.Lock()
	o.run = run
	o.status = Status{RunID: run.RunID, Running: true}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.status.Running = false
		o.mu.Unlock()
	}()

	usersToSample := int(float64(o.cfg.Users) * o.cfg.SamplingFraction)
	if usersToSample < 1 {
		usersToSample = 1
	}
	samplesPerRound := float64(o.cfg.TrainSamples) * o.cfg.SamplingFraction
	iterations := int(math.Ceil(samplesPerRound / float64(o.cfg.LocalBatchSize)))
	if iterations < 1 {
		iterations = 1
	}

	o.log.Info("starting run",
		"runID", run.RunID,
		"compressor", run.Compressor,
		"mode", o.cfg.Mode().String(),
		"users", o.cfg.Users,
		"usersPerRound", usersToSample,
		"roundsPerEpoch", iterations,
		"numParameters", run.NumParameters,
	)

	globalTurn := -1
	for epoch := 0; epoch < o.cfg.Epochs; epoch++ {
		for iter := 0; iter < iterations; iter++ {
			select {
			case <-ctx.Done():
				return run, ctx.Err()
			default:
			}

			globalTurn++
			if err := o.runRound(globalTurn, usersToSample); err != nil {
				return run, fmt.Errorf("services: round %d: %w", globalTurn, err)
			}
			run.CommRounds++
			metrics.RoundsTotal.Inc()

			o.mu.Lock()
			o.status.Epoch = epoch
			o.status.Round = globalTurn
			o.mu.Unlock()
		}

		acc := fl.Accuracy(o.model, o.test)
		ratio := o.comp.Ratio()
		rec := EpochRecord{
			Epoch:         epoch,
			TestAccuracy:  acc,
			CompressRatio: ratio,
			Rounds:        iterations,
			RecordedAt:    time.Now().UTC(),
		}
		run.Epochs = append(run.Epochs, rec)
		if err := o.store.SaveEpoch(run.RunID, rec); err != nil {
			return run, fmt.Errorf("services: save epoch %d: %w", epoch, err)
		}

		metrics.TestAccuracy.Set(acc)
		metrics.CompressRatio.Set(ratio)
		o.log.Info("epoch complete",
			"epoch", epoch, "testAccuracy", acc, "compressRatio", ratio)

		o.comp.Reset()

		o.mu.Lock()
		o.status.TestAccuracy = acc
		o.status.CompressRatio = ratio
		o.mu.Unlock()

		if acc > o.cfg.PerformanceThreshold {
			o.log.Info("performance threshold reached",
				"epoch", epoch, "testAccuracy", acc, "commRounds", run.CommRounds)
			break
		}
	}

	if err := o.store.SaveRun(run); err != nil {
		return run, fmt.Errorf("services: save run: %w", err)
	}
	return run, nil
}

// runRound performs the gather phase for every sampled user, then one
// server step.
func (o *Orchestrator) runRound(turn, usersToSample int) error {
	for _, userID := range o.sampleUsers(usersToSample) {
		res := fl.AssignUserResource(o.train, o.shards[userID], userID, o.cfg.LocalBatchSize, o.rng)
		updater, err := fl.NewLocalUpdater(res)
		if err != nil {
			return err
		}

		start := time.Now()
		if _, err := updater.LocalStep(o.model, o.opt, optimizer.WithTurn(turn)); err != nil {
			return err
		}
		metrics.LocalStepDuration.Observe(time.Since(start).Seconds())
	}
	return o.opt.Step()
}

// sampleUsers picks this round's participants.
func (o *Orchestrator) sampleUsers(n int) []int {
	if !o.cfg.RandomSampling || n >= o.cfg.Users {
		users := make([]int, o.cfg.Users)
		for i := range users {
			users[i] = i
		}
		return users
	}
	return o.rng.Perm(o.cfg.Users)[:n]
}

// RegisterRoutes exposes the run telemetry over HTTP.
func (o *Orchestrator) RegisterRoutes(r chi.Router) {
	r.Get("/status", o.handleStatus)
	r.Get("/record", o.handleRecord)
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(o.Status()); err != nil {
		o.log.Error("encode status", "err", err)
	}
}

func (o *Orchestrator) handleRecord(w http.ResponseWriter, r *http.Request) {
	o.mu.RLock()
	run := o.run
	o.mu.RUnlock()

	if run == nil {
		http.Error(w, `{"error":"no run started"}`, http.StatusNotFound)
		return
	}

	record, err := o.store.LoadRun(run.RunID)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		o.log.Error("encode record", "err", err)
	}
}
