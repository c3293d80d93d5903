package services

import (
	"fmt"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/optimizer"
)

// ExperimentConfig describes one simulated federated-learning run.
type ExperimentConfig struct {
	// Users is the number of simulated clients holding data shards.
	Users int `yaml:"users"`

	// SamplingFraction is the fraction of users sampled each round.
	SamplingFraction float64 `yaml:"sampling_fraction"`

	// RandomSampling reshuffles the sampled user set every round.
	RandomSampling bool `yaml:"random_sampling"`

	// Epochs is the maximum number of training epochs.
	Epochs int `yaml:"epochs"`

	// LocalBatchSize is the per-client batch size for one local step.
	LocalBatchSize int `yaml:"local_batch_size"`

	// LR and Momentum parameterize the server-side SGD rule.
	LR       float64 `yaml:"lr"`
	Momentum float64 `yaml:"momentum"`

	// Compressor names the compression policy (see compress.Names).
	Compressor string `yaml:"compressor"`

	// Predictive enables residual encoding against the last broadcast;
	// TakeTurns additionally alternates the predicted sign per round.
	Predictive bool `yaml:"predictive"`
	TakeTurns  bool `yaml:"take_turns"`

	// Synthetic dataset dimensions.
	Features     int `yaml:"features"`
	Classes      int `yaml:"classes"`
	TrainSamples int `yaml:"train_samples"`
	TestSamples  int `yaml:"test_samples"`

	// Seed makes dataset generation and client sampling reproducible.
	Seed int64 `yaml:"seed"`

	// PerformanceThreshold stops the run early once test accuracy
	// exceeds it; 1.0 effectively disables early stopping.
	PerformanceThreshold float64 `yaml:"performance_threshold"`
}

// DefaultExperimentConfig returns a small, fast configuration.
func DefaultExperimentConfig() *ExperimentConfig {
	return &ExperimentConfig{
		Users:                20,
		SamplingFraction:     0.5,
		RandomSampling:       true,
		Epochs:               10,
		LocalBatchSize:       16,
		LR:                   0.05,
		Momentum:             0,
		Compressor:           "pred_signSGD",
		Predictive:           true,
		Features:             16,
		Classes:              4,
		TrainSamples:         2000,
		TestSamples:          400,
		Seed:                 1,
		PerformanceThreshold: 0.99,
	}
}

// Validate checks the configuration before any state is built.
func (c *ExperimentConfig) Validate() error {
	if c.Users <= 0 {
		return fmt.Errorf("services: users must be positive, got %d", c.Users)
	}
	if c.SamplingFraction <= 0 || c.SamplingFraction > 1 {
		return fmt.Errorf("services: sampling_fraction must be in (0, 1], got %v", c.SamplingFraction)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("services: epochs must be positive, got %d", c.Epochs)
	}
	if c.LocalBatchSize <= 0 {
		return fmt.Errorf("services: local_batch_size must be positive, got %d", c.LocalBatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("services: lr must be positive, got %v", c.LR)
	}
	if _, ok := compress.Registry[c.Compressor]; !ok {
		return fmt.Errorf("services: unknown compressor %q (known: %v)", c.Compressor, compress.Names())
	}
	if c.Features <= 0 || c.Classes <= 1 {
		return fmt.Errorf("services: invalid dataset dimensions %dx%d", c.Features, c.Classes)
	}
	if c.TrainSamples < c.Users {
		return fmt.Errorf("services: %d train samples cannot cover %d users", c.TrainSamples, c.Users)
	}
	if c.TestSamples <= 0 {
		return fmt.Errorf("services: test_samples must be positive, got %d", c.TestSamples)
	}
	return nil
}

// Mode derives the wrapper mode code from the predictive and turn flags,
// mirroring the experiment configuration convention: 0 = predictive+turn,
// 1 = predictive, 2 = turn only (reserved), 3 = plain.
func (c *ExperimentConfig) Mode() optimizer.Mode {
	switch {
	case c.Predictive && c.TakeTurns:
		return optimizer.ModePredictiveTurn
	case c.Predictive:
		return optimizer.ModePredictive
	case c.TakeTurns:
		return optimizer.ModeTurn
	default:
		return optimizer.ModePlain
	}
}
