package testutil

import (
	"math/rand"

	"github.com/KAI-YUE/GCFL/optimizer"
	"github.com/KAI-YUE/GCFL/services"
	"github.com/KAI-YUE/GCFL/tensor"
)

// =====================================
// Configuration Generators
// =====================================

// TestConfigOption is a function that modifies an ExperimentConfig
type TestConfigOption func(*services.ExperimentConfig)

// WithUsers sets the number of simulated clients
func WithUsers(users int) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.Users = users
	}
}

// WithEpochs sets the maximum number of training epochs
func WithEpochs(epochs int) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.Epochs = epochs
	}
}

// WithCompressor sets the compression policy name
func WithCompressor(name string) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.Compressor = name
	}
}

// WithPredictive enables or disables residual encoding
func WithPredictive(predictive bool) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.Predictive = predictive
	}
}

// WithTakeTurns enables or disables alternating-sign encoding
func WithTakeTurns(takeTurns bool) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.TakeTurns = takeTurns
	}
}

// WithSamplingFraction sets the fraction of users sampled per round
func WithSamplingFraction(fraction float64) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.SamplingFraction = fraction
	}
}

// WithLearningRate sets the server-side SGD learning rate
func WithLearningRate(lr float64) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.LR = lr
	}
}

// WithMomentum sets the server-side SGD momentum
func WithMomentum(momentum float64) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.Momentum = momentum
	}
}

// WithSeed sets the random seed for data generation and sampling
func WithSeed(seed int64) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.Seed = seed
	}
}

// WithPerformanceThreshold sets the early-stopping accuracy threshold
func WithPerformanceThreshold(threshold float64) TestConfigOption {
	return func(cfg *services.ExperimentConfig) {
		cfg.PerformanceThreshold = threshold
	}
}

// NewTestExperiment creates an experiment configuration small enough to
// run end to end inside a unit test, customizable using options
func NewTestExperiment(options ...TestConfigOption) *services.ExperimentConfig {
	// Create default test configuration
	cfg := &services.ExperimentConfig{
		Users:                4,
		SamplingFraction:     0.5,
		RandomSampling:       true,
		Epochs:               2,
		LocalBatchSize:       8,
		LR:                   0.1,
		Momentum:             0,
		Compressor:           "signSGD",
		Features:             6,
		Classes:              3,
		TrainSamples:         120,
		TestSamples:          60,
		Seed:                 1,
		PerformanceThreshold: 1.0,
	}

	// Apply all provided options
	for _, option := range options {
		option(cfg)
	}

	return cfg
}

// =====================================
// Tensor and Parameter Generators
// =====================================

// ConstantTensor creates a tensor with every element set to v
func ConstantTensor(v float64, shape ...int) *tensor.Tensor {
	t := tensor.Zeros(shape...)
	data := t.Data()
	for i := range data {
		data[i] = v
	}
	return t
}

// RandomTensor creates a tensor with deterministic standard-normal entries
func RandomTensor(seed int64, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed))
	t := tensor.Zeros(shape...)
	data := t.Data()
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return t
}

// NewTestParameter creates a named parameter with a zeroed value and the
// given gradient already attached
func NewTestParameter(name string, grad *tensor.Tensor) *optimizer.Parameter {
	return &optimizer.Parameter{
		Name:  name,
		Value: tensor.ZerosLike(grad),
		Grad:  grad.Clone(),
	}
}

// NewTestParameters creates one parameter per gradient, named p0, p1, ...
func NewTestParameters(grads ...*tensor.Tensor) []*optimizer.Parameter {
	params := make([]*optimizer.Parameter, len(grads))
	names := []string{"p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for i, g := range grads {
		params[i] = NewTestParameter(names[i%len(names)], g)
	}
	return params
}

// SetGradient replaces a parameter's gradient with a copy of grad
func SetGradient(p *optimizer.Parameter, grad *tensor.Tensor) {
	p.Grad = grad.Clone()
}
