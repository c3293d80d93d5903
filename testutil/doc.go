/*
Package testutil provides testing utilities for the GCFL simulator.

This package contains test data generators designed to simplify writing
tests for compression policies, optimizer wrappers, and the experiment
orchestrator. It supports unit and integration testing by providing
consistent, customizable fixtures.

# Configuration Generators

Functions for creating customizable ExperimentConfig instances sized to
run end to end inside a unit test:

	// Create default test config
	cfg := testutil.NewTestExperiment()

	// Create custom config with specific options
	cfg := testutil.NewTestExperiment(
	    testutil.WithCompressor("pred_signSGD"),
	    testutil.WithPredictive(true),
	    testutil.WithEpochs(3),
	)

# Tensor and Parameter Generators

Utilities for building deterministic gradients and parameters:

	// Constant and seeded-random tensors
	ones := testutil.ConstantTensor(1.0, 4, 2)
	noise := testutil.RandomTensor(7, 4, 2)

	// Parameters with gradients attached, ready for Gather
	params := testutil.NewTestParameters(ones, noise)

This package is intended for testing purposes only and should not be used
in production code.
*/
package testutil
