package fl

import (
	"errors"
	"fmt"

	"github.com/KAI-YUE/GCFL/optimizer"
)

// ErrInvalidResource is returned when a local updater is constructed from
// an incomplete user resource.
var ErrInvalidResource = errors.New("fl: invalid user resource")

// LocalUpdater simulates one client's local training step. Its only
// contract with the aggregation core is to produce a per-parameter
// gradient and then call Gather exactly once.
type LocalUpdater struct {
	userID  int
	samples *Dataset
}

// NewLocalUpdater validates the assigned resource and builds the updater.
// Missing batch size or samples are configuration errors: construction is
// aborted and no partial state is kept.
func NewLocalUpdater(res UserResource) (*LocalUpdater, error) {
	if res.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidResource, res.BatchSize)
	}
	if res.Samples == nil || res.Samples.Len() == 0 {
		return nil, fmt.Errorf("%w: user %d has no samples", ErrInvalidResource, res.UserID)
	}
	rows, _ := res.Samples.Inputs.Dims()
	if rows != len(res.Samples.Labels) {
		return nil, fmt.Errorf("%w: %d inputs for %d labels", ErrInvalidResource, rows, len(res.Samples.Labels))
	}
	return &LocalUpdater{userID: res.UserID, samples: res.Samples}, nil
}

// UserID returns the simulated client this updater belongs to.
func (u *LocalUpdater) UserID() int { return u.userID }

// LocalStep runs one forward/backward pass on the local batch and folds
// the resulting gradients into the wrapper. It never calls Step; that is
// the orchestrator's job.
func (u *LocalUpdater) LocalStep(model *SoftmaxRegression, opt optimizer.GatherStepper, opts ...optimizer.GatherOption) (float64, error) {
	loss, err := model.ComputeGradients(u.samples.Inputs, u.samples.Labels)
	if err != nil {
		return 0, fmt.Errorf("fl: local step for user %d: %w", u.userID, err)
	}
	if err := opt.Gather(opts...); err != nil {
		return 0, fmt.Errorf("fl: gather for user %d: %w", u.userID, err)
	}
	return loss, nil
}
