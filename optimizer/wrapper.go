package optimizer

import (
	"fmt"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/tensor"
)

// Mode selects the wrapper's operating policy. The codes mirror the
// experiment configuration: predictive and turn-alternating flags combine
// into a single code.
type Mode int

const (
	// ModePredictiveTurn gathers residuals against alternating plus/minus
	// sign buffers.
	ModePredictiveTurn Mode = 0

	// ModePredictive gathers residuals against a single reference buffer.
	ModePredictive Mode = 1

	// ModeTurn (turn trick without predictive residuals) is reserved and
	// rejected at construction.
	ModeTurn Mode = 2

	// ModePlain gathers raw sign-compressed gradients with no residuals.
	ModePlain Mode = 3
)

// String names the mode for logs and errors.
func (m Mode) String() string {
	switch m {
	case ModePredictiveTurn:
		return "predictive+turn"
	case ModePredictive:
		return "predictive"
	case ModeTurn:
		return "turn"
	case ModePlain:
		return "plain"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// GatherOption carries optional per-call arguments to Gather.
type GatherOption func(*gatherArgs)

type gatherArgs struct {
	turn    int
	hasTurn bool
}

// WithTurn supplies the global turn counter. Required in turn mode,
// ignored by the other wrappers.
func WithTurn(turn int) GatherOption {
	return func(a *gatherArgs) {
		a.turn = turn
		a.hasTurn = true
	}
}

func newGatherArgs(opts []GatherOption) gatherArgs {
	var a gatherArgs
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// SignForTurn derives the active sign from turn parity: +1 on even turns,
// −1 on odd turns.
func SignForTurn(turn int) int {
	if turn%2 == 0 {
		return 1
	}
	return -1
}

// GatherStepper is the two-phase aggregation contract: one Gather per
// sampled client per round, then exactly one Step.
type GatherStepper interface {
	// Gather folds the current per-parameter gradients into the
	// accumulation buffers and consumes them.
	Gather(opts ...GatherOption) error

	// Step converts the accumulated sum into one global update, applies
	// it, rolls the reference buffers forward, and zeroes the
	// accumulation buffers.
	Step() error
}

// Wrap builds the aggregation wrapper for the given mode code around a
// base update rule, a compression policy, and the model parameters.
// Reserved and unknown mode codes fail here rather than falling back to a
// default policy.
func Wrap(base *SGD, comp compress.Compressor, mode Mode, params []*Parameter) (GatherStepper, error) {
	if base == nil {
		return nil, fmt.Errorf("optimizer: base update rule is required")
	}
	if comp == nil {
		return nil, fmt.Errorf("optimizer: compressor is required")
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("optimizer: at least one parameter is required")
	}

	switch mode {
	case ModePredictiveTurn:
		return newPredTurnWrapper(base, comp, params), nil
	case ModePredictive:
		return newPredictiveWrapper(base, comp, params), nil
	case ModePlain:
		return newPlainWrapper(base, comp, params), nil
	case ModeTurn:
		return nil, fmt.Errorf("%w: %d (turn trick without predictive residuals is not implemented)", ErrUnsupportedMode, mode)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMode, mode)
	}
}

// zerosLikeParams allocates one zero buffer per parameter.
func zerosLikeParams(params []*Parameter) []*tensor.Tensor {
	bufs := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		bufs[i] = tensor.ZerosLike(p.Value)
	}
	return bufs
}
