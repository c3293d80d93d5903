package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/tensor"
)

// Helper to build one zero-initialized parameter of the given size
func newParam(t *testing.T, name string, n int) *Parameter {
	t.Helper()
	return &Parameter{Name: name, Value: tensor.Zeros(n)}
}

// Helper to build a wrapper around a fresh base rule and compressor
func setupWrapper(t *testing.T, policy string, mode Mode, lr float64, params ...*Parameter) GatherStepper {
	t.Helper()
	comp, err := compress.New(policy)
	require.NoError(t, err)
	base, err := NewSGD(lr, 0)
	require.NoError(t, err)
	w, err := Wrap(base, comp, mode, params)
	require.NoError(t, err)
	return w
}

// Test 1: Wrap validates its inputs and rejects reserved modes
func TestWrapValidation(t *testing.T) {
	comp, err := compress.New("signSGD")
	require.NoError(t, err)
	base, err := NewSGD(0.1, 0)
	require.NoError(t, err)
	params := []*Parameter{newParam(t, "w", 2)}

	_, err = Wrap(nil, comp, ModePlain, params)
	require.Error(t, err)

	_, err = Wrap(base, nil, ModePlain, params)
	require.Error(t, err)

	_, err = Wrap(base, comp, ModePlain, nil)
	require.Error(t, err)

	// Reserved: turn trick without predictive residuals
	_, err = Wrap(base, comp, ModeTurn, params)
	require.ErrorIs(t, err, ErrUnsupportedMode)

	_, err = Wrap(base, comp, Mode(7), params)
	require.ErrorIs(t, err, ErrUnsupportedMode)

	for _, mode := range []Mode{ModePredictiveTurn, ModePredictive, ModePlain} {
		w, err := Wrap(base, comp, mode, params)
		require.NoError(t, err, mode.String())
		require.NotNil(t, w)
	}
}

// Test 2: Turn parity drives the active sign
func TestSignForTurn(t *testing.T) {
	require.Equal(t, 1, SignForTurn(0))
	require.Equal(t, -1, SignForTurn(1))
	require.Equal(t, 1, SignForTurn(2))
	require.Equal(t, -1, SignForTurn(3))
}

// Test 3: Plain wrapper majority vote over two clients
func TestPlainWrapperRound(t *testing.T) {
	p := newParam(t, "w", 2)
	w := setupWrapper(t, "signSGD", ModePlain, 0.1, p)

	// Client 1 votes [+1, −1]
	p.Grad = tensor.New([]float64{0.5, -0.5}, 2)
	require.NoError(t, w.Gather())
	require.True(t, p.Grad.IsZero(), "gather must consume the gradient")

	// Client 2 votes [+1, +1]; the second coordinate ties to 0
	p.Grad = tensor.New([]float64{0.3, 0.2}, 2)
	require.NoError(t, w.Gather())

	require.NoError(t, w.Step())
	require.InDelta(t, -0.1, p.Value.Data()[0], 1e-12)
	require.InDelta(t, 0.0, p.Value.Data()[1], 1e-12)
}

// Test 4: Gather order does not change the applied update
func TestPlainWrapperCommutes(t *testing.T) {
	grads := [][]float64{{0.5, -0.5}, {0.3, 0.2}, {-0.1, -0.9}}

	runOrder := func(order []int) []float64 {
		p := newParam(t, "w", 2)
		w := setupWrapper(t, "signSGD", ModePlain, 0.1, p)
		for _, idx := range order {
			p.Grad = tensor.New(append([]float64(nil), grads[idx]...), 2)
			require.NoError(t, w.Gather())
		}
		require.NoError(t, w.Step())
		return p.Value.Data()
	}

	forward := runOrder([]int{0, 1, 2})
	reversed := runOrder([]int{2, 1, 0})
	require.Equal(t, forward, reversed)
}

// Test 5: Accumulation buffers are zeroed between rounds
func TestPlainWrapperBufferReset(t *testing.T) {
	p := newParam(t, "w", 2)
	w := setupWrapper(t, "signSGD", ModePlain, 0.1, p)

	p.Grad = tensor.New([]float64{1, 1}, 2)
	require.NoError(t, w.Gather())
	require.NoError(t, w.Step())
	require.InDelta(t, -0.1, p.Value.Data()[0], 1e-12)

	// A second round with the opposite vote must exactly undo the first;
	// any leftover accumulation would skew it.
	p.Grad = tensor.New([]float64{-1, -1}, 2)
	require.NoError(t, w.Gather())
	require.NoError(t, w.Step())
	require.InDelta(t, 0.0, p.Value.Data()[0], 1e-12)
	require.InDelta(t, 0.0, p.Value.Data()[1], 1e-12)
}

// Test 6: Predictive first round degrades to plain sign aggregation
func TestPredictiveFirstRound(t *testing.T) {
	p := newParam(t, "w", 2)
	w := setupWrapper(t, "pred_signSGD", ModePredictive, 0.1, p)

	p.Grad = tensor.New([]float64{0.5, -0.5}, 2)
	require.NoError(t, w.Gather())
	p.Grad = tensor.New([]float64{0.3, 0.2}, 2)
	require.NoError(t, w.Gather())

	// Sum of sign votes is [2, 0]; majority [1, 0]; the broadcast is
	// itself sign-compressed, so [1, 0] encodes to [+1, +1].
	require.NoError(t, w.Step())
	require.InDelta(t, -0.1, p.Value.Data()[0], 1e-12)
	require.InDelta(t, -0.1, p.Value.Data()[1], 1e-12)
}

// Test 7: Predictive residual rounds track the reference buffer
func TestPredictiveResidualRound(t *testing.T) {
	p := newParam(t, "w", 2)
	w := setupWrapper(t, "pred_signSGD", ModePredictive, 0.1, p)

	// Round 0 establishes the reference [1, 1] (see Test 6)
	p.Grad = tensor.New([]float64{0.5, -0.5}, 2)
	require.NoError(t, w.Gather())
	p.Grad = tensor.New([]float64{0.3, 0.2}, 2)
	require.NoError(t, w.Gather())
	require.NoError(t, w.Step())

	// Round 1: residual signs of [2, 0.5] against [1, 1] are [+1, −1],
	// decoding to ref+signs = [2, 0]; majority [1, 0]; broadcast
	// re-compression against the same reference lands on [2, 0].
	p.Grad = tensor.New([]float64{2, 0.5}, 2)
	require.NoError(t, w.Gather())
	require.NoError(t, w.Step())

	require.InDelta(t, -0.3, p.Value.Data()[0], 1e-12)
	require.InDelta(t, -0.1, p.Value.Data()[1], 1e-12)
}

// Test 8: Turn wrapper demands a turn number
func TestTurnRequired(t *testing.T) {
	p := newParam(t, "w", 2)
	w := setupWrapper(t, "pred_signSGD", ModePredictiveTurn, 0.1, p)

	p.Grad = tensor.New([]float64{1, -1}, 2)
	err := w.Gather()
	require.ErrorIs(t, err, ErrTurnRequired)

	require.NoError(t, w.Gather(WithTurn(0)))
}

// Test 9: Alternating-sign rounds suppress and recover opposite votes
func TestPredTurnAlternatingRounds(t *testing.T) {
	p := newParam(t, "w", 2)
	w := setupWrapper(t, "pred_signSGD", ModePredictiveTurn, 0.1, p)

	// Turn 0, positive pass: only the positive coordinate is encoded,
	// the negative one lands in the drift counters.
	p.Grad = tensor.New([]float64{0.5, -0.5}, 2)
	require.NoError(t, w.Gather(WithTurn(0)))
	require.NoError(t, w.Step())
	require.InDelta(t, -0.1, p.Value.Data()[0], 1e-12)
	require.InDelta(t, 0.0, p.Value.Data()[1], 1e-12)

	// Turn 1, negative pass: the same client gradient now votes through
	// the folded drift reference and pulls the first coordinate back.
	p.Grad = tensor.New([]float64{0.5, -0.5}, 2)
	require.NoError(t, w.Gather(WithTurn(1)))
	require.NoError(t, w.Step())
	require.InDelta(t, 0.0, p.Value.Data()[0], 1e-12)
	require.InDelta(t, 0.0, p.Value.Data()[1], 1e-12)
}

// Test 10: With the oracle compressor the predictive wrapper reproduces
// uncompressed sign descent
func TestPredictiveOracleMatchesPlainSign(t *testing.T) {
	// A single client with a fixed gradient: lossless residual round
	// trips collapse the predictive pipeline to majority sign descent,
	// which is exactly what the plain wrapper computes from sign bits.
	grad := []float64{0.7, -0.2, 0.001}

	pPred := newParam(t, "w", 3)
	pred := setupWrapper(t, "ideal_pred_signSGD", ModePredictive, 0.1, pPred)

	pPlain := newParam(t, "w", 3)
	plain := setupWrapper(t, "signSGD", ModePlain, 0.1, pPlain)

	for round := 0; round < 6; round++ {
		pPred.Grad = tensor.New(append([]float64(nil), grad...), 3)
		require.NoError(t, pred.Gather())
		require.NoError(t, pred.Step())

		pPlain.Grad = tensor.New(append([]float64(nil), grad...), 3)
		require.NoError(t, plain.Gather())
		require.NoError(t, plain.Step())

		require.True(t, tensor.EqualApprox(pPred.Value, pPlain.Value, 1e-12),
			"round %d: %v vs %v", round, pPred.Value.Data(), pPlain.Value.Data())
	}
}

// Test 11: Gradientless parameters are skipped, not faulted
func TestGatherSkipsMissingGradients(t *testing.T) {
	filled := newParam(t, "w", 2)
	empty := newParam(t, "b", 2)
	w := setupWrapper(t, "signSGD", ModePlain, 0.1, filled, empty)

	filled.Grad = tensor.New([]float64{1, 1}, 2)
	require.NoError(t, w.Gather())
	require.NoError(t, w.Step())

	require.InDelta(t, -0.1, filled.Value.Data()[0], 1e-12)
	require.True(t, empty.Value.IsZero())
}
