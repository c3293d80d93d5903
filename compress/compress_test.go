package compress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KAI-YUE/GCFL/tensor"
)

// Test 1: Registry exposes exactly the supported policies
func TestRegistry(t *testing.T) {
	require.Equal(t,
		[]string{"ideal_pred_signSGD", "pred_rle_signSGD", "pred_signSGD", "signSGD"},
		Names())

	for _, name := range Names() {
		c, err := New(name)
		require.NoError(t, err)
		require.NotNil(t, c)
	}

	_, err := New("topk")
	require.ErrorIs(t, err, ErrUnknownPolicy)
}

// Test 2: Sign round trip, ties encode toward +1
func TestSignRoundTrip(t *testing.T) {
	c := NewSign()
	grad := tensor.New([]float64{0.5, -0.25, 0, -1e-3}, 4)

	enc, err := c.Compress(grad)
	require.NoError(t, err)
	require.Equal(t, []int{4}, enc.Shape)
	require.Equal(t, []bool{true, false, true, false}, enc.Bits)

	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	require.Equal(t, []float64{1, -1, 1, -1}, dec.Data())
}

// Test 3: Sign-restricted encoding keeps only elements in the given direction
func TestSignRestrictedEncoding(t *testing.T) {
	c := NewSign()
	grad := tensor.New([]float64{0.5, -0.25, 0}, 3)

	enc, err := c.Compress(grad, WithSign(1))
	require.NoError(t, err)
	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	// Positive-only pass: negative and zero elements decode to 0
	require.Equal(t, []float64{1, 0, 0}, dec.Data())

	enc, err = c.Compress(grad, WithSign(-1))
	require.NoError(t, err)
	dec, err = c.Decompress(enc)
	require.NoError(t, err)
	require.Equal(t, []float64{0, -1, 0}, dec.Data())
}

// Test 4: Plain sign encoding rejects residual references
func TestSignRejectsReference(t *testing.T) {
	c := NewSign()
	grad := tensor.New([]float64{1, 2}, 2)
	ref := tensor.Zeros(2)

	_, err := c.Compress(grad, WithReference(ref))
	require.ErrorIs(t, err, ErrReferenceUnsupported)

	enc, err := c.Compress(grad)
	require.NoError(t, err)
	_, err = c.Decompress(enc, WithReference(ref))
	require.ErrorIs(t, err, ErrReferenceUnsupported)
}

// Test 5: Ratio bookkeeping accumulates and resets
func TestRatioBookkeeping(t *testing.T) {
	c := NewSign()
	require.Equal(t, 0.0, c.Ratio())

	grad := tensor.New([]float64{1, -1, 1, -1}, 4)
	_, err := c.Compress(grad)
	require.NoError(t, err)
	// 4 elements, 32 raw bits each, 4 encoded bits
	require.InDelta(t, 32.0, c.Ratio(), 1e-12)

	_, err = c.Compress(grad)
	require.NoError(t, err)
	require.InDelta(t, 32.0, c.Ratio(), 1e-12)

	c.Reset()
	require.Equal(t, 0.0, c.Ratio())
}

// Test 6: Predictive residual round trip against a reference
func TestPredSignResidualRoundTrip(t *testing.T) {
	c := NewPredSign()
	ref := tensor.New([]float64{1, 2, 3, 4}, 4)
	grad := tensor.New([]float64{1.5, 1.5, 3.5, 3.5}, 4)

	enc, err := c.Compress(grad, WithReference(ref))
	require.NoError(t, err)

	dec, err := c.Decompress(enc, WithReference(ref))
	require.NoError(t, err)
	// reference plus ±1 residual signs
	require.Equal(t, []float64{2, 1, 4, 3}, dec.Data())
}

// Test 7: Predictive without a reference degrades to plain sign encoding
func TestPredSignWithoutReference(t *testing.T) {
	c := NewPredSign()
	grad := tensor.New([]float64{0.5, -0.25}, 2)

	enc, err := c.Compress(grad)
	require.NoError(t, err)
	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	require.Equal(t, []float64{1, -1}, dec.Data())
}

// Test 8: Reference shape mismatch is reported
func TestPredSignShapeMismatch(t *testing.T) {
	c := NewPredSign()
	grad := tensor.New([]float64{1, 2, 3}, 3)
	ref := tensor.Zeros(2)

	_, err := c.Compress(grad, WithReference(ref))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

// Test 9: Majority vote over the client sum
func TestTransAggregate(t *testing.T) {
	c := NewSign()

	// Three clients voted: sum > 0 means majority +1, < 0 majority −1,
	// exact ties collapse to 0.
	sum := tensor.New([]float64{3, -1, 0}, 3)
	out := c.TransAggregate(sum, 1)
	require.Equal(t, []float64{1, -1, 0}, out.Data())

	// Negative pass flips the vote
	out = c.TransAggregate(sum, -1)
	require.Equal(t, []float64{-1, 1, 0}, out.Data())
}

// Test 10: Aggregate sums per-client tensors without mutating them
func TestAggregateSum(t *testing.T) {
	c := NewSign()
	a := tensor.New([]float64{1, -1}, 2)
	b := tensor.New([]float64{1, 1}, 2)

	sum := c.Aggregate([]*tensor.Tensor{a, b})
	require.Equal(t, []float64{2, 0}, sum.Data())
	require.Equal(t, []float64{1, -1}, a.Data())
	require.Equal(t, []float64{1, 1}, b.Data())
}
