package compress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KAI-YUE/GCFL/tensor"
)

// Test 1: Oracle round trip is lossless, with and without a reference
func TestIdealPredSignLossless(t *testing.T) {
	c := NewIdealPredSign()
	grad := tensor.New([]float64{0.3, -1.7, 0, 2.25}, 4)

	enc, err := c.Compress(grad)
	require.NoError(t, err)
	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	require.Equal(t, grad.Data(), dec.Data())

	ref := tensor.New([]float64{1, 1, 1, 1}, 4)
	enc, err = c.Compress(grad, WithReference(ref))
	require.NoError(t, err)
	dec, err = c.Decompress(enc, WithReference(ref))
	require.NoError(t, err)
	require.True(t, tensor.EqualApprox(grad, dec, 1e-12))
}

// Test 2: Oracle still charges one bit per element
func TestIdealPredSignRatioAccounting(t *testing.T) {
	c := NewIdealPredSign()
	grad := tensor.New([]float64{0.3, -1.7, 0, 2.25}, 4)

	_, err := c.Compress(grad)
	require.NoError(t, err)
	require.InDelta(t, 32.0, c.Ratio(), 1e-12)
}

// Test 3: Payload is a copy, not a view over the input
func TestIdealPredSignCopies(t *testing.T) {
	c := NewIdealPredSign()
	grad := tensor.New([]float64{1, 2}, 2)

	enc, err := c.Compress(grad)
	require.NoError(t, err)
	grad.Data()[0] = 99

	dec, err := c.Decompress(enc)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, dec.Data())
}
