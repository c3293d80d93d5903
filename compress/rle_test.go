package compress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/KAI-YUE/GCFL/tensor"
)

// Test 1: Run-length codec round trip
func TestRLECodec(t *testing.T) {
	in := []bool{true, true, true, false, true, true, false, false}
	runs := rleEncode(in)
	require.Equal(t, []Run{
		{Bit: true, Len: 3},
		{Bit: false, Len: 1},
		{Bit: true, Len: 2},
		{Bit: false, Len: 2},
	}, runs)

	out, err := rleDecode(runs, len(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	// Declared length must match the expansion
	_, err = rleDecode(runs, len(in)+1)
	require.ErrorIs(t, err, ErrShapeMismatch)

	require.Nil(t, rleEncode(nil))
}

// Test 2: Elias gamma length coding costs
func TestEliasGammaBits(t *testing.T) {
	require.Equal(t, 1, eliasGammaBits(1))
	require.Equal(t, 3, eliasGammaBits(2))
	require.Equal(t, 3, eliasGammaBits(3))
	require.Equal(t, 5, eliasGammaBits(4))
	require.Equal(t, 7, eliasGammaBits(8))
}

// Test 3: RLE predictive round trip with a reference
func TestPredRLESignRoundTrip(t *testing.T) {
	c := NewPredRLESign()
	ref := tensor.New([]float64{1, 1, 1, 1}, 4)
	grad := tensor.New([]float64{2, 2, 0, 0}, 4)

	enc, err := c.Compress(grad, WithReference(ref))
	require.NoError(t, err)
	require.Empty(t, enc.Bits)
	require.Equal(t, []Run{{Bit: true, Len: 2}, {Bit: false, Len: 2}}, enc.Runs)

	dec, err := c.Decompress(enc, WithReference(ref))
	require.NoError(t, err)
	require.Equal(t, []float64{2, 2, 0, 0}, dec.Data())
}

// Test 4: RLE ratio depends on run structure, not just element count
func TestPredRLESignRatioDataDependent(t *testing.T) {
	// A single long run compresses far better than alternating signs.
	uniform := NewPredRLESign()
	_, err := uniform.Compress(constant(1, 64))
	require.NoError(t, err)

	alternating := NewPredRLESign()
	data := make([]float64, 64)
	for i := range data {
		if i%2 == 0 {
			data[i] = 1
		} else {
			data[i] = -1
		}
	}
	_, err = alternating.Compress(tensor.New(data, 64))
	require.NoError(t, err)

	require.Greater(t, uniform.Ratio(), alternating.Ratio())
	// Alternating signs cost more than one bit per element, so the ratio
	// drops below the plain sign encoder's fixed 32.
	require.Less(t, alternating.Ratio(), 32.0)
}

func constant(v float64, n int) *tensor.Tensor {
	data := make([]float64, n)
	for i := range data {
		data[i] = v
	}
	return tensor.New(data, n)
}
