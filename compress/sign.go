package compress

import (
	"fmt"

	"github.com/KAI-YUE/GCFL/tensor"
)

// SignCompressor transmits only the sign bit of each gradient element:
// 1 bit against a 32-bit float, a fixed ratio of 32. It has no residual
// support; the plain wrapper never supplies a reference.
type SignCompressor struct {
	meter ratioMeter
}

// NewSign returns a sign-bit compressor.
func NewSign() *SignCompressor {
	return &SignCompressor{}
}

// signBits encodes the sign of every element, ties resolved toward +1.
// When sign is non-zero only elements pointing in that direction (beyond
// Epsilon) are set.
func signBits(data []float64, sign int) []bool {
	bits := make([]bool, len(data))
	for i, v := range data {
		if sign == 0 {
			bits[i] = v >= 0
		} else {
			bits[i] = float64(sign)*v > Epsilon
		}
	}
	return bits
}

// bitsToSigns reconstructs a ±1 tensor from a sign bitstream. With a
// direction restriction the unset elements decode to 0 instead of −1.
func bitsToSigns(bits []bool, shape []int, sign int) *tensor.Tensor {
	out := tensor.Zeros(shape...)
	dst := out.Data()
	for i, b := range bits {
		switch {
		case sign == 0 && b:
			dst[i] = 1
		case sign == 0:
			dst[i] = -1
		case b:
			dst[i] = float64(sign)
		}
	}
	return out
}

// Compress encodes the sign bit of every element of t.
func (c *SignCompressor) Compress(t *tensor.Tensor, opts ...Option) (*Encoded, error) {
	ctx := newCallContext(opts)
	if ctx.ref != nil {
		return nil, ErrReferenceUnsupported
	}
	n := t.Numel()
	c.meter.count(rawBitsPerElement*n, n)
	return &Encoded{
		Shape: append([]int(nil), t.Shape()...),
		Bits:  signBits(t.Data(), ctx.sign),
		Sign:  ctx.sign,
	}, nil
}

// Decompress reconstructs a ±1 magnitude tensor from the sign bits.
func (c *SignCompressor) Decompress(enc *Encoded, opts ...Option) (*tensor.Tensor, error) {
	ctx := newCallContext(opts)
	if ctx.ref != nil {
		return nil, ErrReferenceUnsupported
	}
	if len(enc.Bits) == 0 && enc.Shape != nil && numelOf(enc.Shape) != 0 {
		return nil, fmt.Errorf("%w: empty sign payload", ErrShapeMismatch)
	}
	if numelOf(enc.Shape) != len(enc.Bits) {
		return nil, fmt.Errorf("%w: %d bits for shape %v", ErrShapeMismatch, len(enc.Bits), enc.Shape)
	}
	return bitsToSigns(enc.Bits, enc.Shape, enc.Sign), nil
}

// Aggregate sums the decompressed per-client tensors.
func (c *SignCompressor) Aggregate(ts []*tensor.Tensor) *tensor.Tensor { return Sum(ts) }

// TransAggregate applies a majority vote over the client sum.
func (c *SignCompressor) TransAggregate(sum *tensor.Tensor, sign int) *tensor.Tensor {
	return majoritySign(sum, sign)
}

// Ratio reports raw/encoded bits since the last Reset.
func (c *SignCompressor) Ratio() float64 { return c.meter.Ratio() }

// Reset clears the ratio accumulators.
func (c *SignCompressor) Reset() { c.meter.Reset() }

func numelOf(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
