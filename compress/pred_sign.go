package compress

import (
	"fmt"

	"github.com/KAI-YUE/GCFL/tensor"
)

// PredSignCompressor implements predictive sign encoding: once a reference
// broadcast exists, clients transmit the sign of gradient−reference rather
// than the sign of the raw gradient. Reconstruction adds the residual sign
// back onto the reference, so the server-side majority vote runs over the
// predicted gradient signs.
type PredSignCompressor struct {
	meter ratioMeter
}

// NewPredSign returns a predictive sign compressor.
func NewPredSign() *PredSignCompressor {
	return &PredSignCompressor{}
}

// residualBits returns the sign bitstream of t, or of t−ref when a
// reference is present.
func residualBits(t *tensor.Tensor, ctx callContext) ([]bool, error) {
	if ctx.ref == nil {
		return signBits(t.Data(), ctx.sign), nil
	}
	if !t.SameShape(ctx.ref) {
		return nil, fmt.Errorf("%w: tensor %v vs reference %v", ErrShapeMismatch, t.Shape(), ctx.ref.Shape())
	}
	src, ref := t.Data(), ctx.ref.Data()
	bits := make([]bool, len(src))
	for i, v := range src {
		bits[i] = v-ref[i] >= 0
	}
	return bits, nil
}

// decodeResidual turns a sign bitstream back into a tensor: ±1 residual
// signs added onto the reference when one is present.
func decodeResidual(enc *Encoded, bits []bool, ctx callContext) (*tensor.Tensor, error) {
	if numelOf(enc.Shape) != len(bits) {
		return nil, fmt.Errorf("%w: %d bits for shape %v", ErrShapeMismatch, len(bits), enc.Shape)
	}
	out := bitsToSigns(bits, enc.Shape, enc.Sign)
	if ctx.ref != nil {
		if !out.SameShape(ctx.ref) {
			return nil, fmt.Errorf("%w: payload %v vs reference %v", ErrShapeMismatch, out.Shape(), ctx.ref.Shape())
		}
		out.Add(ctx.ref)
	}
	return out, nil
}

// Compress encodes sign bits of t, or of the residual t−ref.
func (c *PredSignCompressor) Compress(t *tensor.Tensor, opts ...Option) (*Encoded, error) {
	ctx := newCallContext(opts)
	bits, err := residualBits(t, ctx)
	if err != nil {
		return nil, err
	}
	n := t.Numel()
	c.meter.count(rawBitsPerElement*n, n)
	sign := ctx.sign
	if ctx.ref != nil {
		sign = 0
	}
	return &Encoded{
		Shape: append([]int(nil), t.Shape()...),
		Bits:  bits,
		Sign:  sign,
	}, nil
}

// Decompress reconstructs the gradient approximation; with a reference the
// result is reference plus the ±1 residual signs.
func (c *PredSignCompressor) Decompress(enc *Encoded, opts ...Option) (*tensor.Tensor, error) {
	return decodeResidual(enc, enc.Bits, newCallContext(opts))
}

// Aggregate sums the decompressed per-client tensors.
func (c *PredSignCompressor) Aggregate(ts []*tensor.Tensor) *tensor.Tensor { return Sum(ts) }

// TransAggregate applies a majority vote over the client sum.
func (c *PredSignCompressor) TransAggregate(sum *tensor.Tensor, sign int) *tensor.Tensor {
	return majoritySign(sum, sign)
}

// Ratio reports raw/encoded bits since the last Reset.
func (c *PredSignCompressor) Ratio() float64 { return c.meter.Ratio() }

// Reset clears the ratio accumulators.
func (c *PredSignCompressor) Reset() { c.meter.Reset() }
