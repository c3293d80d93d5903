package compress

import (
	"fmt"

	"github.com/KAI-YUE/GCFL/tensor"
)

// IdealPredSignCompressor is the oracle baseline: the decoder is told the
// exact residual, so reconstruction is lossless, while the ratio
// accounting still charges one bit per element as if only residual signs
// were sent. It bounds the accuracy any binary predictive scheme can reach
// at sign-bit cost.
type IdealPredSignCompressor struct {
	meter ratioMeter
}

// NewIdealPredSign returns the oracle predictive compressor.
func NewIdealPredSign() *IdealPredSignCompressor {
	return &IdealPredSignCompressor{}
}

// Compress stores the exact tensor (or residual) as the payload.
func (c *IdealPredSignCompressor) Compress(t *tensor.Tensor, opts ...Option) (*Encoded, error) {
	ctx := newCallContext(opts)
	raw := t.Clone()
	if ctx.ref != nil {
		if !t.SameShape(ctx.ref) {
			return nil, fmt.Errorf("%w: tensor %v vs reference %v", ErrShapeMismatch, t.Shape(), ctx.ref.Shape())
		}
		raw.Sub(ctx.ref)
	}
	n := t.Numel()
	c.meter.count(rawBitsPerElement*n, n)
	return &Encoded{
		Shape: append([]int(nil), t.Shape()...),
		Raw:   raw.Data(),
	}, nil
}

// Decompress returns the exact original: payload plus reference when one
// is supplied.
func (c *IdealPredSignCompressor) Decompress(enc *Encoded, opts ...Option) (*tensor.Tensor, error) {
	ctx := newCallContext(opts)
	if numelOf(enc.Shape) != len(enc.Raw) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(enc.Raw), enc.Shape)
	}
	data := make([]float64, len(enc.Raw))
	copy(data, enc.Raw)
	out := tensor.New(data, enc.Shape...)
	if ctx.ref != nil {
		out.Add(ctx.ref)
	}
	return out, nil
}

// Aggregate sums the decompressed per-client tensors.
func (c *IdealPredSignCompressor) Aggregate(ts []*tensor.Tensor) *tensor.Tensor { return Sum(ts) }

// TransAggregate applies a majority vote over the client sum.
func (c *IdealPredSignCompressor) TransAggregate(sum *tensor.Tensor, sign int) *tensor.Tensor {
	return majoritySign(sum, sign)
}

// Ratio reports raw/encoded bits since the last Reset.
func (c *IdealPredSignCompressor) Ratio() float64 { return c.meter.Ratio() }

// Reset clears the ratio accumulators.
func (c *IdealPredSignCompressor) Reset() { c.meter.Reset() }
