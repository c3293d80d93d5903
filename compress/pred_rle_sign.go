package compress

import (
	"github.com/KAI-YUE/GCFL/tensor"
)

// PredRLESignCompressor carries the same predictive sign semantics as
// PredSignCompressor but run-length encodes the sign stream. Residual
// signs are heavily clustered once the reference tracks the gradient, so
// the achieved ratio is data dependent rather than a fixed 32.
type PredRLESignCompressor struct {
	meter ratioMeter
}

// NewPredRLESign returns a run-length encoded predictive sign compressor.
func NewPredRLESign() *PredRLESignCompressor {
	return &PredRLESignCompressor{}
}

// Compress encodes the (residual) sign stream as runs.
func (c *PredRLESignCompressor) Compress(t *tensor.Tensor, opts ...Option) (*Encoded, error) {
	ctx := newCallContext(opts)
	bits, err := residualBits(t, ctx)
	if err != nil {
		return nil, err
	}
	runs := rleEncode(bits)
	c.meter.count(rawBitsPerElement*t.Numel(), rleBits(runs))
	sign := ctx.sign
	if ctx.ref != nil {
		sign = 0
	}
	return &Encoded{
		Shape: append([]int(nil), t.Shape()...),
		Runs:  runs,
		Sign:  sign,
	}, nil
}

// Decompress expands the runs and reconstructs like the predictive policy.
func (c *PredRLESignCompressor) Decompress(enc *Encoded, opts ...Option) (*tensor.Tensor, error) {
	bits, err := rleDecode(enc.Runs, numelOf(enc.Shape))
	if err != nil {
		return nil, err
	}
	return decodeResidual(enc, bits, newCallContext(opts))
}

// Aggregate sums the decompressed per-client tensors.
func (c *PredRLESignCompressor) Aggregate(ts []*tensor.Tensor) *tensor.Tensor { return Sum(ts) }

// TransAggregate applies a majority vote over the client sum.
func (c *PredRLESignCompressor) TransAggregate(sum *tensor.Tensor, sign int) *tensor.Tensor {
	return majoritySign(sum, sign)
}

// Ratio reports raw/encoded bits since the last Reset.
func (c *PredRLESignCompressor) Ratio() float64 { return c.meter.Ratio() }

// Reset clears the ratio accumulators.
func (c *PredRLESignCompressor) Reset() { c.meter.Reset() }
