// Package compress implements the gradient compression policies used to
// reduce client-to-server communication.
//
// Every policy satisfies the Compressor interface: it encodes one tensor
// (optionally as a residual against a reference broadcast), decodes it back
// to an approximation with the same shape, and keeps per-epoch compression
// ratio statistics. Residual and sign buffers are owned by the optimizer
// wrapper, not by the compressor; Reset only clears the ratio accumulators.
package compress

import (
	"errors"
	"fmt"
	"sort"

	"github.com/KAI-YUE/GCFL/tensor"
)

// Epsilon is the dead zone around zero below which an element is treated
// as sign-neutral by majority extraction and drift counting.
const Epsilon = 1e-8

var (
	// ErrReferenceUnsupported is returned by policies that cannot encode
	// residuals when a reference is supplied.
	ErrReferenceUnsupported = errors.New("compress: policy does not support residual references")

	// ErrShapeMismatch is returned when an encoded payload does not match
	// the decode target.
	ErrShapeMismatch = errors.New("compress: encoded shape mismatch")

	// ErrUnknownPolicy is returned by New for unregistered policy names.
	ErrUnknownPolicy = errors.New("compress: unknown policy")
)

// Encoded is the wire representation produced by Compress and consumed by
// the matching Decompress call. Which fields are populated is policy
// specific; callers treat it as opaque and never persist it across rounds.
type Encoded struct {
	Shape []int

	// Bits is the sign bitstream used by the plain and predictive policies.
	Bits []bool

	// Runs is the run-length encoded sign stream used by the RLE policy.
	Runs []Run

	// Raw is the exact payload carried by the ideal oracle policy.
	Raw []float64

	// Sign is the turn direction the payload was encoded against, or 0
	// when both directions were encoded.
	Sign int
}

// Option carries the optional compression context: a residual reference
// and/or a turn direction.
type Option func(*callContext)

type callContext struct {
	ref  *tensor.Tensor
	sign int
}

// WithReference selects residual mode: the policy encodes tensor−ref and
// decodes relative to ref.
func WithReference(ref *tensor.Tensor) Option {
	return func(c *callContext) { c.ref = ref }
}

// WithSign restricts encoding to one sign direction (+1 or −1), used by
// the turn-alternating wrapper on rounds without a reference.
func WithSign(sign int) Option {
	return func(c *callContext) { c.sign = sign }
}

func newCallContext(opts []Option) callContext {
	var c callContext
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Compressor encodes and decodes one tensor per call and tracks the
// compression ratio across calls.
type Compressor interface {
	// Compress encodes t, or t−ref when a reference option is given.
	// It must not mutate t.
	Compress(t *tensor.Tensor, opts ...Option) (*Encoded, error)

	// Decompress reconstructs an approximation of the original tensor
	// (relative to the same reference that was used to compress).
	Decompress(enc *Encoded, opts ...Option) (*tensor.Tensor, error)

	// Ratio returns raw bits / encoded bits accumulated since the last
	// Reset.
	Ratio() float64

	// Aggregate combines per-client decompressed tensors. The default is
	// an element-wise sum.
	Aggregate(ts []*tensor.Tensor) *tensor.Tensor

	// TransAggregate converts a raw client sum into the quantity applied
	// to the global parameter. For sign-based policies this is majority
	// sign extraction; the result is negated when sign < 0.
	TransAggregate(sum *tensor.Tensor, sign int) *tensor.Tensor

	// Reset clears the per-epoch ratio accumulators. It does not touch
	// residual buffers, which belong to the optimizer wrapper.
	Reset()
}

// Sum is the default element-wise aggregation over client contributions.
func Sum(ts []*tensor.Tensor) *tensor.Tensor {
	if len(ts) == 0 {
		return nil
	}
	out := tensor.ZerosLike(ts[0])
	for _, t := range ts {
		out.Add(t)
	}
	return out
}

// majoritySign extracts the element-wise majority sign of a client sum:
// +1 above Epsilon, −1 below −Epsilon, 0 inside the dead zone. The result
// is negated when sign < 0.
func majoritySign(sum *tensor.Tensor, sign int) *tensor.Tensor {
	out := tensor.ZerosLike(sum)
	dst, src := out.Data(), sum.Data()
	for i, v := range src {
		switch {
		case v > Epsilon:
			dst[i] = 1
		case v < -Epsilon:
			dst[i] = -1
		}
	}
	if sign < 0 {
		out.Scale(-1)
	}
	return out
}

// ratioMeter accumulates raw and encoded sizes between resets.
type ratioMeter struct {
	rawBits     float64
	encodedBits float64
}

func (m *ratioMeter) count(rawBits, encodedBits int) {
	m.rawBits += float64(rawBits)
	m.encodedBits += float64(encodedBits)
}

func (m *ratioMeter) Ratio() float64 {
	if m.encodedBits == 0 {
		return 0
	}
	return m.rawBits / m.encodedBits
}

func (m *ratioMeter) Reset() {
	m.rawBits = 0
	m.encodedBits = 0
}

const rawBitsPerElement = 32 // clients hold float32 gradients

// Constructor builds a fresh compressor instance for one wrapper.
type Constructor func() Compressor

// Registry maps policy names from experiment configuration to constructors.
var Registry = map[string]Constructor{
	"signSGD":            func() Compressor { return NewSign() },
	"pred_signSGD":       func() Compressor { return NewPredSign() },
	"pred_rle_signSGD":   func() Compressor { return NewPredRLESign() },
	"ideal_pred_signSGD": func() Compressor { return NewIdealPredSign() },
}

// New instantiates a registered policy by name.
func New(name string) (Compressor, error) {
	ctor, ok := Registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPolicy, name, Names())
	}
	return ctor(), nil
}

// Names returns the registered policy names, sorted.
func Names() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
