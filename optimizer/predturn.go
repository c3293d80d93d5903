package optimizer

import (
	"fmt"
	"sync"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/tensor"
)

// predTurnWrapper implements ModePredictiveTurn: successive rounds
// alternate which sign direction is actively predicted. The buffer
// matching the current sign serves as the residual reference; the opposite
// buffer counts, per element, how often the raw gradient crossed the sign
// threshold in the suppressed direction. At Step the active buffer is
// zeroed and the drift counters are folded through majority extraction
// into the reference for the next round of that parity.
type predTurnWrapper struct {
	mu     sync.Mutex
	params []*Parameter
	comp   compress.Compressor
	base   *SGD

	acc         []*tensor.Tensor
	plusRef     []*tensor.Tensor
	minusRef    []*tensor.Tensor
	bufferEmpty bool
	currentSign int
}

func newPredTurnWrapper(base *SGD, comp compress.Compressor, params []*Parameter) *predTurnWrapper {
	return &predTurnWrapper{
		params:      params,
		comp:        comp,
		base:        base,
		acc:         zerosLikeParams(params),
		plusRef:     zerosLikeParams(params),
		minusRef:    zerosLikeParams(params),
		bufferEmpty: true,
		currentSign: 1,
	}
}

// Gather requires WithTurn; the sign is a pure function of turn parity.
// Contributions are residually encoded against the buffer matching the
// current sign, and the opposite buffer accumulates suppressed-direction
// drift counters.
func (w *predTurnWrapper) Gather(opts ...GatherOption) error {
	args := newGatherArgs(opts)
	if !args.hasTurn {
		return ErrTurnRequired
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	sign := SignForTurn(args.turn)
	w.currentSign = sign

	for i, p := range w.params {
		if p.Grad == nil {
			continue
		}

		dec, err := w.roundTrip(p.Grad, i, sign)
		if err != nil {
			return fmt.Errorf("gather gradient %q: %w", p.Name, err)
		}
		w.acc[i].Add(dec)

		w.countDrift(i, p.Grad, sign)
		p.ZeroGrad()
	}
	return nil
}

// roundTrip compresses and decompresses the gradient against the reference
// selected by the current sign; on the first round only the active
// direction's sign bits are encoded.
func (w *predTurnWrapper) roundTrip(grad *tensor.Tensor, i, sign int) (*tensor.Tensor, error) {
	if w.bufferEmpty {
		enc, err := w.comp.Compress(grad, compress.WithSign(sign))
		if err != nil {
			return nil, err
		}
		return w.comp.Decompress(enc)
	}
	ref := w.plusRef[i]
	if sign < 0 {
		ref = w.minusRef[i]
	}
	enc, err := w.comp.Compress(grad, compress.WithReference(ref))
	if err != nil {
		return nil, err
	}
	return w.comp.Decompress(enc, compress.WithReference(ref))
}

// countDrift bumps the opposite-sign buffer for every element whose raw
// gradient crossed the threshold in the suppressed direction.
func (w *predTurnWrapper) countDrift(i int, grad *tensor.Tensor, sign int) {
	src := grad.Data()
	if sign > 0 {
		dst := w.minusRef[i].Data()
		for j, v := range src {
			if v < -compress.Epsilon {
				dst[j]++
			}
		}
		return
	}
	dst := w.plusRef[i].Data()
	for j, v := range src {
		if v > compress.Epsilon {
			dst[j]++
		}
	}
}

// Step applies the sign-scaled majority update, zeroes the buffer matching
// the current sign, and folds the opposite buffer's drift counters through
// majority extraction so they become the reference for the next round of
// the opposite parity.
func (w *predTurnWrapper) Step() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sign := w.currentSign
	for i, p := range w.params {
		d := w.comp.TransAggregate(w.acc[i], 1)

		if sign > 0 {
			w.plusRef[i].Zero()
			folded := w.comp.TransAggregate(w.minusRef[i], -sign)
			folded.Scale(-1)
			w.minusRef[i] = folded
		} else {
			w.minusRef[i].Zero()
			w.plusRef[i] = w.comp.TransAggregate(w.plusRef[i], -sign)
		}

		d.Scale(float64(sign))
		w.base.Apply(p, d)
		w.acc[i].Zero()
	}
	w.bufferEmpty = false
	return nil
}
