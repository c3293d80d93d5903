package optimizer

import (
	"fmt"
	"sync"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/tensor"
)

// predictiveWrapper implements ModePredictive: after the first round the
// server holds one reference buffer per parameter (the last broadcast
// update) and clients transmit the sign of gradient−reference. On round 0
// the reference buffers are empty and the raw gradient is compressed
// instead.
type predictiveWrapper struct {
	mu     sync.Mutex
	params []*Parameter
	comp   compress.Compressor
	base   *SGD

	acc         []*tensor.Tensor
	ref         []*tensor.Tensor
	bufferEmpty bool
}

func newPredictiveWrapper(base *SGD, comp compress.Compressor, params []*Parameter) *predictiveWrapper {
	return &predictiveWrapper{
		params:      params,
		comp:        comp,
		base:        base,
		acc:         zerosLikeParams(params),
		ref:         zerosLikeParams(params),
		bufferEmpty: true,
	}
}

// Gather accumulates one client's decompressed contribution, residually
// encoded against the reference buffer once one exists.
func (w *predictiveWrapper) Gather(opts ...GatherOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, p := range w.params {
		if p.Grad == nil {
			continue
		}
		dec, err := w.roundTrip(p.Grad, w.ref[i])
		if err != nil {
			return fmt.Errorf("gather gradient %q: %w", p.Name, err)
		}
		w.acc[i].Add(dec)
		p.ZeroGrad()
	}
	return nil
}

// roundTrip compresses and immediately decompresses t, residually when the
// reference buffers are populated.
func (w *predictiveWrapper) roundTrip(t, ref *tensor.Tensor) (*tensor.Tensor, error) {
	if w.bufferEmpty {
		enc, err := w.comp.Compress(t)
		if err != nil {
			return nil, err
		}
		return w.comp.Decompress(enc)
	}
	enc, err := w.comp.Compress(t, compress.WithReference(ref))
	if err != nil {
		return nil, err
	}
	return w.comp.Decompress(enc, compress.WithReference(ref))
}

// Step extracts the majority update, smooths it with momentum, compresses
// the broadcast against the reference so server and clients stay in
// agreement, applies it, and stores it as the next reference.
func (w *predictiveWrapper) Step() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, p := range w.params {
		d := w.comp.TransAggregate(w.acc[i], 1)
		d = w.base.Smooth(p, d)

		// The broadcast itself is compressed: the stored reference must
		// equal what the clients will decode next round.
		d, err := w.roundTrip(d, w.ref[i])
		if err != nil {
			return fmt.Errorf("broadcast update %q: %w", p.Name, err)
		}

		w.base.Apply(p, d)
		w.ref[i] = d.Clone()
		w.acc[i].Zero()
	}
	w.bufferEmpty = false
	return nil
}
