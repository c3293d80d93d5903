package optimizer

import (
	"fmt"
	"sync"

	"github.com/KAI-YUE/GCFL/compress"
	"github.com/KAI-YUE/GCFL/tensor"
)

// plainWrapper implements ModePlain: every client compresses its raw
// gradient, the server sums the decompressed contributions and applies the
// majority sign.
type plainWrapper struct {
	mu     sync.Mutex
	params []*Parameter
	comp   compress.Compressor
	base   *SGD
	acc    []*tensor.Tensor
}

func newPlainWrapper(base *SGD, comp compress.Compressor, params []*Parameter) *plainWrapper {
	return &plainWrapper{
		params: params,
		comp:   comp,
		base:   base,
		acc:    zerosLikeParams(params),
	}
}

// Gather compresses each parameter's raw gradient, accumulates the
// decompressed approximation, and consumes the gradient.
func (w *plainWrapper) Gather(opts ...GatherOption) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, p := range w.params {
		if p.Grad == nil {
			continue
		}
		enc, err := w.comp.Compress(p.Grad)
		if err != nil {
			return fmt.Errorf("compress gradient %q: %w", p.Name, err)
		}
		dec, err := w.comp.Decompress(enc)
		if err != nil {
			return fmt.Errorf("decompress gradient %q: %w", p.Name, err)
		}
		w.acc[i].Add(dec)
		p.ZeroGrad()
	}
	return nil
}

// Step applies the majority-sign update and zeroes the accumulation
// buffers.
func (w *plainWrapper) Step() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, p := range w.params {
		d := w.comp.TransAggregate(w.acc[i], 1)
		w.base.Apply(p, d)
		w.acc[i].Zero()
	}
	return nil
}
