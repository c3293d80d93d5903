// Package optimizer implements the server-side gradient aggregation
// wrapper: a stateful gather/step machine around a base SGD update rule.
//
// Each simulated client calls Gather once per communication round to fold
// its compressed gradient into per-parameter accumulation buffers; the
// round orchestrator then calls Step exactly once to apply a single global
// update and to roll the residual and sign buffers forward. The wrapper is
// composed with the base rule and a compression policy rather than derived
// from them, and all compression state it depends on is passed explicitly.
package optimizer

import (
	"errors"
	"fmt"

	"github.com/KAI-YUE/GCFL/tensor"
)

var (
	// ErrTurnRequired is returned by Gather when the turn-alternating
	// wrapper is invoked without a turn number.
	ErrTurnRequired = errors.New("optimizer: turn mode requires a turn number")

	// ErrUnsupportedMode is returned by Wrap for reserved or unknown mode
	// codes.
	ErrUnsupportedMode = errors.New("optimizer: unsupported wrapper mode")
)

// Parameter is one learnable tensor of the global model together with the
// gradient produced by the most recent local step. The model owns the
// tensors; the wrapper only references them.
type Parameter struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// ZeroGrad clears the parameter's gradient if one has been allocated.
func (p *Parameter) ZeroGrad() {
	if p.Grad != nil {
		p.Grad.Zero()
	}
}

// SGD is the base update rule the wrapper composes with. It owns the
// momentum buffers and applies the final parameter update.
type SGD struct {
	lr       float64
	momentum float64
	bufs     map[*Parameter]*tensor.Tensor
}

// NewSGD creates the base rule. The learning rate must be positive and
// momentum must lie in [0, 1).
func NewSGD(lr, momentum float64) (*SGD, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("optimizer: learning rate must be positive, got %v", lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("optimizer: momentum must be in [0, 1), got %v", momentum)
	}
	return &SGD{lr: lr, momentum: momentum, bufs: make(map[*Parameter]*tensor.Tensor)}, nil
}

// LR returns the learning rate.
func (s *SGD) LR() float64 { return s.lr }

// Momentum returns the momentum coefficient.
func (s *SGD) Momentum() float64 { return s.momentum }

// Smooth folds d into the parameter's momentum buffer (buf = m*buf + d)
// and returns the smoothed update. With zero momentum d is returned
// unchanged.
func (s *SGD) Smooth(p *Parameter, d *tensor.Tensor) *tensor.Tensor {
	if s.momentum == 0 {
		return d
	}
	buf, ok := s.bufs[p]
	if !ok {
		buf = d.Clone()
		s.bufs[p] = buf
		return buf.Clone()
	}
	buf.Scale(s.momentum)
	buf.Add(d)
	return buf.Clone()
}

// Apply performs the parameter update: value -= lr * d.
func (s *SGD) Apply(p *Parameter, d *tensor.Tensor) {
	p.Value.AddScaled(-s.lr, d)
}
