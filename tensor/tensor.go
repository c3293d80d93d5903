// Package tensor provides the dense float64 tensors used for model
// parameters, gradients, and the server-side accumulation and reference
// buffers.
//
// Tensors are deliberately minimal: a shape and a flat backing slice.
// Element-wise arithmetic delegates to gonum's floats kernels. Shape
// mismatches between a parameter and its buffers are programming errors
// and panic rather than broadcast silently.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense float64 tensor with a fixed shape.
type Tensor struct {
	shape []int
	data  []float64
}

// New builds a tensor around the given backing slice. The product of the
// shape dimensions must equal len(data).
func New(data []float64, shape ...int) *Tensor {
	n := numel(shape)
	if n != len(data) {
		panic(fmt.Sprintf("tensor: shape %v does not match %d elements", shape, len(data)))
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data}
}

// Zeros returns an all-zero tensor of the given shape.
func Zeros(shape ...int) *Tensor {
	return New(make([]float64, numel(shape)), shape...)
}

// ZerosLike returns an all-zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return Zeros(t.shape...)
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("tensor: invalid dimension %d in shape %v", d, shape))
		}
		n *= d
	}
	return n
}

// Shape returns the tensor's dimensions. The returned slice must not be
// modified.
func (t *Tensor) Shape() []int { return t.shape }

// Numel returns the number of elements.
func (t *Tensor) Numel() int { return len(t.data) }

// Data returns the flat backing slice. Mutations are visible to the tensor.
func (t *Tensor) Data() []float64 { return t.data }

// At returns the element at flat index i.
func (t *Tensor) At(i int) float64 { return t.data[i] }

// Set stores v at flat index i.
func (t *Tensor) Set(i int, v float64) { t.data[i] = v }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return New(data, t.shape...)
}

// Zero sets every element to zero.
func (t *Tensor) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

// IsZero reports whether every element is exactly zero.
func (t *Tensor) IsZero() bool {
	for _, v := range t.data {
		if v != 0 {
			return false
		}
	}
	return true
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i, d := range t.shape {
		if o.shape[i] != d {
			return false
		}
	}
	return true
}

// mustMatch panics when the shapes differ.
func (t *Tensor) mustMatch(o *Tensor) {
	if !t.SameShape(o) {
		panic(fmt.Sprintf("tensor: shape mismatch %v vs %v", t.shape, o.shape))
	}
}

// Add accumulates o into t element-wise.
func (t *Tensor) Add(o *Tensor) {
	t.mustMatch(o)
	floats.Add(t.data, o.data)
}

// Sub subtracts o from t element-wise.
func (t *Tensor) Sub(o *Tensor) {
	t.mustMatch(o)
	floats.Sub(t.data, o.data)
}

// AddScaled accumulates alpha*o into t element-wise.
func (t *Tensor) AddScaled(alpha float64, o *Tensor) {
	t.mustMatch(o)
	floats.AddScaled(t.data, alpha, o.data)
}

// Scale multiplies every element by alpha.
func (t *Tensor) Scale(alpha float64) {
	floats.Scale(alpha, t.data)
}

// EqualApprox reports whether a and b have the same shape and all elements
// agree within tol.
func EqualApprox(a, b *Tensor, tol float64) bool {
	if !a.SameShape(b) {
		return false
	}
	return floats.EqualApprox(a.data, b.data, tol)
}
