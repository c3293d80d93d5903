// Package fl contains the simulated federated-learning collaborators: a
// small classification model, synthetic per-user datasets, and the local
// update simulator that produces one gradient per sampled client and hands
// it to the aggregation wrapper.
package fl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/KAI-YUE/GCFL/optimizer"
	"github.com/KAI-YUE/GCFL/tensor"
)

// SoftmaxRegression is a single-layer classifier trained with
// cross-entropy loss. It is the global model shared across simulated
// clients; its parameters are referenced by the aggregation wrapper.
type SoftmaxRegression struct {
	dimIn  int
	dimOut int
	weight *optimizer.Parameter // shape [dimIn, dimOut]
	bias   *optimizer.Parameter // shape [dimOut]
}

// NewSoftmaxRegression creates a zero-initialized classifier.
func NewSoftmaxRegression(dimIn, dimOut int) (*SoftmaxRegression, error) {
	if dimIn <= 0 || dimOut <= 1 {
		return nil, fmt.Errorf("fl: invalid model dimensions %dx%d", dimIn, dimOut)
	}
	return &SoftmaxRegression{
		dimIn:  dimIn,
		dimOut: dimOut,
		weight: &optimizer.Parameter{Name: "weight", Value: tensor.Zeros(dimIn, dimOut)},
		bias:   &optimizer.Parameter{Name: "bias", Value: tensor.Zeros(dimOut)},
	}, nil
}

// Parameters returns the learnable parameters in a stable order.
func (m *SoftmaxRegression) Parameters() []*optimizer.Parameter {
	return []*optimizer.Parameter{m.weight, m.bias}
}

// NumParameters returns the total trainable element count.
func (m *SoftmaxRegression) NumParameters() int {
	return m.weight.Value.Numel() + m.bias.Value.Numel()
}

// logits computes inputs·W + b for a batch.
func (m *SoftmaxRegression) logits(inputs *mat.Dense) *mat.Dense {
	rows, cols := inputs.Dims()
	if cols != m.dimIn {
		panic(fmt.Sprintf("fl: input width %d does not match model dim %d", cols, m.dimIn))
	}
	w := mat.NewDense(m.dimIn, m.dimOut, m.weight.Value.Data())
	out := mat.NewDense(rows, m.dimOut, nil)
	out.Mul(inputs, w)
	b := m.bias.Value.Data()
	for r := 0; r < rows; r++ {
		for c := 0; c < m.dimOut; c++ {
			out.Set(r, c, out.At(r, c)+b[c])
		}
	}
	return out
}

// softmaxInPlace converts logits rows into probabilities, shifted by the
// row maximum for numerical stability.
func softmaxInPlace(logits *mat.Dense) {
	rows, cols := logits.Dims()
	for r := 0; r < rows; r++ {
		maxv := logits.At(r, 0)
		for c := 1; c < cols; c++ {
			if v := logits.At(r, c); v > maxv {
				maxv = v
			}
		}
		sum := 0.0
		for c := 0; c < cols; c++ {
			e := math.Exp(logits.At(r, c) - maxv)
			logits.Set(r, c, e)
			sum += e
		}
		for c := 0; c < cols; c++ {
			logits.Set(r, c, logits.At(r, c)/sum)
		}
	}
}

// ComputeGradients runs one forward/backward pass over the batch and
// accumulates cross-entropy gradients into the parameters. It returns the
// mean batch loss.
func (m *SoftmaxRegression) ComputeGradients(inputs *mat.Dense, labels []int) (float64, error) {
	rows, _ := inputs.Dims()
	if rows == 0 || rows != len(labels) {
		return 0, fmt.Errorf("fl: batch of %d rows with %d labels", rows, len(labels))
	}

	probs := m.logits(inputs)
	softmaxInPlace(probs)

	loss := 0.0
	for r, label := range labels {
		if label < 0 || label >= m.dimOut {
			return 0, fmt.Errorf("fl: label %d out of range [0, %d)", label, m.dimOut)
		}
		loss -= math.Log(math.Max(probs.At(r, label), 1e-12))
		probs.Set(r, label, probs.At(r, label)-1)
	}
	loss /= float64(rows)
	probs.Scale(1/float64(rows), probs)

	if m.weight.Grad == nil {
		m.weight.Grad = tensor.ZerosLike(m.weight.Value)
	}
	if m.bias.Grad == nil {
		m.bias.Grad = tensor.ZerosLike(m.bias.Value)
	}

	gradW := mat.NewDense(m.dimIn, m.dimOut, nil)
	gradW.Mul(inputs.T(), probs)
	m.weight.Grad.Add(tensor.New(denseData(gradW), m.dimIn, m.dimOut))

	gradB := m.bias.Grad.Data()
	for c := 0; c < m.dimOut; c++ {
		for r := 0; r < rows; r++ {
			gradB[c] += probs.At(r, c)
		}
	}
	return loss, nil
}

// Predict returns the argmax class per batch row.
func (m *SoftmaxRegression) Predict(inputs *mat.Dense) []int {
	logits := m.logits(inputs)
	rows, cols := logits.Dims()
	out := make([]int, rows)
	for r := 0; r < rows; r++ {
		best, bestv := 0, logits.At(r, 0)
		for c := 1; c < cols; c++ {
			if v := logits.At(r, c); v > bestv {
				best, bestv = c, v
			}
		}
		out[r] = best
	}
	return out
}

// Accuracy evaluates the model over a full dataset.
func Accuracy(m *SoftmaxRegression, d *Dataset) float64 {
	if d.Len() == 0 {
		return 0
	}
	predicted := m.Predict(d.Inputs)
	correct := 0
	for i, p := range predicted {
		if p == d.Labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(d.Len())
}

// denseData extracts the backing slice of a Dense built without one.
func denseData(d *mat.Dense) []float64 {
	return d.RawMatrix().Data
}
