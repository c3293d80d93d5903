package fl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// Test 1: Model construction and parameter layout
func TestNewSoftmaxRegression(t *testing.T) {
	m, err := NewSoftmaxRegression(4, 3)
	require.NoError(t, err)
	require.Equal(t, 4*3+3, m.NumParameters())

	params := m.Parameters()
	require.Len(t, params, 2)
	require.Equal(t, "weight", params[0].Name)
	require.Equal(t, "bias", params[1].Name)
	require.Equal(t, []int{4, 3}, params[0].Value.Shape())
	require.Equal(t, []int{3}, params[1].Value.Shape())

	_, err = NewSoftmaxRegression(0, 3)
	require.Error(t, err)
	_, err = NewSoftmaxRegression(4, 1)
	require.Error(t, err)
}

// Test 2: Cross-entropy gradients of the zero-initialized model
func TestComputeGradients(t *testing.T) {
	m, err := NewSoftmaxRegression(2, 2)
	require.NoError(t, err)

	// Zero weights give uniform probabilities, so loss is ln 2 and the
	// backward pass is (probs − onehot) per sample.
	inputs := mat.NewDense(1, 2, []float64{1, 2})
	loss, err := m.ComputeGradients(inputs, []int{0})
	require.NoError(t, err)
	require.InDelta(t, math.Log(2), loss, 1e-12)

	gradW := m.Parameters()[0].Grad.Data()
	require.InDelta(t, -0.5, gradW[0], 1e-12)
	require.InDelta(t, 0.5, gradW[1], 1e-12)
	require.InDelta(t, -1.0, gradW[2], 1e-12)
	require.InDelta(t, 1.0, gradW[3], 1e-12)

	gradB := m.Parameters()[1].Grad.Data()
	require.InDelta(t, -0.5, gradB[0], 1e-12)
	require.InDelta(t, 0.5, gradB[1], 1e-12)
}

// Test 3: Gradients accumulate across backward passes
func TestComputeGradientsAccumulates(t *testing.T) {
	m, err := NewSoftmaxRegression(2, 2)
	require.NoError(t, err)

	inputs := mat.NewDense(1, 2, []float64{1, 2})
	_, err = m.ComputeGradients(inputs, []int{0})
	require.NoError(t, err)
	_, err = m.ComputeGradients(inputs, []int{0})
	require.NoError(t, err)

	gradB := m.Parameters()[1].Grad.Data()
	require.InDelta(t, -1.0, gradB[0], 1e-12)
	require.InDelta(t, 1.0, gradB[1], 1e-12)
}

// Test 4: Invalid batches are rejected
func TestComputeGradientsValidation(t *testing.T) {
	m, err := NewSoftmaxRegression(2, 2)
	require.NoError(t, err)

	inputs := mat.NewDense(1, 2, []float64{1, 2})

	// Label count mismatch
	_, err = m.ComputeGradients(inputs, []int{0, 1})
	require.Error(t, err)

	// Label out of range
	_, err = m.ComputeGradients(inputs, []int{2})
	require.Error(t, err)
	_, err = m.ComputeGradients(inputs, []int{-1})
	require.Error(t, err)
}

// Test 5: Prediction follows the decision boundary
func TestPredictAndAccuracy(t *testing.T) {
	m, err := NewSoftmaxRegression(1, 2)
	require.NoError(t, err)

	// w = [1, −1]: positive inputs score class 0, negative score class 1
	w := m.Parameters()[0].Value.Data()
	w[0], w[1] = 1, -1

	inputs := mat.NewDense(2, 1, []float64{1, -1})
	require.Equal(t, []int{0, 1}, m.Predict(inputs))

	d := &Dataset{Inputs: inputs, Labels: []int{0, 1}}
	require.Equal(t, 1.0, Accuracy(m, d))

	d.Labels = []int{1, 1}
	require.Equal(t, 0.5, Accuracy(m, d))
}

// Test 6: Full-batch gradient descent separates the synthetic clusters
func TestTrainingImproves(t *testing.T) {
	data, err := SyntheticClassification(200, 4, 3, 1)
	require.NoError(t, err)

	m, err := NewSoftmaxRegression(4, 3)
	require.NoError(t, err)

	initialLoss, err := m.ComputeGradients(data.Inputs, data.Labels)
	require.NoError(t, err)
	for _, p := range m.Parameters() {
		p.ZeroGrad()
	}

	finalLoss := initialLoss
	for i := 0; i < 100; i++ {
		loss, err := m.ComputeGradients(data.Inputs, data.Labels)
		require.NoError(t, err)
		for _, p := range m.Parameters() {
			p.Value.AddScaled(-0.1, p.Grad)
			p.ZeroGrad()
		}
		finalLoss = loss
	}

	require.Less(t, finalLoss, initialLoss)
	require.Greater(t, Accuracy(m, data), 0.7)
}
