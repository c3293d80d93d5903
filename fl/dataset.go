package fl

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dataset is a labeled batch of samples, one row per sample.
type Dataset struct {
	Inputs *mat.Dense
	Labels []int
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Labels) }

// Subset materializes the rows at the given indices as a new dataset view.
func (d *Dataset) Subset(indices []int) *Dataset {
	_, cols := d.Inputs.Dims()
	inputs := mat.NewDense(len(indices), cols, nil)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		inputs.SetRow(i, mat.Row(nil, idx, d.Inputs))
		labels[i] = d.Labels[idx]
	}
	return &Dataset{Inputs: inputs, Labels: labels}
}

// SyntheticClassification draws a deterministic Gaussian-cluster
// classification problem: one cluster center per class, unit-variance
// noise around it. The same seed always yields the same data, which keeps
// experiment runs reproducible.
func SyntheticClassification(samples, features, classes int, seed int64) (*Dataset, error) {
	if samples <= 0 || features <= 0 || classes <= 1 {
		return nil, fmt.Errorf("fl: invalid dataset dimensions: %d samples, %d features, %d classes",
			samples, features, classes)
	}
	rng := rand.New(rand.NewSource(seed))

	centers := make([][]float64, classes)
	for c := range centers {
		center := make([]float64, features)
		for f := range center {
			center[f] = rng.NormFloat64() * 3
		}
		centers[c] = center
	}

	inputs := mat.NewDense(samples, features, nil)
	labels := make([]int, samples)
	row := make([]float64, features)
	for s := 0; s < samples; s++ {
		label := rng.Intn(classes)
		for f := 0; f < features; f++ {
			row[f] = centers[label][f] + rng.NormFloat64()
		}
		inputs.SetRow(s, row)
		labels[s] = label
	}
	return &Dataset{Inputs: inputs, Labels: labels}, nil
}

// AssignUserData splits the dataset into per-user shards of sample
// indices. Samples are shuffled first so shards stay identically
// distributed.
func AssignUserData(d *Dataset, users int, seed int64) ([][]int, error) {
	if users <= 0 {
		return nil, fmt.Errorf("fl: user count must be positive, got %d", users)
	}
	if d.Len() < users {
		return nil, fmt.Errorf("fl: %d samples cannot cover %d users", d.Len(), users)
	}

	rng := rand.New(rand.NewSource(seed))
	indices := rng.Perm(d.Len())

	shards := make([][]int, users)
	per := d.Len() / users
	for u := 0; u < users; u++ {
		start := u * per
		end := start + per
		if u == users-1 {
			end = d.Len()
		}
		shards[u] = indices[start:end]
	}
	return shards, nil
}

// UserResource is the per-client assignment for one round: a batch view of
// the user's shard plus the batch size the local step runs with.
type UserResource struct {
	UserID    int
	BatchSize int
	Samples   *Dataset
}

// AssignUserResource draws one local batch from the user's shard. Batches
// smaller than the shard are sampled without replacement from rng.
func AssignUserResource(d *Dataset, shard []int, userID, batchSize int, rng *rand.Rand) UserResource {
	if batchSize <= 0 || batchSize >= len(shard) {
		return UserResource{UserID: userID, BatchSize: batchSize, Samples: d.Subset(shard)}
	}
	picked := make([]int, batchSize)
	for i, j := range rng.Perm(len(shard))[:batchSize] {
		picked[i] = shard[j]
	}
	return UserResource{UserID: userID, BatchSize: batchSize, Samples: d.Subset(picked)}
}
