// Package dataset splits the labelled segment list into training and
// validation subsets for one training run.
package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/HatiCode/morepork/pkg/samples"
)

// Labels used for the binary classifier.
const (
	PositiveLabel = 1.0
	NegativeLabel = 0.0
)

// Sample is a segment with its target label.
type Sample struct {
	samples.Segment
	Label float64 `json:"label"`
}

// Labelled flattens a set into a single list, positives first.
func Labelled(set *samples.Set) []Sample {
	out := make([]Sample, 0, set.Len())
	for _, seg := range set.Positive {
		out = append(out, Sample{Segment: seg, Label: PositiveLabel})
	}
	for _, seg := range set.Negative {
		out = append(out, Sample{Segment: seg, Label: NegativeLabel})
	}
	return out
}

// Counts returns the training and validation sizes for total samples.
// The validation share is rounded down to a whole number of batches.
func Counts(total int, trainFraction float64, batchSize int) (train, validation int) {
	if batchSize <= 0 || total <= 0 {
		return total, 0
	}
	batches := math.Floor(float64(total) * (1 - trainFraction) / float64(batchSize))
	validation = int(batches) * batchSize
	if validation < 0 {
		validation = 0
	}
	return total - validation, validation
}

// Steps returns the number of whole batches in count samples.
func Steps(count, batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return count / batchSize
}

// Split permutes samples with rng and returns the first trainCount as the
// training subset and the rest as the validation subset. The input slice is
// not modified.
func Split(all []Sample, trainCount int, rng *rand.Rand) (train, validation []Sample, err error) {
	if trainCount < 0 || trainCount > len(all) {
		return nil, nil, fmt.Errorf("train count %d out of range [0, %d]", trainCount, len(all))
	}

	permuted := make([]Sample, len(all))
	for i, j := range rng.Perm(len(all)) {
		permuted[i] = all[j]
	}

	return permuted[:trainCount:trainCount], permuted[trainCount:], nil
}
