// Package controversy implements the controversy-score stage: grouping answer
// vectors by parent question and computing mean pairwise cosine distance
// within each group.
package controversy

import (
	"fmt"
	"math"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

// CosineSimilarity returns the cosine of the angle between two vectors of
// equal dimension.  Accumulation is in float64.
//
// Zero-norm policy: if either vector has zero norm the similarity is defined
// as 0, which makes the corresponding distance exactly 1.  A zero vector
// carries no direction, so it is treated as maximally dissimilar to
// everything, including another zero vector.  This is a fixed contract;
// callers and tests may rely on it.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New(errors.ErrCodeVectorLengthMismatch,
			fmt.Sprintf("vector dimensions differ: %d vs %d", len(a), len(b)))
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// CosineDistance returns 1 − CosineSimilarity.  For non-negative embeddings
// the range is [0, 1]; with mixed-sign coordinates it can reach 2.
func CosineDistance(a, b []float32) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}
