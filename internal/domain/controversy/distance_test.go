package controversy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Controversy-Insight/pkg/errors"
)

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosineSimilarity_Identical(t *testing.T) {
	sim, err := CosineSimilarity([]float32{3, 4}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-12)
}

func TestCosineSimilarity_ScaleInvariant(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{25, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-12)
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-12)
}

func TestCosineSimilarity_ZeroNormPolicy(t *testing.T) {
	// A zero-norm vector is maximally dissimilar to everything.
	sim, err := CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestCosineDistance_Range(t *testing.T) {
	d, err := CosineDistance([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	d, err = CosineDistance([]float32{1, 2}, []float32{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, d, 1e-12)

	d, err = CosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d, 1e-12)
}

func TestCosineDistance_ZeroNormIsMaxDistanceOne(t *testing.T) {
	d, err := CosineDistance([]float32{0, 0}, []float32{5, 7})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)

	d, err = CosineDistance([]float32{0, 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestCosineDistance_HalfwayVector(t *testing.T) {
	// distance([1,0], [0.5,0.5]) = 1 − 0.5/(1 · √0.5) = 1 − √2/2 ≈ 0.29289.
	d, err := CosineDistance([]float32{1, 0}, []float32{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 1-math.Sqrt2/2, d, 1e-9)
}

func TestCosineDistance_DimensionMismatch(t *testing.T) {
	_, err := CosineDistance([]float32{1, 0}, []float32{1, 0, 0})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeVectorLengthMismatch))
}

func TestCosineDistance_Symmetric(t *testing.T) {
	a := []float32{0.3, -1.7, 2.2, 0.01}
	b := []float32{1.1, 0.4, -0.9, 3.5}

	dab, err := CosineDistance(a, b)
	require.NoError(t, err)
	dba, err := CosineDistance(b, a)
	require.NoError(t, err)
	assert.Equal(t, dab, dba)
}
