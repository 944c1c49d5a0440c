package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"UnitApart", []float32{0, 0}, []float32{1, 0}, 1},
		{"Mixed", []float32{1, 2}, []float32{4, 6}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-6)
		})
	}
}

func TestDot(t *testing.T) {
	assert.InDelta(t, float32(32), Dot([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-6)
	assert.Zero(t, Dot([]float32{1, 0}, []float32{0, 1}))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, float32(1), Similarity(0))
	assert.InDelta(t, 0.5, Similarity(1), 1e-6)
	assert.Greater(t, Similarity(0.5), Similarity(2.0))
}

func TestNormalizeL2InPlace(t *testing.T) {
	t.Run("UnitNorm", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.InDelta(t, 1.0, math.Sqrt(float64(Dot(v, v))), 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		v := []float32{0, 0, 0}
		assert.False(t, NormalizeL2InPlace(v))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.False(t, NormalizeL2InPlace(nil))
	})
}

func TestNormalizeL2Copy(t *testing.T) {
	src := []float32{2, 0}
	dst, ok := NormalizeL2Copy(src)
	require.True(t, ok)
	assert.Equal(t, float32(2), src[0])
	assert.Equal(t, float32(1), dst[0])
}

func TestSquaredL2MonotonicWithCosine(t *testing.T) {
	// On unit vectors: ||a-b||^2 = 2 - 2*cos(a,b).
	a, _ := NormalizeL2Copy([]float32{1, 0.2})
	b, _ := NormalizeL2Copy([]float32{1, 0.1})
	c, _ := NormalizeL2Copy([]float32{-1, 0.5})

	q, _ := NormalizeL2Copy([]float32{1, 0})
	assert.Less(t, SquaredL2(q, b), SquaredL2(q, a))
	assert.Less(t, SquaredL2(q, a), SquaredL2(q, c))
}
