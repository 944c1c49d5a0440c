// Package distance provides the vector distance kernels used by the index.
//
// Embeddings are L2-normalized on ingest, so squared L2 distance is
// monotonic with cosine distance and the two orderings agree. Scores exposed
// to callers use the Similarity transform.
package distance

import (
	"math"
	"slices"
)

// SquaredL2 returns the squared Euclidean distance between a and b.
// Assumes equal length; the caller validates dimensions.
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Dot returns the dot product of a and b.
// Assumes equal length; the caller validates dimensions.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Similarity maps a squared L2 distance to a score in (0, 1], where 1 means
// identical vectors. Scores decay as 1/(1+d).
func Similarity(d float32) float32 {
	return 1 / (1 + d)
}

// NormalizeL2InPlace scales v to unit L2 norm. Returns false if v is empty
// or has zero norm, in which case v is left unchanged.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src, or false if src has zero
// L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
