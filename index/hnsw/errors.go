package hnsw

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyVector is returned when a zero-length or zero-norm vector is
	// inserted or queried.
	ErrEmptyVector = errors.New("hnsw: vector is empty or has zero norm")

	// ErrInvalidK is returned when k < 1.
	ErrInvalidK = errors.New("hnsw: k must be at least 1")

	// ErrCorrupted is returned by Validate when the graph references
	// positions that do not exist.
	ErrCorrupted = errors.New("hnsw: graph is corrupted")
)

// DimensionMismatchError is returned when a vector's length differs from the
// configured dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("hnsw: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
