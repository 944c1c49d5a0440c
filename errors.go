package lexvec

import (
	"errors"
	"fmt"

	"github.com/docketsearch/lexvec/engine"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/planner"
	"github.com/docketsearch/lexvec/store"
)

var (
	// ErrNotFound is returned when a record ID is unknown.
	ErrNotFound = errors.New("record not found")

	// ErrRecordExists is returned when adding a record whose ID is already
	// stored. Use UpdateRecord to replace it.
	ErrRecordExists = errors.New("record already exists")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidEFValue is returned when a search beam width is negative.
	ErrInvalidEFValue = errors.New("ef must not be negative")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrWriterContention is returned by TryAdd-style operations when the
	// writer lock is held.
	ErrWriterContention = errors.New("writer busy")

	// ErrIndexCorruption is returned when graph validation fails.
	ErrIndexCorruption = errors.New("index corruption detected")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, store.ErrExists) {
		return fmt.Errorf("%w: %w", ErrRecordExists, err)
	}
	if errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrEngineClosed, err)
	}
	if errors.Is(err, engine.ErrWriterContention) {
		return fmt.Errorf("%w: %w", ErrWriterContention, err)
	}
	if errors.Is(err, hnsw.ErrCorrupted) {
		return fmt.Errorf("%w: %w", ErrIndexCorruption, err)
	}
	if errors.Is(err, hnsw.ErrInvalidK) || errors.Is(err, planner.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	var dm *hnsw.DimensionMismatchError
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
