package hnsw

import (
	"fmt"
	"math"
)

// Config holds the graph construction and search parameters.
type Config struct {
	// Dimension is the fixed embedding dimension. Vectors of any other
	// length are rejected.
	Dimension int

	// M is the maximum number of neighbors per node on layers above 0.
	// Layer 0 allows 2*M.
	M int

	// EFConstruction is the candidate list size used while inserting.
	EFConstruction int

	// EFSearch is the default candidate list size for queries. It is
	// clamped up to k per search.
	EFSearch int

	// Heuristic enables relative-neighborhood pruning during neighbor
	// selection instead of picking the M closest.
	Heuristic bool

	// CompactionThreshold is the tombstone ratio above which ShouldCompact
	// reports true.
	CompactionThreshold float64

	// Seed seeds the layer RNG. Zero means a time-based seed.
	Seed int64
}

// DefaultConfig returns the construction parameters tuned for 768-dim text
// embeddings: M=32, efConstruction=200, efSearch=100.
func DefaultConfig(dimension int) Config {
	return Config{
		Dimension:           dimension,
		M:                   32,
		EFConstruction:      200,
		EFSearch:            100,
		Heuristic:           true,
		CompactionThreshold: 0.25,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("hnsw: dimension must be positive, got %d", c.Dimension)
	}
	if c.M < 2 {
		return fmt.Errorf("hnsw: M must be at least 2, got %d", c.M)
	}
	if c.EFConstruction < c.M {
		return fmt.Errorf("hnsw: efConstruction %d must be >= M %d", c.EFConstruction, c.M)
	}
	if c.EFSearch <= 0 {
		return fmt.Errorf("hnsw: efSearch must be positive, got %d", c.EFSearch)
	}
	if c.CompactionThreshold <= 0 || c.CompactionThreshold >= 1 {
		return fmt.Errorf("hnsw: compaction threshold must be in (0,1), got %g", c.CompactionThreshold)
	}
	return nil
}

// mL is the level normalization factor 1/ln(M).
func (c Config) mL() float64 {
	return 1 / math.Log(float64(c.M))
}

// maxConn returns the neighbor cap for a layer.
func (c Config) maxConn(layer int) int {
	if layer == 0 {
		return 2 * c.M
	}
	return c.M
}
