// Package hnsw implements a Hierarchical Navigable Small World proximity
// graph over L2-normalized vectors, with tombstone deletes and rebuild-based
// compaction.
//
// Writes are expected to come from a single goroutine (the coordinator);
// searches may run concurrently with each other and with writes.
package hnsw

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/docketsearch/lexvec/distance"
	"github.com/docketsearch/lexvec/internal/bitset"
	"github.com/docketsearch/lexvec/internal/queue"
)

// FilterFunc reports whether a position is eligible as a search result.
type FilterFunc func(pos uint32) bool

// SearchResult is one neighbor returned by a search, closest first.
type SearchResult struct {
	Position uint32
	Distance float32
}

type node struct {
	vector []float32
	layer  int32
	// neighbors[l] holds the adjacency list at layer l, 0 <= l <= layer.
	neighbors [][]uint32
}

// Index is the in-memory HNSW graph.
type Index struct {
	cfg Config

	mu         sync.RWMutex
	nodes      []*node
	entryPoint uint32
	maxLayer   int
	hasEntry   bool
	live       int

	// tombstones marks deleted positions. Tombstoned nodes stay in the
	// graph as routing bridges until the next rebuild.
	tombstones *bitset.BitSet

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an empty index with the given configuration.
func New(cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Index{
		cfg:        cfg,
		tombstones: bitset.New(1024),
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Config returns the index configuration.
func (h *Index) Config() Config { return h.cfg }

// Len returns the total number of nodes, including tombstoned ones.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Live returns the number of non-tombstoned nodes.
func (h *Index) Live() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.live
}

// prepareVector validates the dimension and returns a normalized copy.
func (h *Index) prepareVector(v []float32) ([]float32, error) {
	if len(v) != h.cfg.Dimension {
		return nil, &DimensionMismatchError{Expected: h.cfg.Dimension, Actual: len(v)}
	}
	q, ok := distance.NormalizeL2Copy(v)
	if !ok {
		return nil, ErrEmptyVector
	}
	return q, nil
}

// determineLayer draws a layer from the exponential distribution
// floor(-ln(r) * mL).
func (h *Index) determineLayer() int {
	h.rngMu.Lock()
	r := h.rng.Float64()
	h.rngMu.Unlock()
	for r == 0 {
		h.rngMu.Lock()
		r = h.rng.Float64()
		h.rngMu.Unlock()
	}
	return int(math.Floor(-math.Log(r) * h.cfg.mL()))
}

// Insert adds a vector and returns its position. The vector is copied and
// normalized; the caller's slice is not retained.
func (h *Index) Insert(ctx context.Context, vector []float32) (uint32, error) {
	q, err := h.prepareVector(vector)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	layer := h.determineLayer()

	h.mu.Lock()
	defer h.mu.Unlock()

	pos := uint32(len(h.nodes))
	n := &node{
		vector:    q,
		layer:     int32(layer),
		neighbors: make([][]uint32, layer+1),
	}
	h.nodes = append(h.nodes, n)
	h.tombstones.Grow(uint64(len(h.nodes)))
	h.live++

	if !h.hasEntry {
		h.entryPoint = pos
		h.maxLayer = layer
		h.hasEntry = true
		return pos, nil
	}

	curr := h.entryPoint
	currDist := distance.SquaredL2(q, h.nodes[curr].vector)

	// Greedy descent through layers above the new node's top layer.
	for l := h.maxLayer; l > layer; l-- {
		curr, currDist = h.greedyStepLocked(q, curr, currDist, l)
	}

	// Link the new node layer by layer, nearest candidates first.
	top := layer
	if top > h.maxLayer {
		top = h.maxLayer
	}
	for l := top; l >= 0; l-- {
		results := h.searchLayerLocked(context.Background(), q, curr, currDist, h.cfg.EFConstruction, l, nil, true)

		// Seed the next layer before selection; selection pops candidates
		// out of the heap.
		if best, ok := results.Min(); ok {
			curr, currDist = best.Position, best.Distance
		}

		neighbors := h.selectNeighborsLocked(q, results, h.cfg.M)
		n.neighbors[l] = neighbors
		for _, nb := range neighbors {
			h.addConnectionLocked(nb, pos, l)
		}
	}

	if layer > h.maxLayer {
		h.entryPoint = pos
		h.maxLayer = layer
	}

	return pos, nil
}

// Delete tombstones a position. Reports whether the position was live.
// Deleting an unknown or already tombstoned position is a no-op.
func (h *Index) Delete(pos uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if int(pos) >= len(h.nodes) || h.tombstones.Test(uint64(pos)) {
		return false
	}
	h.tombstones.Set(uint64(pos))
	h.live--

	// A tombstoned entry point still routes searches, but prefer a live
	// one when available so an all-live graph never starts on a grave.
	if pos == h.entryPoint {
		h.recoverEntryPointLocked()
	}
	return true
}

// Deleted reports whether a position is tombstoned.
func (h *Index) Deleted(pos uint32) bool {
	return h.tombstones.Test(uint64(pos))
}

// recoverEntryPointLocked moves the entry point to the highest-layer live
// node. If every node is tombstoned the entry point is left in place; it
// still works as a traversal root.
func (h *Index) recoverEntryPointLocked() {
	best := -1
	bestLayer := -1
	for i, n := range h.nodes {
		if h.tombstones.Test(uint64(i)) {
			continue
		}
		if int(n.layer) > bestLayer {
			best, bestLayer = i, int(n.layer)
		}
	}
	if best >= 0 {
		h.entryPoint = uint32(best)
		h.maxLayer = bestLayer
	}
}

// addConnectionLocked links pos into target's adjacency at the given layer,
// pruning with the neighbor heuristic when the cap is exceeded.
func (h *Index) addConnectionLocked(target, pos uint32, layer int) {
	t := h.nodes[target]
	t.neighbors[layer] = append(t.neighbors[layer], pos)

	limit := h.cfg.maxConn(layer)
	if len(t.neighbors[layer]) <= limit {
		return
	}

	cands := queue.NewMin(len(t.neighbors[layer]))
	for _, nb := range t.neighbors[layer] {
		cands.Push(queue.Item{Position: nb, Distance: distance.SquaredL2(t.vector, h.nodes[nb].vector)})
	}
	t.neighbors[layer] = h.selectNeighborsLocked(t.vector, cands, limit)
}

// Validate scans the adjacency lists for references outside the node table.
// A failure indicates on-disk or in-memory corruption; the coordinator
// responds by forcing a rebuild.
func (h *Index) Validate() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := uint32(len(h.nodes))
	if h.hasEntry && h.entryPoint >= n {
		return ErrCorrupted
	}
	for _, nd := range h.nodes {
		if len(nd.neighbors) != int(nd.layer)+1 {
			return ErrCorrupted
		}
		for _, layer := range nd.neighbors {
			for _, nb := range layer {
				if nb >= n {
					return ErrCorrupted
				}
			}
		}
	}
	return nil
}
