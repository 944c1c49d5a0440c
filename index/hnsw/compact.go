package hnsw

import "context"

// Stats describes the index occupancy.
type Stats struct {
	Nodes          int     `json:"nodes"`
	Live           int     `json:"live"`
	Tombstones     int     `json:"tombstones"`
	TombstoneRatio float64 `json:"tombstone_ratio"`
	MaxLayer       int     `json:"max_layer"`
}

// Stats returns a point-in-time view of the graph.
func (h *Index) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		Nodes:    len(h.nodes),
		Live:     h.live,
		MaxLayer: h.maxLayer,
	}
	s.Tombstones = s.Nodes - s.Live
	if s.Nodes > 0 {
		s.TombstoneRatio = float64(s.Tombstones) / float64(s.Nodes)
	}
	return s
}

// ShouldCompact reports whether the tombstone ratio has crossed the
// configured threshold.
func (h *Index) ShouldCompact() bool {
	s := h.Stats()
	return s.Tombstones > 0 && s.TombstoneRatio > h.cfg.CompactionThreshold
}

// Rebuild constructs a fresh graph containing only live vectors and returns
// it together with the old-position to new-position remap. The receiver is
// not modified; the caller swaps the new graph in once dependent state has
// been rebased.
//
// Positions are reinserted in ascending order so rebuilds of the same graph
// with the same seed are reproducible.
func (h *Index) Rebuild(ctx context.Context) (*Index, map[uint32]uint32, error) {
	h.mu.RLock()
	type liveNode struct {
		pos uint32
		vec []float32
	}
	liveNodes := make([]liveNode, 0, h.live)
	for i, n := range h.nodes {
		if h.tombstones.Test(uint64(i)) {
			continue
		}
		liveNodes = append(liveNodes, liveNode{pos: uint32(i), vec: n.vector})
	}
	cfg := h.cfg
	h.mu.RUnlock()

	next, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}

	remap := make(map[uint32]uint32, len(liveNodes))
	for _, ln := range liveNodes {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pos, err := next.Insert(ctx, ln.vec)
		if err != nil {
			return nil, nil, err
		}
		remap[ln.pos] = pos
	}
	return next, remap, nil
}
