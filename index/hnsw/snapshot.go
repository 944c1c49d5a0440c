package hnsw

// GraphSnapshot is the serializable form of an Index. The engine embeds it
// in its snapshot container; the adjacency is persisted as-is so a restored
// graph answers queries identically to the one saved.
type GraphSnapshot struct {
	Config     Config       `json:"config"`
	Vectors    [][]float32  `json:"vectors"`
	Layers     []int32      `json:"layers"`
	Neighbors  [][][]uint32 `json:"neighbors"`
	EntryPoint uint32       `json:"entry_point"`
	MaxLayer   int          `json:"max_layer"`
	HasEntry   bool         `json:"has_entry"`
	Live       int          `json:"live"`
	Tombstones []uint64     `json:"tombstones"`
}

// Snapshot exports the full graph state.
func (h *Index) Snapshot() *GraphSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := &GraphSnapshot{
		Config:     h.cfg,
		Vectors:    make([][]float32, len(h.nodes)),
		Layers:     make([]int32, len(h.nodes)),
		Neighbors:  make([][][]uint32, len(h.nodes)),
		EntryPoint: h.entryPoint,
		MaxLayer:   h.maxLayer,
		HasEntry:   h.hasEntry,
		Live:       h.live,
		Tombstones: h.tombstones.Snapshot(),
	}
	for i, n := range h.nodes {
		vec := make([]float32, len(n.vector))
		copy(vec, n.vector)
		s.Vectors[i] = vec
		s.Layers[i] = n.layer

		layers := make([][]uint32, len(n.neighbors))
		for l, nbs := range n.neighbors {
			out := make([]uint32, len(nbs))
			copy(out, nbs)
			layers[l] = out
		}
		s.Neighbors[i] = layers
	}
	return s
}

// FromSnapshot reconstructs an Index from a snapshot. The graph is validated
// before it is returned; a snapshot with dangling adjacency fails with
// ErrCorrupted.
func FromSnapshot(s *GraphSnapshot) (*Index, error) {
	h, err := New(s.Config)
	if err != nil {
		return nil, err
	}
	if len(s.Vectors) != len(s.Layers) || len(s.Vectors) != len(s.Neighbors) {
		return nil, ErrCorrupted
	}

	h.nodes = make([]*node, len(s.Vectors))
	for i := range s.Vectors {
		h.nodes[i] = &node{
			vector:    s.Vectors[i],
			layer:     s.Layers[i],
			neighbors: s.Neighbors[i],
		}
	}
	h.entryPoint = s.EntryPoint
	h.maxLayer = s.MaxLayer
	h.hasEntry = s.HasEntry
	h.live = s.Live
	h.tombstones.Restore(s.Tombstones)
	h.tombstones.Grow(uint64(len(h.nodes)))

	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}
