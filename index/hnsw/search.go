package hnsw

import (
	"context"
	"sync"

	"github.com/docketsearch/lexvec/distance"
	"github.com/docketsearch/lexvec/internal/queue"
	"github.com/docketsearch/lexvec/internal/visited"
)

// SearchOptions tune a single query.
type SearchOptions struct {
	// EF overrides the candidate list size. Zero uses the configured
	// EFSearch; values below k are clamped to k.
	EF int

	// Filter restricts results to eligible positions. Ineligible nodes are
	// still traversed so the graph stays navigable under selective filters.
	Filter FilterFunc
}

// searcher bundles the scratch state one query needs. Pooled to keep
// searches allocation-free at steady state.
type searcher struct {
	visited    *visited.Set
	candidates *queue.PriorityQueue // min-heap: frontier, closest first
	results    *queue.PriorityQueue // max-heap: best ef found, worst on top
}

var searcherPool = sync.Pool{
	New: func() any {
		return &searcher{
			visited:    visited.New(1024),
			candidates: queue.NewMin(256),
			results:    queue.NewMax(256),
		}
	},
}

func acquireSearcher(capacity int) *searcher {
	s := searcherPool.Get().(*searcher)
	s.visited.EnsureCapacity(capacity)
	return s
}

func releaseSearcher(s *searcher) {
	s.visited.Reset()
	s.candidates.Reset()
	s.results.Reset()
	searcherPool.Put(s)
}

// Search returns up to k nearest live positions for the query vector,
// closest first. When the context deadline expires mid-traversal the best
// results found so far are returned without error.
func (h *Index) Search(ctx context.Context, query []float32, k int, opts SearchOptions) ([]SearchResult, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	q, err := h.prepareVector(query)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry {
		return nil, nil
	}

	ef := h.determineEF(k, opts.EF)

	curr := h.entryPoint
	currDist := distance.SquaredL2(q, h.nodes[curr].vector)
	for l := h.maxLayer; l >= 1; l-- {
		curr, currDist = h.greedyStepLocked(q, curr, currDist, l)
	}

	res := h.searchLayerLocked(ctx, q, curr, currDist, ef, 0, opts.Filter, false)

	n := res.Len()
	if n > k {
		n = k
	}
	out := make([]SearchResult, 0, n)
	for res.Len() > 0 && len(out) < k {
		it, _ := res.Pop()
		out = append(out, SearchResult{Position: it.Position, Distance: it.Distance})
	}
	return out, nil
}

// determineEF clamps the candidate list size to at least k.
func (h *Index) determineEF(k, ef int) int {
	if ef <= 0 {
		ef = h.cfg.EFSearch
	}
	if ef < k {
		ef = k
	}
	return ef
}

// greedyStepLocked walks to the neighbor closest to q at the given layer
// until no neighbor improves on the current distance.
func (h *Index) greedyStepLocked(q []float32, curr uint32, currDist float32, layer int) (uint32, float32) {
	for {
		improved := false
		for _, nb := range h.nodes[curr].neighbors[layer] {
			if d := distance.SquaredL2(q, h.nodes[nb].vector); d < currDist {
				curr, currDist = nb, d
				improved = true
			}
		}
		if !improved {
			return curr, currDist
		}
	}
}

// searchLayerLocked runs the ef-bounded best-first search at one layer and
// returns a min-heap of eligible results. The entry node always seeds the
// frontier, even when tombstoned or filtered out, so traversal can escape
// an ineligible region. includeTombstones is set on the construction path,
// where tombstoned nodes are still valid link targets.
func (h *Index) searchLayerLocked(ctx context.Context, q []float32, entry uint32, entryDist float32, ef, layer int, filter FilterFunc, includeTombstones bool) *queue.PriorityQueue {
	s := acquireSearcher(len(h.nodes))
	defer releaseSearcher(s)

	eligible := func(pos uint32) bool {
		if !includeTombstones && h.tombstones.Test(uint64(pos)) {
			return false
		}
		return filter == nil || filter(pos)
	}

	s.visited.Visit(entry)
	s.candidates.Push(queue.Item{Position: entry, Distance: entryDist})
	if eligible(entry) {
		s.results.Push(queue.Item{Position: entry, Distance: entryDist})
	}

	steps := 0
	for s.candidates.Len() > 0 {
		steps++
		if steps&63 == 0 && ctx.Err() != nil {
			break
		}

		curr, _ := s.candidates.Pop()
		if worst, ok := s.results.Top(); ok && s.results.Len() >= ef && curr.Distance > worst.Distance {
			break
		}

		for _, nb := range h.nodes[curr.Position].neighbors[layer] {
			if s.visited.Visit(nb) {
				continue
			}
			d := distance.SquaredL2(q, h.nodes[nb].vector)
			worst, full := s.results.Top()
			if s.results.Len() >= ef && full && d >= worst.Distance {
				continue
			}
			s.candidates.Push(queue.Item{Position: nb, Distance: d})
			if eligible(nb) {
				s.results.Push(queue.Item{Position: nb, Distance: d})
				if s.results.Len() > ef {
					s.results.Pop()
				}
			}
		}
	}

	out := queue.NewMin(s.results.Len())
	for s.results.Len() > 0 {
		it, _ := s.results.Pop()
		out.Push(it)
	}
	return out
}
