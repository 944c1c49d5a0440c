package hnsw

import (
	"github.com/docketsearch/lexvec/distance"
	"github.com/docketsearch/lexvec/internal/queue"
)

// selectNeighborsLocked picks up to m link targets for a vector from a
// min-heap of candidates. With the heuristic disabled this is simply the m
// closest; enabled, it applies relative-neighborhood pruning: a candidate is
// kept only if it is closer to the vector than to every neighbor already
// kept, which spreads links across directions instead of clustering them.
func (h *Index) selectNeighborsLocked(vec []float32, cands *queue.PriorityQueue, m int) []uint32 {
	if !h.cfg.Heuristic {
		out := make([]uint32, 0, m)
		for cands.Len() > 0 && len(out) < m {
			it, _ := cands.Pop()
			out = append(out, it.Position)
		}
		return out
	}

	kept := make([]queue.Item, 0, m)
	var discarded []queue.Item

	for cands.Len() > 0 && len(kept) < m {
		it, _ := cands.Pop()

		keep := true
		for _, kp := range kept {
			if distance.SquaredL2(h.nodes[it.Position].vector, h.nodes[kp.Position].vector) < it.Distance {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, it)
		} else {
			discarded = append(discarded, it)
		}
	}

	// Fill up from pruned candidates, closest first, so sparse regions
	// still reach m links.
	for _, it := range discarded {
		if len(kept) >= m {
			break
		}
		kept = append(kept, it)
	}

	out := make([]uint32, len(kept))
	for i, it := range kept {
		out[i] = it.Position
	}
	return out
}
