// Package planner turns a raw nearest-neighbor search into a ranked,
// filtered, deduplicated result list.
package planner

import (
	"context"
	"errors"
	"sort"

	"github.com/docketsearch/lexvec/distance"
	"github.com/docketsearch/lexvec/engine"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/metadata"
)

var (
	// ErrInvalidK is returned when a query asks for fewer than one result.
	ErrInvalidK = errors.New("planner: k must be >= 1")

	// ErrInvalidSimilarity is returned when the similarity floor is
	// outside [0, 1].
	ErrInvalidSimilarity = errors.New("planner: min similarity must be in [0, 1]")
)

const (
	// overRetrieveFactor compensates for candidates lost to filtering
	// and the similarity floor.
	overRetrieveFactor = 3

	// maxFetch caps over-retrieval regardless of k.
	maxFetch = 1000
)

// Query is one planned search request.
type Query struct {
	// Embedding is the query vector. Its dimension must match the index.
	Embedding []float32

	// K is the number of results to return.
	K int

	// EF overrides the index search beam width when > 0.
	EF int

	// Filters restricts results to records whose metadata matches every
	// predicate.
	Filters metadata.FilterSet

	// MinSimilarity drops results scoring below the floor. Zero disables it.
	MinSimilarity float64
}

// Result is one ranked hit resolved back to its record.
type Result struct {
	ID         string            `json:"id"`
	Position   uint32            `json:"position"`
	Similarity float64           `json:"similarity"`
	Snippet    string            `json:"snippet,omitempty"`
	Metadata   metadata.Document `json:"metadata,omitempty"`
}

func (q Query) validate() error {
	if q.K < 1 {
		return ErrInvalidK
	}
	if q.MinSimilarity < 0 || q.MinSimilarity > 1 {
		return ErrInvalidSimilarity
	}
	return nil
}

// fetchK is the candidate count requested from the index. Filtering and
// thresholding shrink the candidate set, so those queries over-retrieve.
func (q Query) fetchK() int {
	if len(q.Filters) == 0 && q.MinSimilarity == 0 {
		return q.K
	}
	n := q.K * overRetrieveFactor
	if n > maxFetch {
		n = maxFetch
	}
	return n
}

// Execute runs q against one state generation. Fewer than K survivors is
// not an error; deadline expiry returns the best results found so far.
func Execute(ctx context.Context, view *engine.View, q Query) ([]Result, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	// Equality predicates compile to an inverted-index bitmap checked
	// during graph traversal; anything else is evaluated per document.
	var filter hnsw.FilterFunc
	if len(q.Filters) > 0 {
		if bm, ok := view.Meta.CompileFilters(q.Filters); ok {
			if bm.IsEmpty() {
				return nil, nil
			}
			filter = bm.Contains
		} else {
			filter = view.Meta.CreateFilterFunc(q.Filters)
		}
	}

	hits, err := view.Index.Search(ctx, q.Embedding, q.fetchK(), hnsw.SearchOptions{
		EF:     q.EF,
		Filter: filter,
	})
	if err != nil {
		return nil, err
	}

	// Resolve, threshold, and dedupe by record ID keeping the best score.
	results := make([]Result, 0, len(hits))
	best := make(map[string]int, len(hits))
	for _, hit := range hits {
		id, ok := view.Records.ResolveID(hit.Position)
		if !ok {
			continue
		}
		sim := float64(distance.Similarity(hit.Distance))
		if sim < q.MinSimilarity {
			continue
		}
		if i, seen := best[id]; seen {
			if sim > results[i].Similarity {
				results[i].Position = hit.Position
				results[i].Similarity = sim
			}
			continue
		}

		rec, _ := view.Records.Get(id)
		best[id] = len(results)
		results = append(results, Result{
			ID:         id,
			Position:   hit.Position,
			Similarity: sim,
			Snippet:    rec.Snippet,
			Metadata:   rec.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > q.K {
		results = results[:q.K]
	}
	return results, nil
}
