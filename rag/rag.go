// Package rag assembles bounded retrieval contexts for a downstream
// generator from ranked search results.
package rag

import (
	"context"
	"strings"

	"github.com/docketsearch/lexvec/engine"
	"github.com/docketsearch/lexvec/metadata"
	"github.com/docketsearch/lexvec/planner"
)

const (
	// DefaultK is the candidate count retrieved when a query does not set
	// its own.
	DefaultK = 20

	// DefaultBudget is the context character budget when a query does not
	// set its own.
	DefaultBudget = 4000
)

// Hints carries externally supplied intent signals. The classifier itself
// is out of scope; its output narrows retrieval.
type Hints struct {
	// Label names the detected intent, e.g. "precedent_search".
	Label string

	// Filters are appended to the query's own filters.
	Filters metadata.FilterSet

	// K overrides the candidate count when > 0. Chat-turn intents
	// typically want a handful of highly relevant snippets, not twenty.
	K int
}

// Query is one retrieval request.
type Query struct {
	// Text is the original user query, carried into the context verbatim.
	Text string

	// Embedding is the query vector.
	Embedding []float32

	// K is the candidate count. Zero means DefaultK.
	K int

	// Filters restricts candidates by metadata.
	Filters metadata.FilterSet

	// MinSimilarity drops low-scoring candidates.
	MinSimilarity float64

	// Budget caps the assembled context size in characters. Zero means
	// DefaultBudget.
	Budget int

	// Hints are intent signals from an external classifier.
	Hints *Hints
}

// RetrievalContext is the assembled, budget-bounded context for one query.
// It is ephemeral; callers hand it to the generator and discard it.
type RetrievalContext struct {
	// Query is the original query text.
	Query string `json:"query"`

	// Results are the candidates whose snippets fit the budget, in rank
	// order.
	Results []planner.Result `json:"results"`

	// Text is the concatenated snippet text.
	Text string `json:"text"`

	// Chars is the number of snippet characters consumed.
	Chars int `json:"chars"`
}

// Orchestrator retrieves ranked candidates and packs them into a context.
type Orchestrator struct {
	coord *engine.Coordinator
}

// NewOrchestrator creates an orchestrator over an engine.
func NewOrchestrator(coord *engine.Coordinator) *Orchestrator {
	return &Orchestrator{coord: coord}
}

// Retrieve runs q and assembles a context within its budget. Zero matches
// yields an empty context, not an error.
func (o *Orchestrator) Retrieve(ctx context.Context, q Query) (*RetrievalContext, error) {
	k := q.K
	if k <= 0 {
		k = DefaultK
	}
	budget := q.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	filters := q.Filters
	if q.Hints != nil {
		if len(q.Hints.Filters) > 0 {
			merged := make(metadata.FilterSet, 0, len(filters)+len(q.Hints.Filters))
			merged = append(merged, filters...)
			merged = append(merged, q.Hints.Filters...)
			filters = merged
		}
		if q.Hints.K > 0 {
			k = q.Hints.K
		}
	}

	results, err := planner.Execute(ctx, o.coord.View(), planner.Query{
		Embedding:     q.Embedding,
		K:             k,
		Filters:       filters,
		MinSimilarity: q.MinSimilarity,
	})
	if err != nil {
		return nil, err
	}

	return assemble(q.Text, results, budget), nil
}

// assemble packs results greedily in rank order. A snippet that would
// overflow the remaining budget is skipped whole, never truncated, and
// later smaller snippets are still considered.
func assemble(queryText string, results []planner.Result, budget int) *RetrievalContext {
	rc := &RetrievalContext{Query: queryText}

	var sb strings.Builder
	for _, r := range results {
		n := len(r.Snippet)
		if n == 0 || rc.Chars+n > budget {
			continue
		}
		rc.Results = append(rc.Results, r)
		rc.Chars += n
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(r.Snippet)
	}
	rc.Text = sb.String()
	return rc
}
