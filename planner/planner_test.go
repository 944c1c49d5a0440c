package planner_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docketsearch/lexvec/engine"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/metadata"
	"github.com/docketsearch/lexvec/planner"
	"github.com/docketsearch/lexvec/store"
)

func testEngine(t *testing.T, dim int) *engine.Coordinator {
	t.Helper()

	cfg := hnsw.DefaultConfig(dim)
	cfg.M = 8
	cfg.EFConstruction = 64
	cfg.Seed = 7

	c, err := engine.New(cfg, engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func addRecord(t *testing.T, c *engine.Coordinator, id string, vec []float32, doc metadata.Document) {
	t.Helper()
	require.NoError(t, c.Add(context.Background(), store.Record{
		ID:        id,
		Embedding: vec,
		Snippet:   "snippet " + id,
		Metadata:  doc,
	}))
}

func TestExecuteRanking(t *testing.T) {
	c := testEngine(t, 2)

	addRecord(t, c, "a", []float32{1, 0}, nil)
	addRecord(t, c, "b", []float32{0, 1}, nil)
	addRecord(t, c, "c", []float32{0.9, 0.1}, nil)

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         2,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6, "exact match scores 1/(1+0)")

	// c is stored L2-normalized, so its distance to the query is known.
	norm := math.Hypot(0.9, 0.1)
	dx := 0.9/norm - 1
	dy := 0.1 / norm
	wantSim := 1 / (1 + (dx*dx + dy*dy))
	assert.InDelta(t, wantSim, results[1].Similarity, 1e-5)
	assert.Equal(t, "snippet c", results[1].Snippet)
}

func TestExecuteTieBreakByID(t *testing.T) {
	c := testEngine(t, 2)

	// Both records are equidistant from the query; order must be by ID.
	addRecord(t, c, "beta", []float32{0, 1}, nil)
	addRecord(t, c, "alpha", []float32{0, -1}, nil)

	for i := 0; i < 5; i++ {
		results, err := planner.Execute(context.Background(), c.View(), planner.Query{
			Embedding: []float32{1, 0},
			K:         2,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "alpha", results[0].ID)
		assert.Equal(t, "beta", results[1].ID)
		assert.Equal(t, results[0].Similarity, results[1].Similarity)
	}
}

func TestExecuteEqualityFilter(t *testing.T) {
	c := testEngine(t, 2)

	for i := 0; i < 10; i++ {
		court := "9th Circuit"
		if i%2 == 1 {
			court = "2nd Circuit"
		}
		addRecord(t, c, fmt.Sprintf("doc-%d", i), []float32{1, float32(i) / 10},
			metadata.Document{"court": metadata.String(court)})
	}

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         10,
		Filters:   metadata.FilterSet{metadata.Eq("court", metadata.String("2nd Circuit"))},
	})
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, "2nd Circuit", r.Metadata["court"].S)
	}
}

func TestExecuteRangeFilter(t *testing.T) {
	c := testEngine(t, 2)

	for i := 0; i < 6; i++ {
		addRecord(t, c, fmt.Sprintf("doc-%d", i), []float32{1, float32(i) / 10},
			metadata.Document{"date": metadata.String(fmt.Sprintf("2024-0%d-01", i+1))})
	}

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         10,
		Filters: metadata.FilterSet{{
			Field:    "date",
			Operator: metadata.OpGreaterEqual,
			Value:    metadata.String("2024-04-01"),
		}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Metadata["date"].S, "2024-04-01")
	}
}

func TestExecuteFilterMatchesNothing(t *testing.T) {
	c := testEngine(t, 2)
	addRecord(t, c, "a", []float32{1, 0}, metadata.Document{"court": metadata.String("9th Circuit")})

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         5,
		Filters:   metadata.FilterSet{metadata.Eq("court", metadata.String("Tax Court"))},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecuteMinSimilarity(t *testing.T) {
	c := testEngine(t, 2)

	addRecord(t, c, "near", []float32{1, 0}, nil)
	addRecord(t, c, "far", []float32{-1, 0}, nil)

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding:     []float32{1, 0},
		K:             5,
		MinSimilarity: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "near", results[0].ID)
}

func TestExecuteFewerThanK(t *testing.T) {
	c := testEngine(t, 2)
	addRecord(t, c, "only", []float32{1, 0}, nil)

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         10,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestExecuteEmptyIndex(t *testing.T) {
	c := testEngine(t, 2)

	results, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         3,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecuteValidation(t *testing.T) {
	c := testEngine(t, 2)

	_, err := planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding: []float32{1, 0},
		K:         0,
	})
	assert.ErrorIs(t, err, planner.ErrInvalidK)

	_, err = planner.Execute(context.Background(), c.View(), planner.Query{
		Embedding:     []float32{1, 0},
		K:             1,
		MinSimilarity: 1.5,
	})
	assert.ErrorIs(t, err, planner.ErrInvalidSimilarity)
}
