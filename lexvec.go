package lexvec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docketsearch/lexvec/engine"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/metadata"
	"github.com/docketsearch/lexvec/planner"
	"github.com/docketsearch/lexvec/rag"
	"github.com/docketsearch/lexvec/resource"
	"github.com/docketsearch/lexvec/store"
	"github.com/docketsearch/lexvec/wal"
)

// Record is one indexed document chunk: a stable ID, its embedding, the
// snippet text used for context assembly, and filterable metadata.
type Record = store.Record

// SearchResult is one ranked hit.
type SearchResult = planner.Result

// RetrievalContext is a budget-bounded context for a downstream generator.
type RetrievalContext = rag.RetrievalContext

// Stats aggregates record counts and index health.
type Stats = engine.Stats

// Engine is an embedded vector search engine with a RAG front end.
// All methods are safe for concurrent use; mutations are serialized
// behind a single writer while searches proceed concurrently.
type Engine struct {
	coord *engine.Coordinator
	orch  *rag.Orchestrator
	opts  options
}

// New creates an engine for embeddings of the given dimension.
func New(dimension int, optFns ...Option) (*Engine, error) {
	opts := applyOptions(optFns)

	cfg := hnsw.DefaultConfig(dimension)
	if opts.m > 0 {
		cfg.M = opts.m
	}
	if opts.efConstruction > 0 {
		cfg.EFConstruction = opts.efConstruction
	}
	if opts.efSearch > 0 {
		cfg.EFSearch = opts.efSearch
	}
	if opts.efConstruction < 0 || opts.efSearch < 0 {
		return nil, ErrInvalidEFValue
	}
	if opts.compactionThreshold > 0 {
		cfg.CompactionThreshold = opts.compactionThreshold
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}

	var w *wal.WAL
	if opts.walPath != "" {
		walOpts := append([]func(*wal.Options){func(o *wal.Options) {
			o.Path = opts.walPath
		}}, opts.walOptions...)
		var err error
		if w, err = wal.Open(walOpts...); err != nil {
			return nil, fmt.Errorf("open wal: %w", err)
		}
	}

	var controller *resource.Controller
	if opts.limits != nil {
		controller = resource.NewController(*opts.limits)
	}

	coord, err := engine.New(cfg, engine.Options{
		Codec:     opts.codec,
		WAL:       w,
		Resources: controller,
	})
	if err != nil {
		if w != nil {
			w.Close()
		}
		return nil, translateError(err)
	}

	return &Engine{
		coord: coord,
		orch:  rag.NewOrchestrator(coord),
		opts:  opts,
	}, nil
}

// AddRecord indexes a record. The ID must be new; use UpdateRecord to
// replace an existing record.
func (e *Engine) AddRecord(ctx context.Context, rec Record) error {
	start := time.Now()
	err := translateError(e.coord.Add(ctx, rec))
	e.opts.metricsCollector.RecordAdd(time.Since(start), err)
	e.opts.logger.LogAdd(ctx, rec.ID, len(rec.Embedding), err)
	return err
}

// TryAddRecord is AddRecord without blocking on the writer lock. It
// returns ErrWriterContention when another mutation is in flight.
func (e *Engine) TryAddRecord(ctx context.Context, rec Record) error {
	err := translateError(e.coord.TryAdd(ctx, rec))
	e.opts.logger.LogAdd(ctx, rec.ID, len(rec.Embedding), err)
	return err
}

// BatchResult reports a batch ingest: how many records were indexed and,
// per failed record ID, why it was not.
type BatchResult struct {
	Added  int
	Errors map[string]error
}

// AddBatch indexes records one writer pass each, collecting per-item
// errors instead of stopping at the first failure.
func (e *Engine) AddBatch(ctx context.Context, recs []Record) BatchResult {
	start := time.Now()

	result := BatchResult{}
	for _, rec := range recs {
		if err := translateError(e.coord.Add(ctx, rec)); err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]error)
			}
			result.Errors[rec.ID] = err
			continue
		}
		result.Added++
	}

	e.opts.metricsCollector.RecordBatchAdd(len(recs), len(result.Errors), time.Since(start))
	e.opts.logger.LogBatchAdd(ctx, len(recs), len(result.Errors))
	return result
}

// UpdateRecord replaces a record's embedding, snippet and metadata under
// one writer critical section. A previously unknown ID is simply added.
func (e *Engine) UpdateRecord(ctx context.Context, rec Record) error {
	start := time.Now()
	err := translateError(e.coord.Update(ctx, rec))
	e.opts.metricsCollector.RecordAdd(time.Since(start), err)
	e.opts.logger.LogAdd(ctx, rec.ID, len(rec.Embedding), err)
	return err
}

// RemoveRecord deletes a record. Removing an unknown ID is a no-op.
func (e *Engine) RemoveRecord(ctx context.Context, id string) error {
	start := time.Now()
	err := translateError(e.coord.Remove(ctx, id))
	e.opts.metricsCollector.RecordRemove(time.Since(start), err)
	e.opts.logger.LogRemove(ctx, id, err)
	return err
}

// GetRecord returns a stored record by ID.
func (e *Engine) GetRecord(id string) (Record, error) {
	rec, ok := e.coord.Get(id)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// SearchOptions tunes one search call.
type SearchOptions struct {
	// EF overrides the search beam width when > 0.
	EF int

	// Filters restricts results by metadata.
	Filters metadata.FilterSet

	// MinSimilarity drops results scoring below the floor.
	MinSimilarity float64
}

// Search returns the k records most similar to the query embedding,
// ranked by similarity descending with record-ID tie-breaks. Fewer than k
// survivors is not an error.
func (e *Engine) Search(ctx context.Context, embedding []float32, k int, optFns ...func(o *SearchOptions)) ([]SearchResult, error) {
	start := time.Now()

	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.EF < 0 {
		return nil, ErrInvalidEFValue
	}

	results, err := planner.Execute(ctx, e.coord.View(), planner.Query{
		Embedding:     embedding,
		K:             k,
		EF:            opts.EF,
		Filters:       opts.Filters,
		MinSimilarity: opts.MinSimilarity,
	})
	err = translateError(err)

	e.opts.metricsCollector.RecordSearch(k, time.Since(start), err)
	e.opts.logger.LogSearch(ctx, k, len(results), time.Since(start), err)
	return results, err
}

// RetrieveContext runs retrieval and packs ranked snippets into a bounded
// context. Zero matches yields an empty context, not an error.
func (e *Engine) RetrieveContext(ctx context.Context, q rag.Query) (*RetrievalContext, error) {
	start := time.Now()

	rc, err := e.orch.Retrieve(ctx, q)
	err = translateError(err)

	packed := 0
	chars := 0
	if rc != nil {
		packed = len(rc.Results)
		chars = rc.Chars
	}
	e.opts.metricsCollector.RecordRetrieve(packed, time.Since(start), err)
	e.opts.logger.LogRetrieve(ctx, packed, chars, err)
	return rc, err
}

// Stats returns a point-in-time aggregate of engine state.
func (e *Engine) Stats() Stats {
	return e.coord.Stats()
}

// ShouldCompact reports whether the tombstone ratio warrants a rebuild.
func (e *Engine) ShouldCompact() bool {
	return e.coord.ShouldCompact()
}

// Compact rebuilds the graph without tombstones. Searches proceed against
// the old graph until the rebuilt one is swapped in.
func (e *Engine) Compact(ctx context.Context) error {
	start := time.Now()
	before := e.coord.Stats().Index.Nodes

	err := translateError(e.coord.Compact(ctx))
	e.opts.metricsCollector.RecordCompaction(time.Since(start), err)
	e.opts.logger.LogCompaction(ctx, before, e.coord.Stats().Index.Nodes, time.Since(start), err)
	return err
}

// VerifyIntegrity validates the graph and rebuilds it when validation
// fails. The validation error is returned even when the rebuild succeeds.
func (e *Engine) VerifyIntegrity(ctx context.Context) error {
	return translateError(e.coord.CheckIntegrity(ctx))
}

// SaveToFile writes a snapshot of the full engine state to path.
func (e *Engine) SaveToFile(path string) error {
	err := translateError(e.coord.SaveToFile(path))
	e.opts.logger.LogSnapshot(context.Background(), path, err)
	return err
}

// LoadFromFile replaces the engine state with a snapshot.
func (e *Engine) LoadFromFile(path string) error {
	return translateError(e.coord.LoadFromFile(path))
}

// SaveSnapshot uploads a snapshot to the configured blob store.
func (e *Engine) SaveSnapshot(ctx context.Context, name string) error {
	if e.opts.blobStore == nil {
		return errors.New("no blob store configured")
	}
	err := translateError(e.coord.SaveSnapshot(ctx, e.opts.blobStore, name))
	e.opts.logger.LogSnapshot(ctx, name, err)
	return err
}

// LoadSnapshot restores engine state from the configured blob store.
func (e *Engine) LoadSnapshot(ctx context.Context, name string) error {
	if e.opts.blobStore == nil {
		return errors.New("no blob store configured")
	}
	return translateError(e.coord.LoadSnapshot(ctx, e.opts.blobStore, name))
}

// Checkpoint snapshots to the configured snapshot path and truncates the
// WAL.
func (e *Engine) Checkpoint() error {
	if e.opts.snapshotPath == "" {
		return errors.New("no snapshot path configured")
	}
	err := translateError(e.coord.Checkpoint(e.opts.snapshotPath))
	e.opts.logger.LogSnapshot(context.Background(), e.opts.snapshotPath, err)
	return err
}

// RecoverFromWAL replays the write-ahead log into an empty engine.
func (e *Engine) RecoverFromWAL(ctx context.Context) error {
	applied, err := e.coord.RecoverFromWAL(ctx)
	err = translateError(err)
	e.opts.logger.LogRecovery(ctx, applied, err)
	return err
}

// Close releases the engine. Further operations return ErrEngineClosed.
func (e *Engine) Close() error {
	return translateError(e.coord.Close())
}
