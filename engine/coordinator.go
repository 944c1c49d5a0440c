// Package engine coordinates the index, record store and metadata index
// behind a single-writer, many-reader discipline.
//
// Lock order: writeMu serializes all mutation; the current View is swapped
// atomically so readers resolve positions against the same index generation
// they searched. Never acquire writeMu while holding a package-internal lock
// of a dependent component.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/docketsearch/lexvec/codec"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/metadata"
	"github.com/docketsearch/lexvec/resource"
	"github.com/docketsearch/lexvec/store"
	"github.com/docketsearch/lexvec/wal"
)

var (
	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = errors.New("engine: closed")

	// ErrWriterContention is returned by Try* mutations when the writer
	// lock is held. Callers back off and retry.
	ErrWriterContention = errors.New("engine: writer busy")
)

// View is one consistent generation of engine state. A reader loads it once
// and uses index, records and metadata together; a concurrent compaction
// swap cannot mix generations under it.
type View struct {
	Index   *hnsw.Index
	Records *store.RecordStore
	Meta    *metadata.UnifiedIndex
}

// Options configures a Coordinator.
type Options struct {
	// Codec encodes snapshots. Defaults to codec.Default.
	Codec codec.Codec

	// WAL, when set, makes mutations durable between snapshots.
	WAL *wal.WAL

	// Resources bounds background work. Nil means unbounded workers.
	Resources *resource.Controller
}

// Coordinator owns all mutable engine state.
type Coordinator struct {
	writeMu sync.Mutex
	state   atomic.Pointer[View]

	codec     codec.Codec
	wal       *wal.WAL
	resources *resource.Controller

	closed atomic.Bool
}

// New creates a coordinator with an empty index for the given configuration.
func New(cfg hnsw.Config, opts Options) (*Coordinator, error) {
	idx, err := hnsw.New(cfg)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		codec:     opts.Codec,
		wal:       opts.WAL,
		resources: opts.Resources,
	}
	if c.codec == nil {
		c.codec = codec.Default
	}
	c.state.Store(&View{
		Index:   idx,
		Records: store.New(),
		Meta:    metadata.NewUnifiedIndex(),
	})
	return c, nil
}

// View returns the current state generation.
func (c *Coordinator) View() *View {
	return c.state.Load()
}

// Add ingests a record: WAL first, then the store (pending), then the
// graph. If graph insertion fails the record stays pending and is retried
// by RetryPending; the error is still surfaced to the caller.
func (c *Coordinator) Add(ctx context.Context, rec store.Record) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.addLocked(ctx, rec, true)
}

// TryAdd is Add without blocking on the writer lock.
func (c *Coordinator) TryAdd(ctx context.Context, rec store.Record) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.writeMu.TryLock() {
		return ErrWriterContention
	}
	defer c.writeMu.Unlock()
	return c.addLocked(ctx, rec, true)
}

func (c *Coordinator) addLocked(ctx context.Context, rec store.Record, logWAL bool) error {
	v := c.state.Load()

	if want := v.Index.Config().Dimension; len(rec.Embedding) != want {
		return &hnsw.DimensionMismatchError{Expected: want, Actual: len(rec.Embedding)}
	}
	// Rejections must not reach the log, or replay would trip over them.
	if _, _, exists := v.Records.Position(rec.ID); exists {
		return store.ErrExists
	}

	if logWAL && c.wal != nil {
		if err := c.wal.AppendAdd(rec.ID, rec.Embedding, rec.Snippet, rec.Metadata); err != nil {
			return fmt.Errorf("engine: wal append: %w", err)
		}
	}

	// Detach from caller-owned slices and maps.
	rec.Embedding = append([]float32(nil), rec.Embedding...)
	rec.Metadata = rec.Metadata.Clone()
	if err := v.Records.PutPending(rec); err != nil {
		return err
	}

	pos, err := v.Index.Insert(ctx, rec.Embedding)
	if err != nil {
		// Stored but not searchable; RetryPending picks it up.
		return fmt.Errorf("engine: index insert for %q: %w", rec.ID, err)
	}

	if err := v.Records.MarkIndexed(rec.ID, pos); err != nil {
		return err
	}
	if rec.Metadata != nil {
		v.Meta.Set(pos, rec.Metadata)
	}
	return nil
}

// Remove deletes a record. Removing an unknown ID is a successful no-op.
func (c *Coordinator) Remove(ctx context.Context, id string) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.removeLocked(ctx, id, true)
}

func (c *Coordinator) removeLocked(_ context.Context, id string, logWAL bool) error {
	v := c.state.Load()

	if _, _, ok := v.Records.Position(id); !ok {
		return nil
	}

	if logWAL && c.wal != nil {
		if err := c.wal.AppendRemove(id); err != nil {
			return fmt.Errorf("engine: wal append: %w", err)
		}
	}

	pos, indexed, existed := v.Records.Delete(id)
	if !existed {
		return nil
	}
	if indexed {
		v.Index.Delete(pos)
		v.Meta.Delete(pos)
	}
	return nil
}

// Update replaces a record under one writer critical section.
func (c *Coordinator) Update(ctx context.Context, rec store.Record) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.removeLocked(ctx, rec.ID, true); err != nil {
		return err
	}
	return c.addLocked(ctx, rec, true)
}

// Get returns a stored record by ID.
func (c *Coordinator) Get(id string) (store.Record, bool) {
	return c.state.Load().Records.Get(id)
}

// PendingIDs lists records stored but not yet indexed.
func (c *Coordinator) PendingIDs() []string {
	return c.state.Load().Records.PendingIDs()
}

// RetryPending attempts to index every pending record. Returns the number
// indexed; the first failure stops the pass.
func (c *Coordinator) RetryPending(ctx context.Context) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	v := c.state.Load()
	indexed := 0
	for _, id := range v.Records.PendingIDs() {
		rec, ok := v.Records.Get(id)
		if !ok {
			continue
		}
		pos, err := v.Index.Insert(ctx, rec.Embedding)
		if err != nil {
			return indexed, err
		}
		if err := v.Records.MarkIndexed(id, pos); err != nil {
			return indexed, err
		}
		if rec.Metadata != nil {
			v.Meta.Set(pos, rec.Metadata)
		}
		indexed++
	}
	return indexed, nil
}

// Stats aggregates engine state.
type Stats struct {
	Records int        `json:"records"`
	Pending int        `json:"pending"`
	Index   hnsw.Stats `json:"index"`
	WALSeq  uint64     `json:"wal_seq,omitempty"`
}

// Stats returns a point-in-time aggregate.
func (c *Coordinator) Stats() Stats {
	v := c.state.Load()
	s := Stats{
		Records: v.Records.Len(),
		Pending: len(v.Records.PendingIDs()),
		Index:   v.Index.Stats(),
	}
	if c.wal != nil {
		s.WALSeq = c.wal.SeqNum()
	}
	return s
}

// ShouldCompact reports whether the tombstone ratio warrants a rebuild.
func (c *Coordinator) ShouldCompact() bool {
	return c.state.Load().Index.ShouldCompact()
}

// Compact rebuilds the graph without tombstones and swaps in a fresh state
// generation. Writers are blocked for the duration; readers keep searching
// the old generation and switch atomically at the end. The background
// worker slot is taken through the resource controller so concurrent
// compactions and uploads stay bounded.
func (c *Coordinator) Compact(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if err := c.resources.AcquireWorker(ctx); err != nil {
		return err
	}
	defer c.resources.ReleaseWorker()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	v := c.state.Load()
	next, remap, err := v.Index.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("engine: rebuild: %w", err)
	}

	records := v.Records.Rebased(remap)

	meta := metadata.NewUnifiedIndex()
	docs := make(map[uint32]metadata.Document)
	for oldPos, doc := range v.Meta.ToMap() {
		if newPos, ok := remap[oldPos]; ok {
			docs[newPos] = doc
		}
	}
	if err := meta.FromMap(docs); err != nil {
		return err
	}

	c.state.Store(&View{Index: next, Records: records, Meta: meta})
	return nil
}

// CheckIntegrity validates the graph and forces a compaction when it finds
// corruption, rebuilding a clean graph from the surviving vectors.
func (c *Coordinator) CheckIntegrity(ctx context.Context) error {
	err := c.state.Load().Index.Validate()
	if err == nil {
		return nil
	}
	if compactErr := c.Compact(ctx); compactErr != nil {
		return errors.Join(err, compactErr)
	}
	return err
}

// Close marks the coordinator closed and closes the WAL.
func (c *Coordinator) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.wal != nil {
		return c.wal.Close()
	}
	return nil
}
