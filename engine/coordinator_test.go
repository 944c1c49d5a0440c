package engine

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docketsearch/lexvec/blobstore"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/metadata"
	"github.com/docketsearch/lexvec/store"
	"github.com/docketsearch/lexvec/wal"
)

const testDim = 8

func testCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()

	cfg := hnsw.DefaultConfig(testDim)
	cfg.M = 8
	cfg.EFConstruction = 64
	cfg.Seed = 42

	c, err := New(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testVector(rng *rand.Rand) []float32 {
	v := make([]float32, testDim)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}

func testRecord(id string, v []float32) store.Record {
	return store.Record{
		ID:        id,
		Embedding: v,
		Snippet:   "snippet for " + id,
		Metadata:  metadata.Document{"court": metadata.String("9th Circuit")},
	}
}

// searchIDs resolves search results to record IDs through one view.
func searchIDs(t *testing.T, c *Coordinator, query []float32, k int) []string {
	t.Helper()

	v := c.View()
	results, err := v.Index.Search(context.Background(), query, k, hnsw.SearchOptions{})
	require.NoError(t, err)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		id, ok := v.Records.ResolveID(r.Position)
		require.True(t, ok, "search returned position %d with no record", r.Position)
		ids = append(ids, id)
	}
	return ids
}

func TestAddAndGet(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(1))

	vec := testVector(rng)
	require.NoError(t, c.Add(context.Background(), testRecord("doc-1", vec)))

	got, ok := c.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, "doc-1", got.ID)
	assert.Equal(t, "snippet for doc-1", got.Snippet)

	ids := searchIDs(t, c, vec, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "doc-1", ids[0])

	stats := c.Stats()
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, stats.Index.Live)
}

func TestAddDimensionMismatch(t *testing.T) {
	c := testCoordinator(t, Options{})

	err := c.Add(context.Background(), store.Record{ID: "bad", Embedding: make([]float32, testDim-1)})
	var mismatch *hnsw.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, testDim, mismatch.Expected)
	assert.Equal(t, testDim-1, mismatch.Actual)

	_, ok := c.Get("bad")
	assert.False(t, ok, "record must not be stored on dimension mismatch")
}

func TestAddDuplicateID(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(2))

	require.NoError(t, c.Add(context.Background(), testRecord("doc-1", testVector(rng))))
	err := c.Add(context.Background(), testRecord("doc-1", testVector(rng)))
	assert.ErrorIs(t, err, store.ErrExists)
}

func TestRemove(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(3))

	vec := testVector(rng)
	require.NoError(t, c.Add(context.Background(), testRecord("doc-1", vec)))
	require.NoError(t, c.Add(context.Background(), testRecord("doc-2", testVector(rng))))

	require.NoError(t, c.Remove(context.Background(), "doc-1"))
	_, ok := c.Get("doc-1")
	assert.False(t, ok)

	for _, id := range searchIDs(t, c, vec, 2) {
		assert.NotEqual(t, "doc-1", id, "removed record must not be returned")
	}

	// Idempotent: removing again, or removing an unknown ID, is a no-op.
	assert.NoError(t, c.Remove(context.Background(), "doc-1"))
	assert.NoError(t, c.Remove(context.Background(), "never-existed"))
}

func TestUpdate(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(4))

	require.NoError(t, c.Add(context.Background(), testRecord("doc-1", testVector(rng))))

	updated := testRecord("doc-1", testVector(rng))
	updated.Snippet = "revised snippet"
	updated.Metadata = metadata.Document{"court": metadata.String("2nd Circuit")}
	require.NoError(t, c.Update(context.Background(), updated))

	got, ok := c.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, "revised snippet", got.Snippet)

	pos, _, ok := c.View().Records.Position("doc-1")
	require.True(t, ok)
	doc, ok := c.View().Meta.Get(pos)
	require.True(t, ok)
	assert.Equal(t, "2nd Circuit", doc["court"].S)

	ids := searchIDs(t, c, updated.Embedding, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "doc-1", ids[0])
}

func TestZeroVectorStaysPending(t *testing.T) {
	c := testCoordinator(t, Options{})

	err := c.Add(context.Background(), testRecord("doc-zero", make([]float32, testDim)))
	require.ErrorIs(t, err, hnsw.ErrEmptyVector)

	// Stored but not searchable until a retry succeeds.
	_, ok := c.Get("doc-zero")
	assert.True(t, ok)
	assert.Equal(t, []string{"doc-zero"}, c.PendingIDs())
	assert.Equal(t, 1, c.Stats().Pending)

	indexed, err := c.RetryPending(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, indexed)
}

func TestRetryPendingEmpty(t *testing.T) {
	c := testCoordinator(t, Options{})

	indexed, err := c.RetryPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, indexed)
}

func TestTryAddContention(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(5))

	c.writeMu.Lock()
	err := c.TryAdd(context.Background(), testRecord("doc-1", testVector(rng)))
	c.writeMu.Unlock()
	assert.ErrorIs(t, err, ErrWriterContention)

	require.NoError(t, c.TryAdd(context.Background(), testRecord("doc-1", testVector(rng))))
}

func TestCompact(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(6))

	vecs := make(map[string][]float32, 20)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("doc-%02d", i)
		vecs[id] = testVector(rng)
		require.NoError(t, c.Add(context.Background(), testRecord(id, vecs[id])))
	}
	for i := 0; i < 20; i += 4 {
		require.NoError(t, c.Remove(context.Background(), fmt.Sprintf("doc-%02d", i)))
	}

	before := c.View()
	require.NoError(t, c.Compact(context.Background()))
	after := c.View()
	assert.NotSame(t, before, after, "compaction must swap in a new generation")

	stats := c.Stats()
	assert.Equal(t, 15, stats.Records)
	assert.Equal(t, 15, stats.Index.Live)
	assert.Equal(t, 15, stats.Index.Nodes)
	assert.Equal(t, 0, stats.Index.Tombstones)

	removed := map[string]bool{
		"doc-00": true, "doc-04": true, "doc-08": true, "doc-12": true, "doc-16": true,
	}

	// Surviving records keep their metadata under remapped positions.
	for id, vec := range vecs {
		_, ok := c.Get(id)
		if removed[id] {
			assert.False(t, ok, "%s was removed", id)
			continue
		}
		require.True(t, ok, "%s must survive compaction", id)
		pos, _, posOK := after.Records.Position(id)
		require.True(t, posOK)
		doc, metaOK := after.Meta.Get(pos)
		require.True(t, metaOK, "metadata for %s must survive compaction", id)
		assert.Equal(t, "9th Circuit", doc["court"].S)

		ids := searchIDs(t, c, vec, 1)
		require.Len(t, ids, 1)
		assert.Equal(t, id, ids[0])
	}
}

func TestCheckIntegrityCleanGraph(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Add(context.Background(), testRecord(fmt.Sprintf("doc-%d", i), testVector(rng))))
	}
	assert.NoError(t, c.CheckIntegrity(context.Background()))
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(8))

	vecs := make(map[string][]float32, 30)
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("doc-%02d", i)
		vecs[id] = testVector(rng)
		require.NoError(t, c.Add(context.Background(), testRecord(id, vecs[id])))
	}
	require.NoError(t, c.Remove(context.Background(), "doc-07"))

	path := filepath.Join(t.TempDir(), "engine.snap")
	require.NoError(t, c.SaveToFile(path))

	restored := testCoordinator(t, Options{})
	require.NoError(t, restored.LoadFromFile(path))

	assert.Equal(t, c.Stats().Records, restored.Stats().Records)
	assert.Equal(t, c.Stats().Index, restored.Stats().Index)

	// Restored engine answers queries identically.
	for id, vec := range vecs {
		if id == "doc-07" {
			continue
		}
		assert.Equal(t, searchIDs(t, c, vec, 5), searchIDs(t, restored, vec, 5), "query for %s", id)
	}

	got, ok := restored.Get("doc-03")
	require.True(t, ok)
	assert.Equal(t, "snippet for doc-03", got.Snippet)
}

func TestSnapshotBlobStore(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(9))

	for i := 0; i < 10; i++ {
		require.NoError(t, c.Add(context.Background(), testRecord(fmt.Sprintf("doc-%d", i), testVector(rng))))
	}

	bs := blobstore.NewMemoryStore()
	require.NoError(t, c.SaveSnapshot(context.Background(), bs, "snapshots/engine.snap"))

	restored := testCoordinator(t, Options{})
	require.NoError(t, restored.LoadSnapshot(context.Background(), bs, "snapshots/engine.snap"))
	assert.Equal(t, 10, restored.Stats().Records)
}

func TestLoadFromReaderRejectsGarbage(t *testing.T) {
	c := testCoordinator(t, Options{})

	bs := blobstore.NewMemoryStore()
	require.NoError(t, bs.Put(context.Background(), "bad", strings.NewReader("not a snapshot")))
	err := c.LoadSnapshot(context.Background(), bs, "bad")
	assert.Error(t, err)
}

func TestWALRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.wal")
	rng := rand.New(rand.NewSource(10))

	w, err := wal.Open(func(o *wal.Options) {
		o.Path = path
		o.DurabilityMode = wal.DurabilitySync
	})
	require.NoError(t, err)

	c := testCoordinator(t, Options{WAL: w})
	vecs := make(map[string][]float32, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("doc-%d", i)
		vecs[id] = testVector(rng)
		require.NoError(t, c.Add(context.Background(), testRecord(id, vecs[id])))
	}
	require.NoError(t, c.Remove(context.Background(), "doc-4"))
	require.NoError(t, c.Close())

	reopened, err := wal.Open(func(o *wal.Options) {
		o.Path = path
		o.DurabilityMode = wal.DurabilitySync
	})
	require.NoError(t, err)

	recovered := testCoordinator(t, Options{WAL: reopened})
	applied, err := recovered.RecoverFromWAL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, applied, "10 adds and 1 remove")

	assert.Equal(t, 9, recovered.Stats().Records)
	_, ok := recovered.Get("doc-4")
	assert.False(t, ok)

	for id, vec := range vecs {
		if id == "doc-4" {
			continue
		}
		ids := searchIDs(t, recovered, vec, 1)
		require.Len(t, ids, 1)
		assert.Equal(t, id, ids[0])
	}
}

func TestWALRecoverySkipsRejectedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.wal")
	rng := rand.New(rand.NewSource(12))

	w, err := wal.Open(func(o *wal.Options) {
		o.Path = path
		o.DurabilityMode = wal.DurabilitySync
	})
	require.NoError(t, err)

	c := testCoordinator(t, Options{WAL: w})
	vecA := testVector(rng)
	require.NoError(t, c.Add(context.Background(), testRecord("a", vecA)))

	// A rejected duplicate must not reach the log.
	err = c.Add(context.Background(), testRecord("a", testVector(rng)))
	require.ErrorIs(t, err, store.ErrExists)

	// A zero vector is logged and stored, but stays pending.
	err = c.Add(context.Background(), testRecord("z", make([]float32, testDim)))
	require.ErrorIs(t, err, hnsw.ErrEmptyVector)

	vecB := testVector(rng)
	require.NoError(t, c.Add(context.Background(), testRecord("b", vecB)))
	require.NoError(t, c.Close())

	reopened, err := wal.Open(func(o *wal.Options) {
		o.Path = path
		o.DurabilityMode = wal.DurabilitySync
	})
	require.NoError(t, err)

	entries := 0
	_, err = reopened.Replay(func(*wal.Entry) error {
		entries++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, entries, "the rejected duplicate must not be logged")

	recovered := testCoordinator(t, Options{WAL: reopened})
	applied, err := recovered.RecoverFromWAL(context.Background())
	require.NoError(t, err, "an unindexable entry must not abort replay")
	assert.Equal(t, 2, applied)

	// Records behind the bad entry survive.
	for _, id := range []string{"a", "b"} {
		_, ok := recovered.Get(id)
		require.True(t, ok, "%s must survive recovery", id)
	}
	ids := searchIDs(t, recovered, vecB, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "b", ids[0])

	assert.Equal(t, []string{"z"}, recovered.PendingIDs(), "the zero vector stays pending")
}

func TestAddDetachesCallerSlices(t *testing.T) {
	c := testCoordinator(t, Options{})
	rng := rand.New(rand.NewSource(13))

	vec := testVector(rng)
	query := append([]float32(nil), vec...)
	doc := metadata.Document{"court": metadata.String("9th Circuit")}
	require.NoError(t, c.Add(context.Background(), store.Record{
		ID:        "doc-1",
		Embedding: vec,
		Metadata:  doc,
	}))

	// Caller reuses its buffers after the add.
	for i := range vec {
		vec[i] = -1
	}
	doc["court"] = metadata.String("mutated")

	got, ok := c.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, query, got.Embedding)
	assert.Equal(t, "9th Circuit", got.Metadata["court"].S)

	ids := searchIDs(t, c, query, 1)
	require.Len(t, ids, 1)
	assert.Equal(t, "doc-1", ids[0])
}

func TestCheckpointTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	rng := rand.New(rand.NewSource(11))

	w, err := wal.Open(func(o *wal.Options) {
		o.Path = filepath.Join(dir, "engine.wal")
		o.DurabilityMode = wal.DurabilitySync
	})
	require.NoError(t, err)

	c := testCoordinator(t, Options{WAL: w})
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Add(context.Background(), testRecord(fmt.Sprintf("doc-%d", i), testVector(rng))))
	}

	snapPath := filepath.Join(dir, "engine.snap")
	require.NoError(t, c.Checkpoint(snapPath))

	entries := 0
	_, err = w.Replay(func(*wal.Entry) error {
		entries++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, entries, "checkpoint must truncate the log")

	// The snapshot carries everything the truncated log no longer does.
	restored := testCoordinator(t, Options{})
	require.NoError(t, restored.LoadFromFile(snapPath))
	assert.Equal(t, 5, restored.Stats().Records)
}

func TestClosed(t *testing.T) {
	c := testCoordinator(t, Options{})
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")

	rec := testRecord("doc-1", make([]float32, testDim))
	assert.ErrorIs(t, c.Add(context.Background(), rec), ErrClosed)
	assert.ErrorIs(t, c.TryAdd(context.Background(), rec), ErrClosed)
	assert.ErrorIs(t, c.Remove(context.Background(), "doc-1"), ErrClosed)
	assert.ErrorIs(t, c.Update(context.Background(), rec), ErrClosed)
	assert.ErrorIs(t, c.Compact(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.SaveToWriter(nil), ErrClosed)

	_, err := c.RecoverFromWAL(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
