package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"

	"github.com/docketsearch/lexvec/blobstore"
	"github.com/docketsearch/lexvec/codec"
	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/metadata"
	"github.com/docketsearch/lexvec/store"
)

// Snapshot container: magic, version, codec name, then an lz4 frame holding
// the codec-encoded snapshotModel. Self-describing so files written with a
// different codec still open.
const (
	snapshotMagic   = "LXSN"
	snapshotVersion = 1
)

type snapshotModel struct {
	Graph   *hnsw.GraphSnapshot          `json:"graph"`
	Records []store.Stored               `json:"records"`
	Meta    map[uint32]metadata.Document `json:"meta"`
	WALSeq  uint64                       `json:"wal_seq"`
}

// SaveToWriter writes a consistent snapshot of the full engine state.
// Mutations are blocked while the in-memory state is captured.
func (c *Coordinator) SaveToWriter(w io.Writer) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.writeMu.Lock()
	v := c.state.Load()
	model := snapshotModel{
		Graph:   v.Index.Snapshot(),
		Records: v.Records.Export(),
		Meta:    v.Meta.ToMap(),
	}
	if c.wal != nil {
		model.WALSeq = c.wal.SeqNum()
	}
	c.writeMu.Unlock()

	name := c.codec.Name()
	hdr := make([]byte, 0, 6+len(name))
	hdr = append(hdr, snapshotMagic...)
	hdr = append(hdr, snapshotVersion, byte(len(name)))
	hdr = append(hdr, name...)
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	payload, err := c.codec.Marshal(&model)
	if err != nil {
		return err
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(len(payload)))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}

	zw := lz4.NewWriter(w)
	if _, err := zw.Write(payload); err != nil {
		return err
	}
	return zw.Close()
}

// LoadFromReader replaces the engine state with a previously saved
// snapshot.
func (c *Coordinator) LoadFromReader(r io.Reader) error {
	if c.closed.Load() {
		return ErrClosed
	}

	hdr := make([]byte, 6)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("engine: short snapshot header: %w", err)
	}
	if string(hdr[:4]) != snapshotMagic {
		return fmt.Errorf("engine: bad snapshot magic %q", hdr[:4])
	}
	if hdr[4] != snapshotVersion {
		return fmt.Errorf("engine: unsupported snapshot version %d", hdr[4])
	}

	name := make([]byte, hdr[5])
	if _, err := io.ReadFull(r, name); err != nil {
		return err
	}
	dec, ok := codec.ByName(string(name))
	if !ok {
		return fmt.Errorf("engine: unknown snapshot codec %q", name)
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return err
	}
	size := binary.LittleEndian.Uint64(sizeBuf[:])

	payload := make([]byte, size)
	if _, err := io.ReadFull(lz4.NewReader(r), payload); err != nil {
		return err
	}

	var model snapshotModel
	if err := dec.Unmarshal(payload, &model); err != nil {
		return err
	}
	if model.Graph == nil {
		return fmt.Errorf("engine: snapshot missing graph section")
	}

	idx, err := hnsw.FromSnapshot(model.Graph)
	if err != nil {
		return err
	}
	meta := metadata.NewUnifiedIndex()
	if model.Meta != nil {
		if err := meta.FromMap(model.Meta); err != nil {
			return err
		}
	}

	c.writeMu.Lock()
	c.state.Store(&View{
		Index:   idx,
		Records: store.Import(model.Records),
		Meta:    meta,
	})
	c.writeMu.Unlock()
	return nil
}

// SaveToFile snapshots to path atomically (temp file + rename).
func (c *Coordinator) SaveToFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := c.SaveToWriter(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFromFile restores engine state from a snapshot file.
func (c *Coordinator) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.LoadFromReader(f)
}

// SaveSnapshot uploads a snapshot to the blob store under name. Upload
// bandwidth is governed by the resource controller.
func (c *Coordinator) SaveSnapshot(ctx context.Context, bs blobstore.BlobStore, name string) error {
	var buf bytes.Buffer
	if err := c.SaveToWriter(&buf); err != nil {
		return err
	}
	if err := c.resources.WaitIO(ctx, buf.Len()); err != nil {
		return err
	}
	return bs.Put(ctx, name, &buf)
}

// LoadSnapshot restores engine state from a blob store snapshot.
func (c *Coordinator) LoadSnapshot(ctx context.Context, bs blobstore.BlobStore, name string) error {
	rc, err := bs.Open(ctx, name)
	if err != nil {
		return err
	}
	defer rc.Close()
	return c.LoadFromReader(rc)
}

// Checkpoint snapshots to path and truncates the WAL, which is redundant
// once the snapshot is durable.
func (c *Coordinator) Checkpoint(path string) error {
	if err := c.SaveToFile(path); err != nil {
		return err
	}
	if c.wal != nil {
		return c.wal.Truncate()
	}
	return nil
}
