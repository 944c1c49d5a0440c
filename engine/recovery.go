package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/docketsearch/lexvec/index/hnsw"
	"github.com/docketsearch/lexvec/store"
	"github.com/docketsearch/lexvec/wal"
)

// RecoverFromWAL rebuilds engine state by replaying the attached write-ahead
// log. Entries are applied in log order without being re-logged. Returns the
// number of entries applied.
func (c *Coordinator) RecoverFromWAL(ctx context.Context) (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	if c.wal == nil {
		return 0, fmt.Errorf("engine: no WAL attached")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	applied := 0
	_, err := c.wal.Replay(func(entry *wal.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch entry.Type {
		case wal.OpAdd:
			rec := store.Record{
				ID:        entry.RecordID,
				Embedding: entry.Vector,
				Snippet:   entry.Snippet,
				Metadata:  entry.Metadata,
			}
			if err := c.addLocked(ctx, rec, false); err != nil {
				// A failure scoped to this record (already present, not
				// indexable) must not stop the entries behind it.
				if replaySkippable(err) {
					return nil
				}
				return fmt.Errorf("engine: replay add %q: %w", entry.RecordID, err)
			}
			applied++
		case wal.OpRemove:
			if err := c.removeLocked(ctx, entry.RecordID, false); err != nil {
				return fmt.Errorf("engine: replay remove %q: %w", entry.RecordID, err)
			}
			applied++
		case wal.OpCheckpoint:
			// Snapshot boundary, nothing to apply.
		default:
			return fmt.Errorf("engine: unknown WAL entry type %d", entry.Type)
		}
		return nil
	})
	if err != nil {
		return applied, err
	}
	return applied, nil
}

// replaySkippable reports whether a replayed add failed for that record
// alone, leaving the rest of the log valid.
func replaySkippable(err error) bool {
	if errors.Is(err, store.ErrExists) || errors.Is(err, hnsw.ErrEmptyVector) {
		return true
	}
	var dm *hnsw.DimensionMismatchError
	return errors.As(err, &dm)
}
