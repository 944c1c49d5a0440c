// Package blobstore abstracts where engine snapshots live: local disk,
// memory (tests), S3 or MinIO-compatible object stores.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist. Implementations
// return an error satisfying errors.Is(err, ErrNotFound); the default maps
// to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// BlobStore stores immutable named blobs. Puts replace atomically: a reader
// never observes a partially written blob.
type BlobStore interface {
	// Put writes the blob under name, replacing any previous version.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open opens the blob for reading. Returns ErrNotFound if absent.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
