package wal

import (
	"time"

	"github.com/docketsearch/lexvec/metadata"
)

// DurabilityMode defines the fsync behavior for WAL writes.
type DurabilityMode int

const (
	// DurabilityAsync performs no fsync. Fastest writes, data since the
	// last OS flush is lost on crash.
	DurabilityAsync DurabilityMode = iota

	// DurabilityGroupCommit batches fsync at a fixed interval, amortizing
	// its cost across operations. The default for most workloads.
	DurabilityGroupCommit

	// DurabilitySync fsyncs after every append. Slowest, strongest.
	DurabilitySync
)

// OperationType identifies a WAL entry.
type OperationType uint8

const (
	// OpAdd records a new vector record.
	OpAdd OperationType = iota
	// OpRemove records a record removal.
	OpRemove
	// OpCheckpoint marks a snapshot boundary.
	OpCheckpoint
)

// Entry is a single logged operation. Frames are CRC-guarded on disk, so a
// torn tail after a crash is detected and discarded during replay.
type Entry struct {
	Type     OperationType     `json:"t"`
	SeqNum   uint64            `json:"seq"`
	RecordID string            `json:"id,omitempty"`
	Vector   []float32         `json:"vec,omitempty"`
	Snippet  string            `json:"snippet,omitempty"`
	Metadata metadata.Document `json:"meta,omitempty"`
}

// Options configures the WAL.
type Options struct {
	// Path is the log file path.
	Path string

	// Compress enables per-entry zstd compression of the payload.
	Compress bool

	// DurabilityMode controls fsync behavior.
	DurabilityMode DurabilityMode

	// GroupCommitInterval is the fsync interval in GroupCommit mode.
	GroupCommitInterval time.Duration
}

// DefaultOptions are the production defaults: group commit every 10ms,
// no compression.
var DefaultOptions = Options{
	Path:                "lexvec.wal",
	DurabilityMode:      DurabilityGroupCommit,
	GroupCommitInterval: 10 * time.Millisecond,
}
