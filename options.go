package lexvec

import (
	"log/slog"

	"github.com/docketsearch/lexvec/blobstore"
	"github.com/docketsearch/lexvec/codec"
	"github.com/docketsearch/lexvec/resource"
	"github.com/docketsearch/lexvec/wal"
)

type options struct {
	codec               codec.Codec
	metricsCollector    MetricsCollector
	logger              *Logger
	walPath             string
	walOptions          []func(*wal.Options)
	snapshotPath        string
	blobStore           blobstore.BlobStore
	efConstruction      int
	efSearch            int
	m                   int
	compactionThreshold float64
	seed                int64
	limits              *resource.Limits
}

// Option configures Engine constructor behavior.
type Option func(*options)

// WithCodec configures the codec used for snapshot and WAL payloads.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithWAL configures write-ahead logging for durability. Every mutation is
// logged before it is applied; RecoverFromWAL replays the log after a crash.
//
// Example:
//
//	eng, _ := lexvec.New(768,
//	    lexvec.WithWAL("./data/lexvec.wal", func(o *wal.Options) {
//	        o.DurabilityMode = wal.DurabilityGroupCommit
//	        o.GroupCommitInterval = 10 * time.Millisecond
//	    }))
func WithWAL(path string, optFns ...func(*wal.Options)) Option {
	return func(o *options) {
		o.walPath = path
		o.walOptions = optFns
	}
}

// WithSnapshotPath configures the default path used by Checkpoint.
func WithSnapshotPath(path string) Option {
	return func(o *options) {
		o.snapshotPath = path
	}
}

// WithBlobStore configures remote snapshot storage (S3, MinIO, local
// directory) used by SaveSnapshot and LoadSnapshot.
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobStore = bs
	}
}

// WithEF configures the construction and search beam widths. Zero leaves
// the corresponding default untouched.
func WithEF(construction, search int) Option {
	return func(o *options) {
		o.efConstruction = construction
		o.efSearch = search
	}
}

// WithM configures the graph connectivity parameter.
func WithM(m int) Option {
	return func(o *options) {
		o.m = m
	}
}

// WithCompactionThreshold configures the tombstone ratio above which
// ShouldCompact reports true.
func WithCompactionThreshold(ratio float64) Option {
	return func(o *options) {
		o.compactionThreshold = ratio
	}
}

// WithRandomSeed fixes the layer-assignment RNG for reproducible graphs.
// Zero keeps the time-based default.
func WithRandomSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithResourceLimits bounds background workers, snapshot IO bandwidth and
// tracked memory.
func WithResourceLimits(limits resource.Limits) Option {
	return func(o *options) {
		o.limits = &limits
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &lexvec.BasicMetricsCollector{}
//	eng, _ := lexvec.New(768, lexvec.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := lexvec.NewJSONLogger(slog.LevelInfo)
//	eng, _ := lexvec.New(768, lexvec.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
