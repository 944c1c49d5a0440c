// Package wal implements the append-only write-ahead log that makes record
// mutations durable between snapshots.
//
// On-disk layout: a small self-describing header followed by frames of
// [length:4][crc32c:4][payload]. Payloads are codec-encoded entries,
// optionally zstd-compressed. The CRC guards against torn writes: replay
// stops at the first damaged frame and discards the tail.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/docketsearch/lexvec/codec"
	"github.com/docketsearch/lexvec/metadata"
)

const (
	magic       = "LXWL"
	version     = 1
	flagZstd    = 1 << 0
	maxFrameLen = 64 << 20
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrClosed is returned by operations on a closed WAL.
var ErrClosed = errors.New("wal: closed")

// WAL is an append-only log of record mutations.
type WAL struct {
	mu     sync.Mutex
	opts   Options
	file   *os.File
	writer *bufio.Writer
	codec  codec.Codec
	seq    uint64
	dirty  bool
	closed bool

	enc *zstd.Encoder
	dec *zstd.Decoder

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open opens or creates the log at opts.Path. Existing files are scanned to
// recover the sequence number; a torn tail from a crash is truncated away.
func Open(optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", opts.Path, err)
	}

	w := &WAL{
		opts:   opts,
		file:   file,
		codec:  codec.Default,
		stopCh: make(chan struct{}),
	}

	if w.enc, err = zstd.NewWriter(nil); err != nil {
		file.Close()
		return nil, err
	}
	if w.dec, err = zstd.NewReader(nil); err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := w.writeHeader(file); err != nil {
			file.Close()
			return nil, err
		}
	} else {
		if err := w.readHeader(file); err != nil {
			file.Close()
			return nil, err
		}
		if err := w.scanAndRecover(); err != nil {
			file.Close()
			return nil, err
		}
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, err
	}
	w.writer = bufio.NewWriter(file)

	if opts.DurabilityMode == DurabilityGroupCommit {
		if w.opts.GroupCommitInterval <= 0 {
			w.opts.GroupCommitInterval = DefaultOptions.GroupCommitInterval
		}
		w.wg.Add(1)
		go w.groupCommitWorker()
	}
	return w, nil
}

func (w *WAL) writeHeader(f *os.File) error {
	var flags byte
	if w.opts.Compress {
		flags |= flagZstd
	}
	name := w.codec.Name()
	hdr := make([]byte, 0, 6+1+len(name))
	hdr = append(hdr, magic...)
	hdr = append(hdr, version, flags, byte(len(name)))
	hdr = append(hdr, name...)
	if _, err := f.Write(hdr); err != nil {
		return err
	}
	return f.Sync()
}

func (w *WAL) readHeader(f *os.File) error {
	buf := make([]byte, 7)
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("wal: short header: %w", err)
	}
	if string(buf[:4]) != magic {
		return fmt.Errorf("wal: bad magic %q", buf[:4])
	}
	if buf[4] != version {
		return fmt.Errorf("wal: unsupported version %d", buf[4])
	}
	w.opts.Compress = buf[5]&flagZstd != 0

	name := make([]byte, buf[6])
	if _, err := io.ReadFull(f, name); err != nil {
		return fmt.Errorf("wal: short header: %w", err)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return fmt.Errorf("wal: unknown codec %q", name)
	}
	w.codec = c
	return nil
}

// scanAndRecover walks the frames after the header, recovering the highest
// sequence number and truncating any damaged tail.
func (w *WAL) scanAndRecover() error {
	offset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	r := bufio.NewReader(w.file)

	for {
		entry, n, err := w.readFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// Torn or corrupt tail: drop everything from here on.
			return w.file.Truncate(offset)
		}
		offset += int64(n)
		if entry.SeqNum > w.seq {
			w.seq = entry.SeqNum
		}
	}
}

// readFrame decodes one frame, returning the entry and bytes consumed.
func (w *WAL) readFrame(r io.Reader) (*Entry, int, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, err
	}
	length := binary.LittleEndian.Uint32(hdr[:4])
	sum := binary.LittleEndian.Uint32(hdr[4:])
	if length == 0 || length > maxFrameLen {
		return nil, 0, fmt.Errorf("wal: implausible frame length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, err
	}
	if crc32.Checksum(payload, castagnoli) != sum {
		return nil, 0, errors.New("wal: frame checksum mismatch")
	}

	if w.opts.Compress {
		decoded, err := w.dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, 0, err
		}
		payload = decoded
	}

	var entry Entry
	if err := w.codec.Unmarshal(payload, &entry); err != nil {
		return nil, 0, err
	}
	return &entry, 8 + int(length), nil
}

// AppendAdd logs a new record.
func (w *WAL) AppendAdd(id string, vector []float32, snippet string, meta metadata.Document) error {
	return w.append(&Entry{
		Type:     OpAdd,
		RecordID: id,
		Vector:   vector,
		Snippet:  snippet,
		Metadata: meta,
	})
}

// AppendRemove logs a record removal.
func (w *WAL) AppendRemove(id string) error {
	return w.append(&Entry{Type: OpRemove, RecordID: id})
}

// AppendCheckpoint logs a snapshot boundary marker.
func (w *WAL) AppendCheckpoint() error {
	return w.append(&Entry{Type: OpCheckpoint})
}

func (w *WAL) append(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	w.seq++
	entry.SeqNum = w.seq

	payload, err := w.codec.Marshal(entry)
	if err != nil {
		return err
	}
	if w.opts.Compress {
		payload = w.enc.EncodeAll(payload, nil)
	}

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:], crc32.Checksum(payload, castagnoli))
	if _, err := w.writer.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}

	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	switch w.opts.DurabilityMode {
	case DurabilitySync:
		if err := w.writer.Flush(); err != nil {
			return err
		}
		return w.file.Sync()
	case DurabilityGroupCommit:
		w.dirty = true
		return nil
	default:
		return w.writer.Flush()
	}
}

func (w *WAL) groupCommitWorker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.GroupCommitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.dirty && !w.closed {
				if err := w.writer.Flush(); err == nil {
					_ = w.file.Sync()
				}
				w.dirty = false
			}
			w.mu.Unlock()
		}
	}
}

// Replay invokes fn for every committed entry in log order. Checkpoint
// markers are delivered like any other entry; callers usually ignore them.
// Returns the number of entries replayed.
func (w *WAL) Replay(fn func(entry *Entry) error) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return 0, err
	}

	f, err := os.Open(w.opts.Path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := w.readHeader(f); err != nil {
		return 0, err
	}

	r := bufio.NewReader(f)
	count := 0
	for {
		entry, _, err := w.readFrame(r)
		if err != nil {
			// EOF or a damaged tail ends replay; everything before it
			// has already been applied.
			return count, nil
		}
		if err := fn(entry); err != nil {
			return count, err
		}
		count++
	}
}

// Truncate discards all logged entries, keeping the header and sequence
// counter. Called after a snapshot makes the log redundant.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := w.writeHeader(w.file); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	w.writer.Reset(w.file)
	return nil
}

// SeqNum returns the sequence number of the most recent entry.
func (w *WAL) SeqNum() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Close flushes, syncs and closes the log.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	flushErr := w.writer.Flush()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.enc.Close()
	w.dec.Close()

	if flushErr != nil {
		return flushErr
	}
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
