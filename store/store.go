// Package store maps string record IDs to graph positions and holds the
// record payloads (embedding, snippet, metadata document).
package store

import (
	"errors"
	"sync"

	"github.com/docketsearch/lexvec/metadata"
)

var (
	// ErrExists is returned when adding a record ID that is already stored.
	ErrExists = errors.New("store: record already exists")

	// ErrNotFound is returned when a record ID is unknown.
	ErrNotFound = errors.New("store: record not found")
)

// Status tracks a record through the ingest pipeline.
type Status uint8

const (
	// StatusPending means the record is stored but not yet indexed. The
	// coordinator retries indexing for pending records.
	StatusPending Status = iota
	// StatusIndexed means the record is searchable.
	StatusIndexed
)

// Record is one ingested unit: a case section, opinion paragraph or other
// snippet with its embedding and metadata.
type Record struct {
	ID        string            `json:"id"`
	Embedding []float32         `json:"embedding"`
	Snippet   string            `json:"snippet,omitempty"`
	Metadata  metadata.Document `json:"metadata,omitempty"`
}

// Stored pairs a record with its index position and status. Used by
// snapshots and compaction.
type Stored struct {
	Record   Record `json:"record"`
	Position uint32 `json:"position"`
	Status   Status `json:"status"`
}

type storedRecord struct {
	record   Record
	position uint32
	status   Status
}

// RecordStore is the ID-keyed record map plus the position-to-ID mapping the
// planner uses to resolve search hits. Safe for concurrent use; the
// coordinator serializes writers.
type RecordStore struct {
	mu         sync.RWMutex
	byID       map[string]*storedRecord
	byPosition map[uint32]string
}

// New creates an empty store.
func New() *RecordStore {
	return &RecordStore{
		byID:       make(map[string]*storedRecord),
		byPosition: make(map[uint32]string),
	}
}

// PutPending stores a record in pending state. Fails with ErrExists if the
// ID is already present.
func (s *RecordStore) PutPending(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; ok {
		return ErrExists
	}
	s.byID[rec.ID] = &storedRecord{record: rec, status: StatusPending}
	return nil
}

// MarkIndexed binds a pending record to its graph position.
func (s *RecordStore) MarkIndexed(id string, pos uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	sr.position = pos
	sr.status = StatusIndexed
	s.byPosition[pos] = id
	return nil
}

// Get returns the record for an ID.
func (s *RecordStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return sr.record, true
}

// Position returns the graph position and status for an ID.
func (s *RecordStore) Position(id string) (uint32, Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.byID[id]
	if !ok {
		return 0, 0, false
	}
	return sr.position, sr.status, true
}

// ResolveID maps a graph position back to its record ID.
func (s *RecordStore) ResolveID(pos uint32) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPosition[pos]
	return id, ok
}

// GetByPosition returns the record indexed at a position.
func (s *RecordStore) GetByPosition(pos uint32) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPosition[pos]
	if !ok {
		return Record{}, false
	}
	sr, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	return sr.record, true
}

// Delete removes a record. Returns its position and whether it had been
// indexed; deleting an unknown ID reports existed=false.
func (s *RecordStore) Delete(id string) (pos uint32, indexed bool, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sr, ok := s.byID[id]
	if !ok {
		return 0, false, false
	}
	delete(s.byID, id)
	if sr.status == StatusIndexed {
		delete(s.byPosition, sr.position)
		return sr.position, true, true
	}
	return 0, false, true
}

// Len returns the number of stored records, pending included.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// PendingIDs returns the IDs of records awaiting indexing.
func (s *RecordStore) PendingIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, sr := range s.byID {
		if sr.status == StatusPending {
			out = append(out, id)
		}
	}
	return out
}

// Export copies all records out for snapshots and compaction.
func (s *RecordStore) Export() []Stored {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stored, 0, len(s.byID))
	for _, sr := range s.byID {
		out = append(out, Stored{Record: sr.record, Position: sr.position, Status: sr.status})
	}
	return out
}

// Import rebuilds a store from exported records.
func Import(records []Stored) *RecordStore {
	s := New()
	for _, st := range records {
		sr := &storedRecord{record: st.Record, position: st.Position, status: st.Status}
		s.byID[st.Record.ID] = sr
		if st.Status == StatusIndexed {
			s.byPosition[st.Position] = st.Record.ID
		}
	}
	return s
}

// Rebased returns a copy of the store with indexed positions rewritten
// through remap. Records whose position is absent from remap (tombstoned in
// the old graph) are dropped; pending records carry over untouched. The
// receiver is not modified, so readers holding the old state stay coherent.
func (s *RecordStore) Rebased(remap map[uint32]uint32) *RecordStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := New()
	for id, sr := range s.byID {
		switch sr.status {
		case StatusPending:
			next.byID[id] = &storedRecord{record: sr.record, status: StatusPending}
		case StatusIndexed:
			newPos, ok := remap[sr.position]
			if !ok {
				continue
			}
			next.byID[id] = &storedRecord{record: sr.record, position: newPos, status: StatusIndexed}
			next.byPosition[newPos] = id
		}
	}
	return next
}
