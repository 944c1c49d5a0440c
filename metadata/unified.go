package metadata

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// UnifiedIndex combines metadata storage with a roaring-bitmap inverted
// index keyed by graph position.
//
// Layout:
//   - documents: position -> Document
//   - inverted:  field -> value key -> bitmap of positions
//
// Eq and In filters compile to bitmap intersections; the remaining
// operators fall back to evaluating documents one by one.
type UnifiedIndex struct {
	mu        sync.RWMutex
	documents map[uint32]Document
	inverted  map[string]map[string]*roaring.Bitmap
}

// NewUnifiedIndex creates an empty index.
func NewUnifiedIndex() *UnifiedIndex {
	return &UnifiedIndex{
		documents: make(map[uint32]Document),
		inverted:  make(map[string]map[string]*roaring.Bitmap),
	}
}

// Set stores the document for a position, replacing any previous document
// and keeping the inverted index in sync.
func (ui *UnifiedIndex) Set(pos uint32, doc Document) {
	if doc == nil {
		return
	}

	ui.mu.Lock()
	defer ui.mu.Unlock()

	if old, ok := ui.documents[pos]; ok {
		ui.removeLocked(pos, old)
	}
	ui.documents[pos] = doc
	ui.addLocked(pos, doc)
}

// Get returns the document for a position.
func (ui *UnifiedIndex) Get(pos uint32) (Document, bool) {
	ui.mu.RLock()
	defer ui.mu.RUnlock()

	doc, ok := ui.documents[pos]
	return doc, ok
}

// Delete removes the document for a position. Unknown positions are a no-op.
func (ui *UnifiedIndex) Delete(pos uint32) {
	ui.mu.Lock()
	defer ui.mu.Unlock()

	if doc, ok := ui.documents[pos]; ok {
		ui.removeLocked(pos, doc)
		delete(ui.documents, pos)
	}
}

// Len returns the number of stored documents.
func (ui *UnifiedIndex) Len() int {
	ui.mu.RLock()
	defer ui.mu.RUnlock()

	return len(ui.documents)
}

func (ui *UnifiedIndex) addLocked(pos uint32, doc Document) {
	for field, value := range doc {
		byValue, ok := ui.inverted[field]
		if !ok {
			byValue = make(map[string]*roaring.Bitmap)
			ui.inverted[field] = byValue
		}
		vk := value.Key()
		bm, ok := byValue[vk]
		if !ok {
			bm = roaring.New()
			byValue[vk] = bm
		}
		bm.Add(pos)
	}
}

func (ui *UnifiedIndex) removeLocked(pos uint32, doc Document) {
	for field, value := range doc {
		byValue, ok := ui.inverted[field]
		if !ok {
			continue
		}
		vk := value.Key()
		bm, ok := byValue[vk]
		if !ok {
			continue
		}
		bm.Remove(pos)
		if bm.IsEmpty() {
			delete(byValue, vk)
			if len(byValue) == 0 {
				delete(ui.inverted, field)
			}
		}
	}
}

// bitmapLocked returns the posting bitmap for one field/value pair, or nil
// when nothing is indexed under it. Callers hold ui.mu.
func (ui *UnifiedIndex) bitmapLocked(field string, v Value) *roaring.Bitmap {
	byKey, ok := ui.inverted[field]
	if !ok {
		return nil
	}
	return byKey[v.Key()]
}

// CompileFilters compiles a FilterSet into a bitmap of matching positions.
// Only Eq and In compile; any other operator returns (nil, false) and the
// caller falls back to document evaluation.
func (ui *UnifiedIndex) CompileFilters(fs FilterSet) (*roaring.Bitmap, bool) {
	if len(fs) == 0 {
		return nil, false
	}

	ui.mu.RLock()
	defer ui.mu.RUnlock()

	var result *roaring.Bitmap

	for _, f := range fs {
		var bm *roaring.Bitmap

		switch f.Operator {
		case OpEqual:
			bm = ui.bitmapLocked(f.Field, f.Value)
		case OpIn:
			arr, ok := f.Value.AsArray()
			if !ok {
				return nil, false
			}
			bm = roaring.New()
			for _, v := range arr {
				if b := ui.bitmapLocked(f.Field, v); b != nil {
					bm.Or(b)
				}
			}
		default:
			return nil, false
		}

		if bm == nil {
			return roaring.New(), true
		}
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
		if result.IsEmpty() {
			return result, true
		}
	}

	return result, true
}

// CreateFilterFunc builds a position predicate for the graph search. Eq/In
// sets get an O(1) bitmap lookup; everything else evaluates the document.
// Returns nil for an empty set.
func (ui *UnifiedIndex) CreateFilterFunc(fs FilterSet) func(uint32) bool {
	if len(fs) == 0 {
		return nil
	}

	if bm, ok := ui.CompileFilters(fs); ok {
		return bm.Contains
	}

	return func(pos uint32) bool {
		doc, ok := ui.Get(pos)
		if !ok {
			return false
		}
		return fs.Matches(doc)
	}
}

// ToMap copies all documents out, keyed by position. Used by snapshots and
// compaction.
func (ui *UnifiedIndex) ToMap() map[uint32]Document {
	ui.mu.RLock()
	defer ui.mu.RUnlock()

	out := make(map[uint32]Document, len(ui.documents))
	for pos, doc := range ui.documents {
		out[pos] = doc
	}
	return out
}

// FromMap rebuilds the index from a position->document map, replacing any
// existing contents. The inverted index is reconstructed rather than
// persisted.
func (ui *UnifiedIndex) FromMap(docs map[uint32]Document) error {
	if docs == nil {
		return fmt.Errorf("metadata: nil document map")
	}

	ui.mu.Lock()
	defer ui.mu.Unlock()

	ui.documents = make(map[uint32]Document, len(docs))
	ui.inverted = make(map[string]map[string]*roaring.Bitmap)
	for pos, doc := range docs {
		ui.documents[pos] = doc
		ui.addLocked(pos, doc)
	}
	return nil
}
