// Package bitset provides the concurrent tombstone bitmap behind the index.
package bitset

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

// BitSet is a grow-only bitmap safe for concurrent Set/Unset/Test. Readers
// never block: the word slice is swapped atomically on growth and individual
// words are updated with atomic operations.
type BitSet struct {
	words  atomic.Pointer[[]atomicWord]
	growMu sync.Mutex
}

type atomicWord struct{ v atomic.Uint64 }

// New creates a BitSet able to hold at least size bits before growing.
func New(size uint64) *BitSet {
	b := &BitSet{}
	words := make([]atomicWord, (size+63)/64)
	b.words.Store(&words)
	return b
}

// Grow ensures the set can hold at least size bits.
func (b *BitSet) Grow(size uint64) {
	want := int((size + 63) / 64)
	if len(*b.words.Load()) >= want {
		return
	}

	b.growMu.Lock()
	defer b.growMu.Unlock()

	cur := b.words.Load()
	if len(*cur) >= want {
		return
	}
	n := 2 * len(*cur)
	if n < want {
		n = want
	}
	next := make([]atomicWord, n)
	for i := range *cur {
		next[i].v.Store((*cur)[i].v.Load())
	}
	b.words.Store(&next)
}

// Set sets bit i, growing the set as needed.
func (b *BitSet) Set(i uint64) {
	b.Grow(i + 1)
	words := *b.words.Load()
	mask := uint64(1) << (i & 63)
	w := &words[i>>6].v
	for {
		old := w.Load()
		if old&mask != 0 || w.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// Unset clears bit i. Clearing a bit beyond the current size is a no-op.
func (b *BitSet) Unset(i uint64) {
	words := *b.words.Load()
	if int(i>>6) >= len(words) {
		return
	}
	mask := uint64(1) << (i & 63)
	w := &words[i>>6].v
	for {
		old := w.Load()
		if old&mask == 0 || w.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

// Test reports whether bit i is set.
func (b *BitSet) Test(i uint64) bool {
	words := *b.words.Load()
	if int(i>>6) >= len(words) {
		return false
	}
	return words[i>>6].v.Load()&(uint64(1)<<(i&63)) != 0
}

// Count returns the number of set bits.
func (b *BitSet) Count() uint64 {
	var n uint64
	for i := range *b.words.Load() {
		n += uint64(bits.OnesCount64((*b.words.Load())[i].v.Load()))
	}
	return n
}

// Snapshot copies the current words out for serialization.
func (b *BitSet) Snapshot() []uint64 {
	words := *b.words.Load()
	out := make([]uint64, len(words))
	for i := range words {
		out[i] = words[i].v.Load()
	}
	return out
}

// Restore replaces the set's contents with previously snapshotted words.
func (b *BitSet) Restore(words []uint64) {
	next := make([]atomicWord, len(words))
	for i, w := range words {
		next[i].v.Store(w)
	}
	b.growMu.Lock()
	b.words.Store(&next)
	b.growMu.Unlock()
}
