// Package visited tracks which graph positions a single search has touched.
package visited

// Set is a bitset with a dirty list so Reset costs O(words touched) instead
// of O(capacity). Not safe for concurrent use; each search owns one.
type Set struct {
	bits  []uint64
	dirty []int
}

// New creates a Set sized for capacity positions.
func New(capacity int) *Set {
	return &Set{
		bits:  make([]uint64, (capacity+63)/64),
		dirty: make([]int, 0, 128),
	}
}

// Visit marks position p. Reports whether p was already visited.
func (s *Set) Visit(p uint32) bool {
	w := int(p >> 6)
	mask := uint64(1) << (p & 63)
	if w >= len(s.bits) {
		s.grow(w + 1)
	}
	if s.bits[w]&mask != 0 {
		return true
	}
	if s.bits[w] == 0 {
		s.dirty = append(s.dirty, w)
	}
	s.bits[w] |= mask
	return false
}

// Visited reports whether position p has been marked.
func (s *Set) Visited(p uint32) bool {
	w := int(p >> 6)
	if w >= len(s.bits) {
		return false
	}
	return s.bits[w]&(uint64(1)<<(p&63)) != 0
}

// Reset clears every word touched since the last Reset.
func (s *Set) Reset() {
	for _, w := range s.dirty {
		s.bits[w] = 0
	}
	s.dirty = s.dirty[:0]
}

// EnsureCapacity grows the set to hold at least capacity positions.
func (s *Set) EnsureCapacity(capacity int) {
	if w := (capacity + 63) / 64; w > len(s.bits) {
		s.grow(w)
	}
}

func (s *Set) grow(words int) {
	if c := 2 * len(s.bits); c > words {
		words = c
	}
	next := make([]uint64, words)
	copy(next, s.bits)
	s.bits = next
}
