// Package queue provides the value-based binary heaps the graph search uses
// for its candidate and result sets.
package queue

// Item is a graph position paired with its distance to the query.
type Item struct {
	Position uint32
	Distance float32
}

// PriorityQueue is a binary heap over Items. Storage is value-based so a
// search allocates nothing after the backing slice reaches steady size.
type PriorityQueue struct {
	max   bool // true = max-heap on Distance, false = min-heap
	items []Item
}

// NewMin returns a min-heap: the top item is the closest candidate.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{max: false, items: make([]Item, 0, capacity)}
}

// NewMax returns a max-heap: the top item is the worst result kept so far.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{max: true, items: make([]Item, 0, capacity)}
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Top returns the root of the heap without removing it.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts an item, maintaining the heap invariant.
func (pq *PriorityQueue) Push(it Item) {
	pq.items = append(pq.items, it)
	pq.siftUp(len(pq.items) - 1)
}

// Pop removes and returns the root of the heap.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n > 2 {
		pq.siftDown(0)
	}
	return root, true
}

// Min returns the item with the smallest distance. On a min-heap this is the
// root; on a max-heap it scans the backing slice.
func (pq *PriorityQueue) Min() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	if !pq.max {
		return pq.items[0], true
	}
	best := pq.items[0]
	for _, it := range pq.items[1:] {
		if it.Distance < best.Distance {
			best = it
		}
	}
	return best, true
}

// Items exposes the backing slice in heap order. Read-only.
func (pq *PriorityQueue) Items() []Item { return pq.items }

// Reset truncates the queue for reuse, keeping its capacity.
func (pq *PriorityQueue) Reset() { pq.items = pq.items[:0] }

func (pq *PriorityQueue) before(i, j int) bool {
	if pq.max {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.before(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		next := l
		if r := l + 1; r < n && pq.before(r, l) {
			next = r
		}
		if !pq.before(next, i) {
			return
		}
		pq.items[i], pq.items[next] = pq.items[next], pq.items[i]
		i = next
	}
}
