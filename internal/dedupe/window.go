// ABOUTME: Thread-safe fixed-capacity window for deduplicating event IDs.
// ABOUTME: Keeps insertion order so the oldest entries are evicted first.

package dedupe

import (
	"container/list"
	"sync"
)

// DefaultCapacity is the window size used by the realtime sync layer.
const DefaultCapacity = 500

// Window tracks the most recently admitted event IDs. It pairs a map for
// O(1) membership tests with a doubly-linked list for O(1) oldest-first
// eviction. An ID evicted from the window is treated as brand-new if it is
// seen again; that is accepted bounded-memory behavior.
type Window struct {
	mu       sync.Mutex
	seen     map[string]*list.Element
	order    *list.List // IDs in insertion order, oldest at front
	capacity int
}

// NewWindow creates a window holding at most capacity IDs. A capacity of
// zero or less falls back to DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		seen:     make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
}

// Admit atomically checks whether id has been seen and records it if not.
// It returns true if the ID is new (caller should deliver the event) and
// false if it is a duplicate. When admitting pushes the window past
// capacity, the oldest entries are evicted until the size is exactly the
// capacity again.
func (w *Window) Admit(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.seen[id]; dup {
		return false
	}

	w.seen[id] = w.order.PushBack(id)

	for len(w.seen) > w.capacity {
		front := w.order.Front()
		if front == nil {
			break
		}
		evicted, _ := front.Value.(string)
		w.order.Remove(front)
		delete(w.seen, evicted)
	}

	return true
}

// Contains reports whether id is currently inside the window.
func (w *Window) Contains(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, ok := w.seen[id]
	return ok
}

// Len returns the number of IDs currently tracked.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.seen)
}
