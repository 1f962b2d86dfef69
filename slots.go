package pgmux

import "sync"

// workerRing schedules across a fixed set of worker slots, the same
// index-and-modulo scheme the teacher's pool/round_robin.go uses to
// spread requests over a live connection set, generalized with the
// busy-awareness spec.md §4.1 describes: scan up to len(slots) slots
// starting at the cursor for the first with busy == false, advance the
// cursor past it, and use it; if every slot scanned is busy, fall back
// to the slot the cursor already points at (still advancing the
// cursor) rather than blocking. Unlike the teacher's ring, this one is
// fixed-size for the Dispatcher's lifetime: workers are created once
// during lazy initialization and torn down once in Shutdown, so there is no
// AddConn/DeleteConnByAddr equivalent.
type workerRing struct {
	mu      sync.Mutex
	slots   []*worker
	current int
}

func newWorkerRing(slots []*worker) *workerRing {
	return &workerRing{slots: slots}
}

// next returns the next worker to dispatch to, or nil if the ring is
// empty (W == 0). It prefers an idle slot, falling back to the slot at
// the cursor if none is found within one full scan.
func (r *workerRing) next() *worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.slots)
	if size == 0 {
		return nil
	}

	start := r.current
	for i := 0; i < size; i++ {
		idx := (start + i) % size
		if !r.slots[idx].isBusy() {
			r.current = (idx + 1) % size
			return r.slots[idx]
		}
	}

	// All slots busy: use the one at the cursor anyway and advance past
	// it, per spec.md §4.1.
	w := r.slots[start]
	r.current = (start + 1) % size
	return w
}

// byIndex returns the worker at position i, for session affinity: once
// a session is pinned to worker i, every subsequent call in that
// session must reach the same worker regardless of ring rotation.
func (r *workerRing) byIndex(i int) *worker {
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	return r.slots[i]
}

// all returns every worker slot.
func (r *workerRing) all() []*worker {
	return r.slots
}
