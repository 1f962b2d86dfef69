package pgmux

import (
	"sync"

	"github.com/google/uuid"

	"github.com/riverside-labs/pgmux/internal/wire"
)

// pendingRequest is the receipt a caller blocks on while its envelope
// is in flight to a worker. reply receives exactly one value, sent by
// whichever goroutine drains the matching worker reply off its outbox.
type pendingRequest struct {
	reply chan wire.Envelope
}

// pendingTable correlates outbound envelopes with their eventual
// REPLY, keyed by RequestID, under a single mutex — spec.md §5's "no
// nested locks" requirement applied to the one piece of dispatcher
// state every call path touches. It also owns the worker-lookup used
// to clear a slot's busy flag when its reply arrives, so that happens
// even for a caller that already gave up waiting.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*pendingRequest
	workers map[int]*worker
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uuid.UUID]*pendingRequest)}
}

// setWorkers records the worker set resolve uses to clear busy flags.
// Called once, after the workers are constructed in Dispatcher.init.
func (t *pendingTable) setWorkers(workers []*worker) {
	m := make(map[int]*worker, len(workers))
	for _, w := range workers {
		m[w.id] = w
	}
	t.mu.Lock()
	t.workers = m
	t.mu.Unlock()
}

// register creates a receipt for id and returns the channel its reply
// will arrive on. The channel has capacity 1 so resolve never blocks
// even if the caller has already given up (e.g. context cancelled).
func (t *pendingTable) register(id uuid.UUID) chan wire.Envelope {
	ch := make(chan wire.Envelope, 1)
	t.mu.Lock()
	t.entries[id] = &pendingRequest{reply: ch}
	t.mu.Unlock()
	return ch
}

// resolve delivers env to the registered receipt for env.RequestID, if
// any, and forgets it. A reply for an unknown or already-abandoned
// request is dropped silently: the caller stopped waiting. The
// producing worker's busy flag is cleared unconditionally, since the
// slot is idle again regardless of whether anyone is still listening.
func (t *pendingTable) resolve(env wire.Envelope) {
	t.mu.Lock()
	p, ok := t.entries[env.RequestID]
	if ok {
		delete(t.entries, env.RequestID)
	}
	w := t.workers[env.WorkerID]
	t.mu.Unlock()

	if w != nil {
		w.setIdle()
	}
	if ok {
		p.reply <- env
	}
}

// forget removes id's receipt without waiting for a reply, used when a
// caller's context is cancelled before the worker responds.
func (t *pendingTable) forget(id uuid.UUID) {
	t.mu.Lock()
	delete(t.entries, id)
	t.mu.Unlock()
}
