package pgmux

import (
	"context"
	"sync/atomic"

	"github.com/riverside-labs/pgmux/internal/resilience"
	"github.com/riverside-labs/pgmux/internal/wire"
	"github.com/riverside-labs/pgmux/internal/workerrt"
)

// worker is the dispatcher-side handle for one satellite worker: its
// own runtime and the goroutine pump that pins the worker's Run loop
// to an OS thread. It is the value the round-robin ring and session
// affinity table hand around; nothing outside this file touches a
// worker's workerrt.Runtime directly.
//
// busy tracks the WorkerSlot invariant: a worker is busy from the
// moment an envelope is submitted to it until its matching REPLY is
// observed, so the ring's scheduling algorithm can prefer idle slots.
type worker struct {
	id      int
	rt      *workerrt.Runtime
	cancel  context.CancelFunc
	stopped chan struct{}
	busy    int32
}

// spawnWorker starts a worker's Run loop in its own goroutine,
// mirroring the teacher's per-connection reader/writer goroutine pair
// (connection.go) generalized to a worker with a database pool instead
// of a wire socket. pool is a workerrt.Pool so tests can drive a worker
// with a fake pool instead of a live *pgxpool.Pool.
func spawnWorker(parent context.Context, id int, pool workerrt.Pool, retryCfg resilience.RetryConfig, brCfg resilience.BreakerConfig, log resilience.Logger) *worker {
	ctx, cancel := context.WithCancel(parent)
	rt := workerrt.New(id, pool, retryCfg, brCfg, log)

	w := &worker{id: id, rt: rt, cancel: cancel, stopped: make(chan struct{})}
	go func() {
		defer close(w.stopped)
		rt.Run(ctx)
	}()
	return w
}

func (w *worker) submit(env wire.Envelope) {
	atomic.StoreInt32(&w.busy, 1)
	w.rt.Submit(env)
}

func (w *worker) outbox() <-chan wire.Envelope {
	return w.rt.Outbox()
}

// setIdle clears the busy flag, called once this worker's matching
// REPLY has been observed on its outbox.
func (w *worker) setIdle() {
	atomic.StoreInt32(&w.busy, 0)
}

func (w *worker) isBusy() bool {
	return atomic.LoadInt32(&w.busy) != 0
}

// stop cancels the worker's Run loop, waits for it to exit, and
// closes its pool. It must only be called once.
func (w *worker) stop() {
	w.cancel()
	<-w.stopped
	w.rt.Close()
}
