package pgmux

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/riverside-labs/pgmux/internal/resilience"
	"github.com/riverside-labs/pgmux/internal/workerrt"
)

// fakeQuerier is the test_helpers-style fake local pool SPEC_FULL.md's
// test tooling section describes: a scriptable Querier that lets
// dispatcher tests drive Query's retry and breaker behavior without a
// live database, mirroring the teacher's own fake-box test doubles.
type fakeQuerier struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (Result, error)
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.respond(call)
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestDispatcher builds a Dispatcher wired directly to q, skipping
// the real pgxpool dialing in init. It has no workers.
func newTestDispatcher(cfg Config, q Querier) *Dispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		log:      cfg.Logger,
		initDone: make(chan struct{}),
		pending:  newPendingTable(),
		ctx:      ctx,
		cancel:   cancel,
		localQ:   q,
		retry:    resilience.NewPolicy(cfg.Retry, cfg.Logger),
		breaker:  resilience.NewBreaker(cfg.Breaker, cfg.Logger, "local"),
	}
	d.initOnce.Do(func() {})
	close(d.initDone)
	return d
}

// newTestDispatcherWithWorker builds a Dispatcher with a single live
// worker driven by pool, so Session/SessionFunc/Task can be exercised
// without a real database.
func newTestDispatcherWithWorker(cfg Config, pool workerrt.Pool) *Dispatcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:      cfg,
		log:      cfg.Logger,
		initDone: make(chan struct{}),
		pending:  newPendingTable(),
		ctx:      ctx,
		cancel:   cancel,
	}
	wk := spawnWorker(d.ctx, 0, pool, cfg.Retry, cfg.Breaker, cfg.Logger)
	d.workers = []*worker{wk}
	d.ring = newWorkerRing(d.workers)
	d.pending.setWorkers(d.workers)
	d.wg.Add(1)
	go d.pumpOutbox(wk)

	d.initOnce.Do(func() {})
	close(d.initDone)
	return d
}

// fakePool hands out a single fakeConn, mirroring a worker pool sized
// for one connection.
type fakePool struct {
	conn *fakeConn
}

func (p *fakePool) Acquire(ctx context.Context) (workerrt.Conn, error) {
	return p.conn, nil
}

func (p *fakePool) Close() {}

// fakeConn is a scriptable workerrt.Conn: each call to Query advances a
// counter and consults respond for its result, letting a test rig a
// specific sequence of successes and failures on one pinned connection.
type fakeConn struct {
	mu       sync.Mutex
	calls    int
	released int32
	respond  func(call int) (workerrt.Rows, error)
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...interface{}) (workerrt.Rows, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()
	return c.respond(call)
}

func (c *fakeConn) Release() {
	atomic.AddInt32(&c.released, 1)
}

func (c *fakeConn) releaseCount() int {
	return int(atomic.LoadInt32(&c.released))
}

// fakeRows is a workerrt.Rows with no result set, enough to exercise
// collectRows for statements like BEGIN/INSERT that return no columns.
type fakeRows struct {
	tag pgconn.CommandTag
	err error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return r.tag }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { return false }
func (r *fakeRows) Values() ([]interface{}, error)               { return nil, nil }
