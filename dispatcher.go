// Package pgmux multiplexes Postgres work over a local connection pool
// and a fleet of satellite worker pools, applying a shared resilience
// and error-classification layer to every call. See SPEC_FULL.md for
// the full design.
package pgmux

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riverside-labs/pgmux/internal/errcat"
	"github.com/riverside-labs/pgmux/internal/resilience"
	"github.com/riverside-labs/pgmux/internal/taskreg"
	"github.com/riverside-labs/pgmux/internal/wire"
	"github.com/riverside-labs/pgmux/internal/workerrt"
)

// Dispatcher is the public facade: a lazily-initialized local pool
// plus W satellite worker pools, reachable through Query, Task,
// Session, and SessionFunc. It is safe for concurrent use by any
// number of goroutines once constructed.
type Dispatcher struct {
	cfg Config
	log Logger

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	localPool *pgxpool.Pool
	localQ    Querier
	retry     *resilience.Policy
	breaker   *resilience.Breaker

	workers []*worker
	ring    *workerRing
	pending *pendingTable

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New validates cfg and returns a Dispatcher. No connection is opened
// until the first operation (or an explicit Warmup) runs; New itself
// never blocks or fails on the database being unreachable.
func New(cfg Config) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:      cfg,
		log:      cfg.Logger,
		initDone: make(chan struct{}),
		pending:  newPendingTable(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Warmup blocks until the local pool and every worker pool have been
// constructed, or ctx is cancelled first, mirroring the teacher's
// context-aware Connect. It is optional: any operation triggers the
// same initialization lazily on first use.
func (d *Dispatcher) Warmup(ctx context.Context) error {
	return d.ensureInit(ctx)
}

// errShutdown is the operational signal Query/Task/Session/SessionFunc
// return once Shutdown has run: spec.md §7 lists "instance has been
// shut down" as always surfaced, never retried.
var errShutdown = errcat.New(errcat.Unknown, "pgmux: instance has been shut down")

func (d *Dispatcher) ensureInit(ctx context.Context) error {
	if d.ctx.Err() != nil {
		return errShutdown
	}
	d.initOnce.Do(func() {
		d.initErr = d.init()
		close(d.initDone)
	})
	select {
	case <-d.initDone:
		if d.ctx.Err() != nil {
			return errShutdown
		}
		return d.initErr
	case <-ctx.Done():
		return errcat.Wrap(ctx.Err())
	}
}

func (d *Dispatcher) init() error {
	local, perWorker := partition(d.cfg.Max, d.cfg.workers())

	localPool, err := newPool(d.ctx, d.cfg.ConnectionString, local)
	if err != nil {
		return fmt.Errorf("pgmux: local pool: %w", err)
	}
	d.localPool = localPool
	d.localQ = poolQuerier{pool: localPool}
	d.retry = resilience.NewPolicy(d.cfg.Retry, d.log)
	d.breaker = resilience.NewBreaker(d.cfg.Breaker, d.log, "local")

	n := d.cfg.workers()
	workers := make([]*worker, n)
	for i := 0; i < n; i++ {
		wPool, err := newPool(d.ctx, d.cfg.ConnectionString, perWorker)
		if err != nil {
			return fmt.Errorf("pgmux: worker %d pool: %w", i, err)
		}
		wk := spawnWorker(d.ctx, i, workerrt.NewPgxPool(wPool), d.cfg.Retry, d.cfg.Breaker, d.log)
		workers[i] = wk

		d.wg.Add(1)
		go d.pumpOutbox(wk)
	}
	d.workers = workers
	d.ring = newWorkerRing(workers)
	d.pending.setWorkers(workers)
	return nil
}

func newPool(ctx context.Context, connString string, size int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(size)
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (d *Dispatcher) pumpOutbox(w *worker) {
	defer d.wg.Done()
	for env := range w.outbox() {
		d.pending.resolve(env)
	}
}

// Query runs sql against the local pool, wrapped in the dispatcher's
// own retry policy and circuit breaker.
func (d *Dispatcher) Query(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	if err := d.ensureInit(ctx); err != nil {
		return Result{}, err
	}
	return resilience.Do(ctx, d.retry, d.breaker, "query", func(ctx context.Context) (Result, error) {
		return d.localQ.Query(ctx, sql, args...)
	})
}

// Task runs the named registered CPU task on the next worker in
// rotation and returns its result.
func (d *Dispatcher) Task(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	if err := d.ensureInit(ctx); err != nil {
		return nil, err
	}
	if _, ok := taskreg.LookupTask(name); !ok {
		return nil, errcat.Wrap(taskreg.ErrNotFound(name))
	}

	w := d.ring.next()
	if w == nil {
		return nil, errcat.New(errcat.Unknown, "pgmux: no workers configured")
	}

	payload, err := wire.EncodeArgs(args)
	if err != nil {
		return nil, errcat.Wrap(err)
	}

	env := wire.Envelope{
		Kind:      wire.KindTask,
		RequestID: uuid.New(),
		TaskName:  name,
		Payload:   payload,
	}
	reply, err := d.roundTrip(ctx, w, env)
	if err != nil {
		return nil, err
	}
	if reply.ErrMsg != "" {
		return nil, errcat.New(reply.ErrCategory, reply.ErrMsg)
	}
	return wire.DecodeValue(reply.Payload)
}

// Session runs the named registered session body on the next worker in
// rotation, with a backend connection pinned for its entire duration
// (file-task mode: the body never leaves the worker).
func (d *Dispatcher) Session(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	if err := d.ensureInit(ctx); err != nil {
		return nil, err
	}
	if _, ok := taskreg.LookupSession(name); !ok {
		return nil, errcat.Wrap(taskreg.ErrNotFound(name))
	}

	w := d.ring.next()
	if w == nil {
		return nil, errcat.New(errcat.Unknown, "pgmux: no workers configured")
	}

	payload, err := wire.EncodeArgs(args)
	if err != nil {
		return nil, errcat.Wrap(err)
	}

	env := wire.Envelope{
		Kind:      wire.KindSessionStart,
		RequestID: uuid.New(),
		SessionID: uuid.New(),
		TaskName:  name,
		Payload:   payload,
	}
	reply, err := d.roundTrip(ctx, w, env)
	if err != nil {
		return nil, err
	}
	if reply.ErrMsg != "" {
		return nil, errcat.New(reply.ErrCategory, reply.ErrMsg)
	}
	return wire.DecodeValue(reply.Payload)
}

// SessionFunc pins a backend connection on the next worker in rotation
// for the duration of fn, handing fn a Session proxy whose Query calls
// tunnel back to that worker. The connection is always released,
// whether fn returns an error or not — the inline/debug mode retained
// alongside file-task Session for callers who want to drive SQL from
// caller-side Go rather than a registered body.
func (d *Dispatcher) SessionFunc(ctx context.Context, fn func(context.Context, Session) (interface{}, error)) (interface{}, error) {
	if err := d.ensureInit(ctx); err != nil {
		return nil, err
	}

	w := d.ring.next()
	if w == nil {
		return nil, errcat.New(errcat.Unknown, "pgmux: no workers configured")
	}

	sessionID := uuid.New()
	startEnv := wire.Envelope{
		Kind:      wire.KindSessionStart,
		RequestID: uuid.New(),
		SessionID: sessionID,
	}
	reply, err := d.roundTrip(ctx, w, startEnv)
	if err != nil {
		return nil, err
	}
	if reply.ErrMsg != "" {
		return nil, errcat.New(reply.ErrCategory, reply.ErrMsg)
	}

	sess := Session{id: sessionID, d: d, worker: w.id}

	// fn runs under a deferred cleanup rather than a plain sequential
	// call so the pinned connection is released even if fn panics: the
	// deferred SESSION_END still runs during the unwind, and the panic
	// then continues propagating to SessionFunc's own caller.
	var result interface{}
	var fnErr error
	func() {
		defer func() {
			endEnv := wire.Envelope{
				Kind:      wire.KindSessionEnd,
				RequestID: uuid.New(),
				SessionID: sessionID,
			}
			if _, endErr := d.roundTrip(ctx, w, endEnv); endErr != nil && d.log != nil {
				d.log.Warn("failed to release session", "session_id", sessionID.String(), "error", endErr.Error())
			}
		}()
		result, fnErr = fn(ctx, sess)
	}()

	return result, fnErr
}

func (d *Dispatcher) sessionQuery(ctx context.Context, s Session, sql string, args []interface{}) (Result, error) {
	w := d.ring.byIndex(s.worker)
	if w == nil {
		return Result{}, fmt.Errorf("pgmux: session %s has no owning worker", s.id)
	}

	payload, err := wire.EncodeQuery(wire.QueryPayload{SQL: sql, Args: args})
	if err != nil {
		return Result{}, err
	}

	env := wire.Envelope{
		Kind:      wire.KindSessionQuery,
		RequestID: uuid.New(),
		SessionID: s.id,
		Payload:   payload,
	}
	reply, err := d.roundTrip(ctx, w, env)
	if err != nil {
		return Result{}, err
	}
	if reply.ErrMsg != "" {
		return Result{}, errcat.New(reply.ErrCategory, reply.ErrMsg)
	}

	rp, err := wire.DecodeResult(reply.Payload)
	if err != nil {
		return Result{}, err
	}
	return resultFromPayload(rp), nil
}

// roundTrip submits env to w and waits for its correlated reply,
// forgetting the pending entry if ctx is cancelled first.
func (d *Dispatcher) roundTrip(ctx context.Context, w *worker, env wire.Envelope) (wire.Envelope, error) {
	ch := d.pending.register(env.RequestID)
	w.submit(env)

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		d.pending.forget(env.RequestID)
		return wire.Envelope{}, errcat.Wrap(ctx.Err())
	}
}

// Stats reports a point-in-time snapshot for observability.
type Stats struct {
	LocalPoolSize int
	WorkerCount   int
	BusyWorkers   int
	BreakerState  string
}

// Stats returns a snapshot of the dispatcher's current state. Calling
// it before any operation (and before Warmup) triggers initialization,
// same as any other method.
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	if err := d.ensureInit(ctx); err != nil {
		return Stats{}, err
	}
	busy := 0
	for _, w := range d.workers {
		if w.isBusy() {
			busy++
		}
	}
	return Stats{
		LocalPoolSize: int(d.localPool.Config().MaxConns),
		WorkerCount:   len(d.workers),
		BusyWorkers:   busy,
		BreakerState:  d.breaker.State(),
	}, nil
}

// Shutdown stops every worker and closes every pool, including the
// local one. It does not wait for in-flight requests to drain: per
// SPEC_FULL.md's shutdown decision, hard-terminate is the only
// behavior, matching the source's unconditional termination. Calling
// Shutdown before any operation has run is a safe no-op beyond
// preventing future use.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.cancel()
		for _, w := range d.workers {
			w.stop()
		}
		d.wg.Wait()
		if d.localPool != nil {
			d.localPool.Close()
		}
	})
	return nil
}
