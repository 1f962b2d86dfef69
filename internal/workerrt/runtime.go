// Package workerrt is the worker side of the dispatch: a WorkerRuntime
// owns one satellite connection pool and answers TASK and SESSION_*
// envelopes sent to it, exactly as spec.md §4.2 describes a worker
// process. Each runtime carries its own retry Policy and Breaker,
// replicated independently rather than shared with the dispatcher's
// (spec.md §4.2, §7): a worker degrading does not trip the main pool's
// breaker and vice versa. It generalizes the teacher's connection
// goroutine (connection.go's reader/writer loop) from a single wire
// connection to an in-process worker with its own database pool.
package workerrt

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"github.com/riverside-labs/pgmux/internal/errcat"
	"github.com/riverside-labs/pgmux/internal/resilience"
	"github.com/riverside-labs/pgmux/internal/taskreg"
	"github.com/riverside-labs/pgmux/internal/wire"
)

// Runtime is one worker: a pool of perWorker connections, a set of
// sessions it currently holds pinned, and its own resilience stack.
// A Runtime never touches another Runtime's pool; the dispatcher is
// the only thing that sees all of them at once.
type Runtime struct {
	ID   int
	pool Pool
	log  resilience.Logger

	retryCfg resilience.RetryConfig
	brCfg    resilience.BreakerConfig

	sessions sync.Map // uuid.UUID -> Conn

	inbox chan wire.Envelope
	out   chan wire.Envelope
}

// New constructs a Runtime bound to pool. Run must be started in its
// own goroutine before any envelope is Submitted.
func New(id int, pool Pool, retryCfg resilience.RetryConfig, brCfg resilience.BreakerConfig, log resilience.Logger) *Runtime {
	return &Runtime{
		ID:       id,
		pool:     pool,
		log:      log,
		retryCfg: retryCfg,
		brCfg:    brCfg,
		inbox:    make(chan wire.Envelope, 32),
		out:      make(chan wire.Envelope, 32),
	}
}

// Submit enqueues env for processing. It never blocks the caller for
// the duration of the call itself (only for inbox being full).
func (r *Runtime) Submit(env wire.Envelope) {
	r.inbox <- env
}

// Outbox is where replies appear, one per Submitted envelope.
func (r *Runtime) Outbox() <-chan wire.Envelope {
	return r.out
}

// Run pins the goroutine to an OS thread, the way the teacher's
// connection.go reader loop does for the lifetime of a live wire
// connection, and answers envelopes from inbox until ctx is
// cancelled. Every envelope is handled in its own goroutine so a slow
// SESSION_QUERY does not head-of-line block an unrelated TASK.
func (r *Runtime) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var wg sync.WaitGroup
	// Order matters: wg.Wait must finish before out is closed, so no
	// in-flight handle() goroutine ever sends on a closed channel.
	defer close(r.out)
	defer wg.Wait()

	retry := resilience.NewPolicy(r.retryCfg, r.log)
	breaker := resilience.NewBreaker(r.brCfg, r.log, fmt.Sprintf("worker-%d", r.ID))

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.inbox:
			wg.Add(1)
			go func(env wire.Envelope) {
				defer wg.Done()
				r.out <- r.handle(ctx, retry, breaker, env)
			}(env)
		}
	}
}

func (r *Runtime) handle(ctx context.Context, retry *resilience.Policy, breaker *resilience.Breaker, env wire.Envelope) wire.Envelope {
	reply := wire.Envelope{Kind: wire.KindReply, RequestID: env.RequestID, WorkerID: r.ID, SessionID: env.SessionID}

	switch env.Kind {
	case wire.KindTask:
		return r.handleTask(ctx, retry, breaker, env, reply)
	case wire.KindSessionStart:
		return r.handleSessionStart(ctx, retry, breaker, env, reply)
	case wire.KindSessionQuery:
		return r.handleSessionQuery(ctx, retry, breaker, env, reply)
	case wire.KindSessionEnd:
		return r.handleSessionEnd(env, reply)
	default:
		reply.SetError(errcat.New(errcat.Unknown, fmt.Sprintf("worker: unknown envelope kind %d", env.Kind)))
		return reply
	}
}

func (r *Runtime) handleTask(ctx context.Context, retry *resilience.Policy, breaker *resilience.Breaker, env wire.Envelope, reply wire.Envelope) wire.Envelope {
	fn, ok := taskreg.LookupTask(env.TaskName)
	if !ok {
		reply.SetError(errcat.Wrap(taskreg.ErrNotFound(env.TaskName)))
		return reply
	}

	args, err := wire.DecodeArgs(env.Payload)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	result, err := resilience.Do(ctx, retry, breaker, "task:"+env.TaskName, func(ctx context.Context) (interface{}, error) {
		return fn(ctx, args)
	})
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	payload, err := wire.EncodeValue(result)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}
	reply.Payload = payload
	return reply
}

func (r *Runtime) handleSessionStart(ctx context.Context, retry *resilience.Policy, breaker *resilience.Breaker, env wire.Envelope, reply wire.Envelope) wire.Envelope {
	conn, err := resilience.Do(ctx, retry, breaker, "session_acquire", func(ctx context.Context) (Conn, error) {
		return r.pool.Acquire(ctx)
	})
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	if env.TaskName == "" {
		// Inline mode: the caller drives this session with SESSION_QUERY
		// messages and must close it with SESSION_END.
		r.sessions.Store(env.SessionID, conn)
		return reply
	}

	// File-task mode: the registered body runs entirely inside this
	// worker, sees the connection only through a Querier, and the
	// connection is released before the reply goes out.
	defer conn.Release()

	fn, ok := taskreg.LookupSession(env.TaskName)
	if !ok {
		reply.SetError(errcat.Wrap(taskreg.ErrNotFound(env.TaskName)))
		return reply
	}

	args, err := wire.DecodeArgs(env.Payload)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	result, err := fn(ctx, connQuerier{conn}, args)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	payload, err := wire.EncodeValue(result)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}
	reply.Payload = payload
	return reply
}

func (r *Runtime) handleSessionQuery(ctx context.Context, retry *resilience.Policy, breaker *resilience.Breaker, env wire.Envelope, reply wire.Envelope) wire.Envelope {
	v, ok := r.sessions.Load(env.SessionID)
	if !ok {
		reply.SetError(errNoSuchSession(env.SessionID))
		return reply
	}
	conn := v.(Conn)

	q, err := wire.DecodeQuery(env.Payload)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	result, err := resilience.Do(ctx, retry, breaker, "session_query", func(ctx context.Context) (wire.ResultPayload, error) {
		rows, err := conn.Query(ctx, q.SQL, q.Args...)
		if err != nil {
			return wire.ResultPayload{}, err
		}
		return collectRows(rows)
	})
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}

	payload, err := wire.EncodeResult(result)
	if err != nil {
		reply.SetError(errcat.Wrap(err))
		return reply
	}
	reply.Payload = payload
	return reply
}

func (r *Runtime) handleSessionEnd(env wire.Envelope, reply wire.Envelope) wire.Envelope {
	v, ok := r.sessions.LoadAndDelete(env.SessionID)
	if !ok {
		reply.SetError(errNoSuchSession(env.SessionID))
		return reply
	}
	v.(Conn).Release()
	return reply
}

func errNoSuchSession(id uuid.UUID) *errcat.WrappedError {
	return errcat.New(errcat.Unknown, fmt.Sprintf("worker: session %s is not pinned to this worker", id))
}

// connQuerier adapts a single checked-out Conn into the minimal query
// surface a registered SessionFunc receives.
type connQuerier struct {
	conn Conn
}

func (q connQuerier) Query(ctx context.Context, sql string, args ...interface{}) (taskreg.QueryResult, error) {
	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return taskreg.QueryResult{}, err
	}
	rp, err := collectRows(rows)
	if err != nil {
		return taskreg.QueryResult{}, err
	}
	return taskreg.QueryResult(rp), nil
}

func collectRows(rows Rows) (wire.ResultPayload, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out [][]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return wire.ResultPayload{}, err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return wire.ResultPayload{}, err
	}

	tag := rows.CommandTag()
	return wire.ResultPayload{
		Columns:      columns,
		Rows:         out,
		RowsAffected: tag.RowsAffected(),
	}, nil
}

// Close closes this worker's pool. Callers must ensure Run has
// returned (or ctx has been cancelled) first.
func (r *Runtime) Close() {
	r.pool.Close()
}
