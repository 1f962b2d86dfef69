package pgmux

import (
	"context"

	"github.com/google/uuid"

	"github.com/riverside-labs/pgmux/internal/wire"
)

// Session pins a single backend connection, held by one worker, across
// multiple round trips. It generalizes the teacher's Stream{Id, Conn}
// (a stream is already "a pinned execution context that tunnels
// requests back to one connection") without the transaction framing:
// BEGIN/COMMIT/ROLLBACK are ordinary SQL the caller sends through
// Query, not pgmux operations.
//
// A Session's only exported behavior is Query; there is deliberately
// no Release or Checkin method; ending a session (see Dispatcher's
// inline-mode helpers) is the only way to give the connection back.
type Session struct {
	id     uuid.UUID
	d      *Dispatcher
	worker int
}

// Query runs sql against this session's pinned connection and returns
// its result. Every call is tunneled to the same worker that holds the
// connection, regardless of which goroutine calls Query.
func (s Session) Query(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	return s.d.sessionQuery(ctx, s, sql, args)
}

// resultFromPayload converts the wire-level result shape into the
// public Result type. They are field-for-field identical; this
// conversion exists so internal/wire does not depend on the root
// package.
func resultFromPayload(p wire.ResultPayload) Result {
	return Result{Columns: p.Columns, Rows: p.Rows, RowsAffected: p.RowsAffected}
}
