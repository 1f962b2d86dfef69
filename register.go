package pgmux

import (
	"context"

	"github.com/riverside-labs/pgmux/internal/taskreg"
)

// TaskFunc is a pure CPU task with no database access: registered
// under a name and invoked on a worker via Dispatcher.Task.
type TaskFunc func(ctx context.Context, args ...interface{}) (interface{}, error)

// SessionFunc runs inside a worker with a connection checked out and
// pinned for its entire duration: registered under a name and invoked
// via Dispatcher.Session.
type SessionFunc func(ctx context.Context, q Querier, args ...interface{}) (interface{}, error)

// RegisterTask registers fn under name, the systems-language
// substitute for shipping a closure across the worker boundary: the
// dispatcher ships name plus a value-only argument list, and the
// worker looks name up in this registry. It panics on a duplicate
// name, since registration is expected to happen at package init time.
func RegisterTask(name string, fn TaskFunc) {
	taskreg.RegisterTask(name, func(ctx context.Context, args []interface{}) (interface{}, error) {
		return fn(ctx, args...)
	})
}

// RegisterSession registers fn under name for Dispatcher.Session.
func RegisterSession(name string, fn SessionFunc) {
	taskreg.RegisterSession(name, func(ctx context.Context, q taskreg.Querier, args []interface{}) (interface{}, error) {
		return fn(ctx, queryResultAdapter{q}, args...)
	})
}

// queryResultAdapter bridges taskreg.Querier (which returns
// taskreg.QueryResult, to avoid an import cycle back to this package)
// to the public Querier interface (which returns Result).
type queryResultAdapter struct {
	q taskreg.Querier
}

func (a queryResultAdapter) Query(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	qr, err := a.q.Query(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	return Result{Columns: qr.Columns, Rows: qr.Rows, RowsAffected: qr.RowsAffected}, nil
}
