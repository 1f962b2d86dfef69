package pgmux

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Result is the value-only shape a query returns across the module
// boundary: plain Go values only, safe to carry through the msgpack
// wire codec workers and the dispatcher exchange messages over.
type Result struct {
	Columns      []string
	Rows         [][]interface{}
	RowsAffected int64
}

// Querier is anything capable of running a SQL query and returning a
// Result: the local pool, or a single pinned connection checked out
// for a file-task session body. It is the seam between pgmux's
// dispatch logic and the pgx driver, matching spec.md §1's external
// collaborator boundary ("provides Pool, Client, query").
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (Result, error)
}

// poolQuerier adapts a *pgxpool.Pool to Querier. It is used for the
// local pool; worker pools are reached through workerrt.Pool instead.
type poolQuerier struct {
	pool *pgxpool.Pool
}

func (q poolQuerier) Query(ctx context.Context, sql string, args ...interface{}) (Result, error) {
	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return Result{}, err
	}
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) (Result, error) {
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
			return Result{}, err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	tag := rows.CommandTag()
	return Result{
		Columns:      columns,
		Rows:         out,
		RowsAffected: tag.RowsAffected(),
	}, nil
}
