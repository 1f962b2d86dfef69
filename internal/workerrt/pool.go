package workerrt

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the minimal pgxpool.Pool surface a Runtime needs: acquire a
// connection, and release the pool's own resources on shutdown. It is
// the seam that lets a fake pool drive a Runtime in tests without a
// live database, the same role postgres.go's Querier interface plays
// for the local pool.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Close()
}

// Conn is the minimal pgxpool.Conn surface a pinned session holds for
// its duration.
type Conn interface {
	Query(ctx context.Context, sql string, args ...interface{}) (Rows, error)
	Release()
}

// Rows is the subset of pgx.Rows that collectRows consumes. Declaring
// it locally rather than depending on pgx.Rows directly keeps a fake
// Conn's Query result small enough to hand-write in tests.
type Rows interface {
	Close()
	Err() error
	CommandTag() pgconn.CommandTag
	FieldDescriptions() []pgconn.FieldDescription
	Next() bool
	Values() ([]interface{}, error)
}

// NewPgxPool adapts a real *pgxpool.Pool to Pool.
func NewPgxPool(pool *pgxpool.Pool) Pool {
	return pgxPool{pool}
}

type pgxPool struct {
	pool *pgxpool.Pool
}

func (p pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn}, nil
}

func (p pgxPool) Close() {
	p.pool.Close()
}

type pgxConn struct {
	conn *pgxpool.Conn
}

func (c pgxConn) Query(ctx context.Context, sql string, args ...interface{}) (Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	// pgx.Rows's method set is a superset of Rows; this is a plain
	// interface-to-interface assignment, not a type assertion.
	return rows, nil
}

func (c pgxConn) Release() {
	c.conn.Release()
}
