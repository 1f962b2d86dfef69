package errcat

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classify inspects err and returns the category the resilience layer
// should treat it as. Rules are applied in order, first match wins,
// mirroring the code/name/message precedence a Postgres driver error
// is inspected under.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	// Rule 1: peel an aggregate error and recurse into its first cause.
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		return Classify(merr.Errors[0])
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if cat, ok := classifyCode(pgErr.Code); ok {
			return cat
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if errors.Is(err, context.Canceled) {
		return Connection
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return Connection
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return Timeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Connection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return Timeout
	case strings.Contains(msg, "connection"):
		return Connection
	case strings.Contains(msg, "deadlock"):
		return Deadlock
	}

	return Unknown
}

// classifyCode implements spec rules 2, 3 (partial), 4 (partial) and 5
// against a Postgres SQLSTATE code.
func classifyCode(code string) (Category, bool) {
	switch code {
	case "40001":
		return Serialization, true
	case "40P01":
		return Deadlock, true
	case "57014":
		return Timeout, true
	case "57P01", "57P02":
		return Connection, true
	}

	switch {
	case strings.HasPrefix(code, "23"):
		return Constraint, true
	case strings.HasPrefix(code, "42"):
		return Syntax, true
	case strings.HasPrefix(code, "08"):
		return Connection, true
	}

	return Unknown, false
}
