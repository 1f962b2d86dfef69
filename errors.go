package pgmux

import "github.com/riverside-labs/pgmux/internal/errcat"

// Category classifies an error into one of the buckets the resilience
// layer and callers reason about. It is a type alias for
// errcat.Category so error classification and the public API share one
// vocabulary.
type Category = errcat.Category

const (
	Transient     = errcat.Transient
	Connection    = errcat.Connection
	Timeout       = errcat.Timeout
	Deadlock      = errcat.Deadlock
	Serialization = errcat.Serialization
	Constraint    = errcat.Constraint
	Syntax        = errcat.Syntax
	Unknown       = errcat.Unknown
)

// WrappedError is the canonical error shape a Dispatcher operation
// returns for a failure that originated in the database or the
// resilience layer: a human-readable message, a Category, and the
// original cause.
type WrappedError = errcat.WrappedError

// Classify categorizes err the same way the resilience layer does
// internally, for callers that want to branch on error category
// without unwrapping a WrappedError themselves.
func Classify(err error) Category {
	return errcat.Classify(err)
}
