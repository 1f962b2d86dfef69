package errcat

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/pgconn"
)

// WrappedError is the canonical error value at the pgmux public API
// boundary: a message, a category, and the original cause.
type WrappedError struct {
	Message  string
	Category Category
	Cause    error
}

func (e *WrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *WrappedError) Unwrap() error {
	return e.Cause
}

// Wrap categorizes err and returns the canonical WrappedError. If err
// is already a *WrappedError it is returned unchanged: wrapping is
// idempotent, Wrap(Wrap(e)) == Wrap(e).
func Wrap(err error) *WrappedError {
	if err == nil {
		return nil
	}

	var already *WrappedError
	if errors.As(err, &already) {
		return already
	}

	inner := err
	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		inner = merr.Errors[0]
	}

	msg := inner.Error()
	if pgErr, ok := inner.(*pgconn.PgError); ok && pgErr.Message != "" {
		msg = pgErr.Message
	}
	if msg == "" {
		msg = "Unknown error"
	}

	return &WrappedError{
		Message:  msg,
		Category: Classify(inner),
		Cause:    err,
	}
}

// New builds a WrappedError directly for operational signals that do
// not originate from an underlying driver error (e.g. "instance has
// been shut down"). The category is the caller's choice, and it decides
// whether the default retry predicate treats the signal as retryable.
func New(category Category, message string) *WrappedError {
	return &WrappedError{
		Message:  message,
		Category: category,
		Cause:    errors.New(message),
	}
}
