package errcat_test

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverside-labs/pgmux/internal/errcat"
)

func TestWrap_Basic(t *testing.T) {
	w := errcat.Wrap(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	require.NotNil(t, w)
	assert.Equal(t, errcat.Serialization, w.Category)
	assert.Equal(t, "could not serialize access", w.Message)
	assert.ErrorIs(t, w, w.Cause)
}

func TestWrap_NilFallbackMessage(t *testing.T) {
	w := errcat.Wrap(errors.New(""))
	require.NotNil(t, w)
	assert.Equal(t, "Unknown error", w.Message)
}

func TestWrap_Idempotent(t *testing.T) {
	first := errcat.Wrap(errors.New("boom"))
	second := errcat.Wrap(first)

	assert.Same(t, first, second)
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, errcat.Wrap(nil))
}

func TestNew(t *testing.T) {
	w := errcat.New(errcat.Connection, "circuit breaker is open")
	assert.Equal(t, errcat.Connection, w.Category)
	assert.Equal(t, "circuit breaker is open", w.Message)
	assert.Contains(t, w.Error(), "CONNECTION")
}
