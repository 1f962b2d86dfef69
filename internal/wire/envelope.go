// Package wire defines the message envelope and codec pgmux's
// dispatcher and worker runtimes exchange over the transport. It
// mirrors the teacher's own wire layer (request.go/response.go/
// stream.go), which frames every call as a small struct carrying a
// request id, a payload, and (for stream-bound calls) a session-like
// id, encoded with the same msgpack codec the teacher uses.
package wire

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/riverside-labs/pgmux/internal/errcat"
)

// Kind tags the message envelopes flowing between the dispatcher and a
// worker runtime.
type Kind uint8

const (
	// Outbound (dispatcher -> worker).
	KindTask Kind = iota + 1
	KindSessionStart
	KindSessionQuery
	KindSessionEnd

	// Inbound (worker -> dispatcher).
	KindReply
)

// Envelope is the tagged-union message value exchanged across the
// transport. Every field is a plain value; Payload is a msgpack blob
// so that no live reference (closures, channels, driver handles) can
// cross the worker boundary, whether or not the transport happens to
// share an address space.
type Envelope struct {
	Kind      Kind
	RequestID uuid.UUID
	WorkerID  int
	SessionID uuid.UUID
	// TaskName selects a function from the task registry (see
	// internal/taskreg). Empty in a SESSION_START means "checkout only,
	// no body" — the inline/debug session mode described in DESIGN.md.
	TaskName string
	Payload  []byte
	// ErrMsg and ErrCategory together carry a REPLY's failure: ErrMsg is
	// the bare message (errcat.WrappedError.Message, not its formatted
	// Error() string), ErrCategory the classification, so the dispatcher
	// can reconstruct the identical errcat.WrappedError the worker saw
	// instead of collapsing it to an unclassified string.
	ErrMsg      string
	ErrCategory errcat.Category
}

// SetError records err on a REPLY envelope, splitting it into the
// message/category pair that survives the trip back to the dispatcher.
func (e *Envelope) SetError(err *errcat.WrappedError) {
	e.ErrMsg = err.Message
	e.ErrCategory = err.Category
}

// EncodeArgs msgpack-encodes args for inclusion in an Envelope's
// Payload. It rejects values msgpack cannot represent (functions,
// channels, unexported-only structs) with a clear, spec-mandated error
// rather than a codec-internal one.
func EncodeArgs(args []interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("wire: argument is not a serializable value: %w", err)
	}
	return b, nil
}

// DecodeArgs is the inverse of EncodeArgs.
func DecodeArgs(payload []byte) ([]interface{}, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var args []interface{}
	if err := msgpack.Unmarshal(payload, &args); err != nil {
		return nil, fmt.Errorf("wire: failed to decode arguments: %w", err)
	}
	return args, nil
}

// EncodeValue msgpack-encodes an arbitrary result value.
func EncodeValue(v interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: result is not a serializable value: %w", err)
	}
	return b, nil
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(payload []byte) (interface{}, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := msgpack.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("wire: failed to decode result: %w", err)
	}
	return v, nil
}

// QueryPayload is a SESSION_QUERY envelope's Payload: a SQL statement
// plus its positional parameters, tunneled to the worker holding the
// pinned connection.
type QueryPayload struct {
	SQL  string
	Args []interface{}
}

// EncodeQuery packs q for a SESSION_QUERY envelope.
func EncodeQuery(q QueryPayload) ([]byte, error) {
	b, err := msgpack.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("wire: query payload is not serializable: %w", err)
	}
	return b, nil
}

// DecodeQuery is the inverse of EncodeQuery.
func DecodeQuery(payload []byte) (QueryPayload, error) {
	var q QueryPayload
	if err := msgpack.Unmarshal(payload, &q); err != nil {
		return QueryPayload{}, fmt.Errorf("wire: failed to decode query payload: %w", err)
	}
	return q, nil
}

// ResultPayload is the value-only shape a query result takes across
// the wire: the same fields as pgmux.Result, redeclared here so this
// package does not depend on the root package.
type ResultPayload struct {
	Columns      []string
	Rows         [][]interface{}
	RowsAffected int64
}

// EncodeResult packs a query result for a REPLY envelope.
func EncodeResult(r ResultPayload) ([]byte, error) {
	b, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("wire: result payload is not serializable: %w", err)
	}
	return b, nil
}

// DecodeResult is the inverse of EncodeResult.
func DecodeResult(payload []byte) (ResultPayload, error) {
	var r ResultPayload
	if len(payload) == 0 {
		return r, nil
	}
	if err := msgpack.Unmarshal(payload, &r); err != nil {
		return ResultPayload{}, fmt.Errorf("wire: failed to decode result payload: %w", err)
	}
	return r, nil
}
