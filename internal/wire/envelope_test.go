package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverside-labs/pgmux/internal/wire"
)

func TestEncodeDecodeArgs_RoundTrip(t *testing.T) {
	args := []interface{}{"a", int64(5), []interface{}{1, 2, 3}}

	payload, err := wire.EncodeArgs(args)
	require.NoError(t, err)

	got, err := wire.DecodeArgs(payload)
	require.NoError(t, err)
	assert.Equal(t, "a", got[0])
}

func TestEncodeArgs_RejectsFunctions(t *testing.T) {
	_, err := wire.EncodeArgs([]interface{}{func() {}})
	assert.Error(t, err)
}

func TestEncodeArgs_RejectsChannels(t *testing.T) {
	_, err := wire.EncodeArgs([]interface{}{make(chan int)})
	assert.Error(t, err)
}

func TestEncodeDecodeValue_Empty(t *testing.T) {
	got, err := wire.DecodeValue(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEncodeDecodeValue_RoundTrip(t *testing.T) {
	payload, err := wire.EncodeValue(map[string]interface{}{"sum": int64(15)})
	require.NoError(t, err)

	got, err := wire.DecodeValue(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(15), got.(map[string]interface{})["sum"])
}

func TestEncodeDecodeQuery_RoundTrip(t *testing.T) {
	q := wire.QueryPayload{SQL: "select $1", Args: []interface{}{int64(7)}}

	payload, err := wire.EncodeQuery(q)
	require.NoError(t, err)

	got, err := wire.DecodeQuery(payload)
	require.NoError(t, err)
	assert.Equal(t, "select $1", got.SQL)
	assert.Equal(t, int64(7), got.Args[0])
}

func TestEncodeDecodeResult_RoundTrip(t *testing.T) {
	r := wire.ResultPayload{
		Columns:      []string{"id", "name"},
		Rows:         [][]interface{}{{int64(1), "a"}},
		RowsAffected: 1,
	}

	payload, err := wire.EncodeResult(r)
	require.NoError(t, err)

	got, err := wire.DecodeResult(payload)
	require.NoError(t, err)
	assert.Equal(t, r.Columns, got.Columns)
	assert.Equal(t, int64(1), got.RowsAffected)
}

func TestDecodeResult_Empty(t *testing.T) {
	got, err := wire.DecodeResult(nil)
	require.NoError(t, err)
	assert.Nil(t, got.Columns)
}
