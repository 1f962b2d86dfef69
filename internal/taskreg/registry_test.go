package taskreg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverside-labs/pgmux/internal/taskreg"
)

func TestRegisterAndLookupTask(t *testing.T) {
	taskreg.RegisterTask("registry_test.echo", func(ctx context.Context, args []interface{}) (interface{}, error) {
		return args[0], nil
	})

	fn, ok := taskreg.LookupTask("registry_test.echo")
	require.True(t, ok)

	result, err := fn(context.Background(), []interface{}{"hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

func TestRegisterTask_DuplicatePanics(t *testing.T) {
	taskreg.RegisterTask("registry_test.dup", func(context.Context, []interface{}) (interface{}, error) {
		return nil, nil
	})

	assert.Panics(t, func() {
		taskreg.RegisterTask("registry_test.dup", func(context.Context, []interface{}) (interface{}, error) {
			return nil, nil
		})
	})
}

func TestLookupTask_Missing(t *testing.T) {
	_, ok := taskreg.LookupTask("registry_test.does_not_exist")
	assert.False(t, ok)
}

func TestErrNotFound(t *testing.T) {
	err := taskreg.ErrNotFound("mystery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}
