package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolExecute(t *testing.T) {
	pool := NewPool(2)

	results := pool.Execute(context.Background(), []Task{
		{Name: "a", Execute: func(ctx context.Context) (any, error) { return 1, nil }},
		{Name: "b", Execute: func(ctx context.Context) (any, error) { return nil, errors.New("boom") }},
		{Name: "c", Execute: func(ctx context.Context) (any, error) { panic("bad") }},
	})

	require.Len(t, results, 3)
	assert.Equal(t, 1, results["a"].Data)
	assert.EqualError(t, results["b"].Err, "boom")
	assert.Error(t, results["c"].Err)

	again := pool.Execute(context.Background(), []Task{
		{Name: "d", Execute: func(ctx context.Context) (any, error) { return "ok", nil }},
	})
	assert.Equal(t, "ok", again["d"].Data)
}

func TestPoolExecuteTimeout(t *testing.T) {
	pool := NewPool(2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results := pool.Execute(ctx, []Task{
		{Name: "fast", Execute: func(ctx context.Context) (any, error) { return "done", nil }},
		{Name: "slow", Execute: func(ctx context.Context) (any, error) {
			select {
			case <-time.After(2 * time.Second):
				return "late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}},
	})

	assert.Equal(t, "done", results["fast"].Data)
	if slow, ok := results["slow"]; ok {
		assert.Error(t, slow.Err)
	}
}

func TestPoolExecuteNoTasks(t *testing.T) {
	assert.Empty(t, NewPool(3).Execute(context.Background(), nil))
}
