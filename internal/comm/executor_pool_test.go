package comm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorPoolRejectsInvalidSize(t *testing.T) {
	_, err := NewExecutorPool(0)
	require.ErrorIs(t, err, ErrInvalidPoolSize)
	_, err = NewExecutorPool(-1)
	require.ErrorIs(t, err, ErrInvalidPoolSize)
}

func TestLaneRunsTasksInSubmissionOrder(t *testing.T) {
	pool, err := NewExecutorPool(1)
	require.NoError(t, err)

	lane, err := pool.Next()
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, lane.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	pool.Close() // drains the lane

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestExecutorPoolRoundRobin(t *testing.T) {
	pool, err := NewExecutorPool(3)
	require.NoError(t, err)
	defer pool.Close()

	first, err := pool.Next()
	require.NoError(t, err)
	second, err := pool.Next()
	require.NoError(t, err)
	third, err := pool.Next()
	require.NoError(t, err)
	fourth, err := pool.Next()
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NotSame(t, second, third)
	assert.Same(t, first, fourth)
}

func TestExecutorPoolClose(t *testing.T) {
	pool, err := NewExecutorPool(2)
	require.NoError(t, err)

	lane, err := pool.Next()
	require.NoError(t, err)

	done := make(chan struct{})
	require.NoError(t, lane.Submit(func() { close(done) }))

	pool.Close()
	<-done // queued work ran before shutdown completed

	_, err = pool.Next()
	require.ErrorIs(t, err, ErrExecutorPoolClosed)
	require.ErrorIs(t, lane.Submit(func() {}), ErrExecutorPoolClosed)

	// Idempotent.
	pool.Close()
}

func TestDefaultPoolSizes(t *testing.T) {
	assert.Equal(t, 2, DefaultConnectionPoolSize(1))
	assert.Equal(t, 2, DefaultConnectionPoolSize(2))
	assert.Equal(t, 8, DefaultConnectionPoolSize(8))

	assert.Equal(t, 1, DefaultExecutorPoolSize(0))
	assert.Equal(t, 4, DefaultExecutorPoolSize(4))
}
