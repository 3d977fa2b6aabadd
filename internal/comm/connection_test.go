package comm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionPoolRejectsInvalidSize(t *testing.T) {
	_, err := NewConnectionPool(context.Background(), "localhost", 1, 0, time.Second, nil)
	require.ErrorIs(t, err, ErrInvalidPoolSize)
	_, err = NewConnectionPool(context.Background(), "localhost", 1, -3, time.Second, nil)
	require.ErrorIs(t, err, ErrInvalidPoolSize)
}

func TestConnectionPoolClosedNext(t *testing.T) {
	p := &ConnectionPool{}
	_, err := p.Next()
	require.ErrorIs(t, err, ErrPoolClosed)
}
