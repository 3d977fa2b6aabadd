// Package comm implements the control-plane and data-plane plumbing shared by
// every handler in the SDK: connection pooling, worker-lane pooling, the
// typed action dispatcher, and wire-metadata decoding.
package comm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// MaxWireBatchBytes is the wire-level maximum per-batch byte ceiling
// imposed by the transport.
const MaxWireBatchBytes = 16 * 1024 * 1024

// DefaultMaxBatchBytes is the client-side default byte threshold (B) used
// when a caller does not configure one explicitly.
const DefaultMaxBatchBytes = 10 * 1024 * 1024

// DefaultMaxBatchSizeRecords is the client-side default record-count
// threshold (N).
const DefaultMaxBatchSizeRecords = 5000

// defaultConnectionPoolSize is used only as a floor; callers normally size
// the pool from runtime.NumCPU(), clamped to this minimum.
const defaultConnectionPoolSize = 2

// ErrPoolClosed is returned by Next when the pool has already been closed.
var ErrPoolClosed = errors.New("comm: connection pool is closed or uninitialized")

// ErrInvalidPoolSize is returned by NewConnectionPool when size < 1.
var ErrInvalidPoolSize = errors.New("comm: pool size must be >= 1")

// dialFlight creates one Arrow Flight client against host:port, retrying
// client construction with exponential backoff until timeout elapses.
// Construction does not contact the server, so it succeeds whether or not
// the server is reachable; an unreachable server surfaces on the first RPC,
// not here.
func dialFlight(ctx context.Context, host string, port int, timeout time.Duration) (flight.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var client flight.Client
	op := func() error {
		c, err := flight.NewClientWithMiddleware(addr, nil, nil, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		client = c
		return nil
	}

	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("connection to flight server at %s failed on startup: %w", addr, err)
	}
	return client, nil
}

// NewControlConnection creates a single control connection via dialFlight, used
// by the client for DoAction/GetFlightInfo calls outside the data-plane
// pool.
func NewControlConnection(ctx context.Context, host string, port int, timeout time.Duration) (flight.Client, error) {
	return dialFlight(ctx, host, port, timeout)
}

// ConnectionPool is a fixed-size, round-robin pool of Arrow Flight client
// handles used for parallel data writing.
type ConnectionPool struct {
	conns  []flight.Client
	cursor uint64
	logger *slog.Logger
	closed atomic.Bool
}

// NewConnectionPool eagerly creates size connections to host:port via
// dialFlight, each bounded by the given dial timeout. If any dial fails, every
// already-opened connection is closed and the error is surfaced.
func NewConnectionPool(ctx context.Context, host string, port int, size int, timeout time.Duration, logger *slog.Logger) (*ConnectionPool, error) {
	if size < 1 {
		return nil, ErrInvalidPoolSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	conns := make([]flight.Client, 0, size)
	for i := 0; i < size; i++ {
		c, err := dialFlight(ctx, host, port, timeout)
		if err != nil {
			for _, opened := range conns {
				if cerr := opened.Close(); cerr != nil {
					logger.Error("closing partially-opened connection pool member", "error", cerr)
				}
			}
			return nil, fmt.Errorf("comm: exception while initializing connection pool: %w", err)
		}
		conns = append(conns, c)
	}

	return &ConnectionPool{conns: conns, logger: logger}, nil
}

// DefaultConnectionPoolSize returns numCPU clamped to the floor of 2.
func DefaultConnectionPoolSize(numCPU int) int {
	if numCPU < defaultConnectionPoolSize {
		return defaultConnectionPoolSize
	}
	return numCPU
}

// Next returns the next connection handle in round-robin order. The cursor
// advances atomically so concurrent callers never observe the same slot
// concurrently out of sequence.
func (p *ConnectionPool) Next() (flight.Client, error) {
	if p.closed.Load() || len(p.conns) == 0 {
		return nil, ErrPoolClosed
	}
	idx := atomic.AddUint64(&p.cursor, 1) - 1
	return p.conns[idx%uint64(len(p.conns))], nil
}

// Close closes every pooled connection, logging individual failures, and
// always clears internal state so subsequent Next calls fail cleanly.
func (p *ConnectionPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for i, c := range p.conns {
		if err := c.Close(); err != nil {
			p.logger.Error("failed to close pooled connection", "index", i, "error", err)
		}
	}
	p.conns = nil
}
