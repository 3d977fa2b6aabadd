// Package mosaico is the client-side SDK for the Mosaico telemetry data
// platform: a write pipeline (multi-lane, back-pressured, transactional),
// a read pipeline (time-ordered k-way merge), and a query planner, all
// speaking Arrow Flight to a remote server.
package mosaico

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/handlers"
	"github.com/mosaicolabs/mosaico-go/internal/models"
	"github.com/mosaicolabs/mosaico-go/internal/models/query"
	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// Client is the single entry-point factory owning the control connection,
// the two round-robin pools, and the two handler caches.
type Client struct {
	controlClient flight.Client
	connPool      *comm.ConnectionPool
	lanePool      *comm.ExecutorPool
	logger        *slog.Logger
	metrics       *telemetry.Metrics
	writerConfig  handlers.WriterConfig

	mu               sync.Mutex
	sequenceHandlers map[string]*handlers.SequenceHandler
	topicHandlers    map[string]*handlers.TopicHandler
	closed           bool
}

// Connect creates one control connection, then builds a connection pool and
// a worker-lane pool sized from the CPU count by default (the connection
// pool clamped to at least 2); options and MOSAICO_* environment variables
// override the sizes. A finalizer warns if the returned Client is garbage-collected without an
// explicit Close.
func Connect(ctx context.Context, host string, port int, opts ...Option) (*Client, error) {
	numCPU := runtime.NumCPU()
	o := resolveOptions(numCPU, opts)

	controlClient, err := comm.NewControlConnection(ctx, host, port, o.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("mosaico: connecting to %s:%d: %w", host, port, err)
	}

	connPool, err := comm.NewConnectionPool(ctx, host, port, o.connectionPoolSize, o.dialTimeout, o.logger)
	if err != nil {
		_ = controlClient.Close()
		return nil, fmt.Errorf("mosaico: building connection pool: %w", err)
	}

	lanePool, err := comm.NewExecutorPool(o.workerLaneCount)
	if err != nil {
		connPool.Close()
		_ = controlClient.Close()
		return nil, fmt.Errorf("mosaico: building worker-lane pool: %w", err)
	}

	c := &Client{
		controlClient: controlClient,
		connPool:      connPool,
		lanePool:      lanePool,
		logger:        o.logger,
		metrics:       telemetry.NewMetrics(o.logger),
		writerConfig: handlers.WriterConfig{
			OnError:             o.onError,
			MaxBatchSizeBytes:   o.maxBatchSizeBytes,
			MaxBatchSizeRecords: o.maxBatchSizeRecords,
		},
		sequenceHandlers: make(map[string]*handlers.SequenceHandler),
		topicHandlers:    make(map[string]*handlers.TopicHandler),
	}
	runtime.SetFinalizer(c, func(c *Client) {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.logger.Warn("mosaico.Client garbage-collected without an explicit Close")
		}
	})
	return c, nil
}

// CreateSequence sends sequence_create and returns a SequenceWriter primed
// with this client's pools, resolved batching defaults, and error policy.
func (c *Client) CreateSequence(ctx context.Context, name string, userMetadata map[string]any) (*handlers.SequenceWriter, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return handlers.BeginSequence(ctx, c.controlClient, c.connPool, c.lanePool, name, userMetadata, c.writerConfig, c.logger, c.metrics)
}

// WriteSequence is the scope-guard form of a sequence transaction: it
// creates the sequence, runs fn, and routes finalization by fn's result --
// normal finalize on nil, the configured error policy (abort or
// error-report) otherwise. The error returned by fn is propagated to the
// caller after the policy has been applied.
func (c *Client) WriteSequence(ctx context.Context, name string, userMetadata map[string]any, fn func(*handlers.SequenceWriter) error) error {
	w, err := c.CreateSequence(ctx, name, userMetadata)
	if err != nil {
		return err
	}
	userErr := fn(w)
	if err := w.Finish(ctx, userErr); err != nil {
		c.logger.Error("sequence finalization failed", "sequence", name, "error", err)
		if userErr == nil {
			return err
		}
	}
	return userErr
}

// ConnectSequence opens (or returns the cached) read-side handler for an
// existing sequence.
func (c *Client) ConnectSequence(ctx context.Context, name string) (*handlers.SequenceHandler, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if h, ok := c.sequenceHandlers[name]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	h, err := handlers.ConnectSequence(ctx, c.controlClient, name, c.logger, c.metrics)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.sequenceHandlers[name] = h
	c.mu.Unlock()
	return h, nil
}

// ConnectTopic opens (or returns the cached) read-side handler for one
// topic, keyed by its packed resource name.
func (c *Client) ConnectTopic(ctx context.Context, sequenceName, topicName string) (*handlers.TopicHandler, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	resourceName := handlers.PackTopicResourceName(sequenceName, topicName)

	c.mu.Lock()
	if h, ok := c.topicHandlers[resourceName]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	h, err := handlers.ConnectTopic(ctx, c.controlClient, sequenceName, topicName, c.logger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.topicHandlers[resourceName] = h
	c.mu.Unlock()
	return h, nil
}

// DeleteSequence issues sequence_delete, best-effort: failures are logged,
// never returned, and the sequence is always evicted from the handler
// cache.
func (c *Client) DeleteSequence(ctx context.Context, name string) {
	c.mu.Lock()
	delete(c.sequenceHandlers, name)
	c.mu.Unlock()

	if err := comm.Do(ctx, c.controlClient, comm.ActionSequenceDelete, struct {
		Name string `json:"name"`
	}{Name: name}, nil); err != nil && !errors.Is(err, comm.ErrNoResponse) {
		c.logger.Error("sequence_delete failed", "sequence", name, "error", err)
	}
}

// DeleteTopic issues topic_delete for one topic, best-effort like
// DeleteSequence, evicting the topic's handler-cache entry.
func (c *Client) DeleteTopic(ctx context.Context, sequenceName, topicName string) {
	resourceName := handlers.PackTopicResourceName(sequenceName, topicName)
	c.mu.Lock()
	delete(c.topicHandlers, resourceName)
	c.mu.Unlock()

	if err := comm.Do(ctx, c.controlClient, comm.ActionTopicDelete, struct {
		Name string `json:"name"`
	}{Name: resourceName}, nil); err != nil && !errors.Is(err, comm.ErrNoResponse) {
		c.logger.Error("topic_delete failed", "topic", resourceName, "error", err)
	}
}

// Query issues a single query action combining up to one builder per
// domain.
func (c *Client) Query(ctx context.Context, builders ...query.Builder) (*query.Response, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	q, err := query.NewQuery(builders...)
	if err != nil {
		return nil, err
	}

	var resp comm.QueryResponse
	if err := comm.Do(ctx, c.controlClient, comm.ActionQuery, q.ToDict(), &resp); err != nil {
		return nil, handlers.WrapErr(comm.ActionQuery, "query", err)
	}

	out := &query.Response{Items: make([]query.ResponseItem, len(resp.Items))}
	for i, item := range resp.Items {
		out.Items[i] = query.ResponseItem{Sequence: item.Sequence, Topics: item.Topics}
	}
	return out, nil
}

// DefaultMessageFactory resolves the registered ontology factory for tag
// (models.DefaultMessageFactory), wrapped as handlers.MessageFactory for
// direct use with SequenceHandler.OpenTopic / TopicHandler.Open.
func DefaultMessageFactory(ontologyTag string) (handlers.MessageFactory, error) {
	f, err := models.DefaultMessageFactory(ontologyTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOntology, ontologyTag)
	}
	return f, nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Close drops both handler caches (cached handlers hold no resources of
// their own), then closes the worker-lane pool, the connection pool, and
// the control connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.sequenceHandlers = nil
	c.topicHandlers = nil
	c.mu.Unlock()

	runtime.SetFinalizer(c, nil)

	c.lanePool.Close()
	c.connPool.Close()
	return c.controlClient.Close()
}
