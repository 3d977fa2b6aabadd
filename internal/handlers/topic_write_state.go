package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/semaphore"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// maxPendingBatches is the maximum number of concurrent in-flight flushes
// per topic (the back-pressure gate's semaphore capacity).
const maxPendingBatches = 3

// uploadMode selects the batching discipline for a topic.
type uploadMode int

const (
	uploadModeBytes uploadMode = iota
	uploadModeCount
)

// serializationFormatToUploadMode is the static dispatch table from
// serialization format to batching discipline. Count-mode is reserved for
// formats that explicitly request it; none of the current wire formats do.
var serializationFormatToUploadMode = map[string]uploadMode{
	"default": uploadModeBytes,
	"ragged":  uploadModeBytes,
	"image":   uploadModeBytes,
}

// writeState tracks {Open, Closing, Closed} for a topic write pipeline.
type writeState int32

const (
	stateOpen writeState = iota
	stateClosing
	stateClosed
)

// ErrWriterClosed is returned for any write attempted after Closing or
// Closed.
var ErrWriterClosed = errors.New("handlers: topic writer is closing or closed")

// WriteStream abstracts the DoPut stream a TopicWriteState writes batches
// to; satisfied by the Arrow Flight adapter in flight_adapters.go, and by a
// fake in tests.
type WriteStream interface {
	Write(rec arrow.Record) error
	DoneWriting() error
	Close() error
}

// TopicWriteState is the per-topic write pipeline: buffering,
// adaptive batching, async dispatch to a worker lane, and back-pressure via
// a bounded semaphore.
type TopicWriteState struct {
	topicName   string
	ontologyTag string
	schema      *arrow.Schema
	writer      WriteStream
	lane        *comm.Lane // nil => synchronous flush on caller goroutine
	logger      *slog.Logger
	metrics     *telemetry.Metrics // nil => no instrumentation recorded

	maxBatchSizeBytes   int
	maxBatchSizeRecords int
	mode                uploadMode

	mu           sync.Mutex
	buffer       []map[string]any
	currentBytes int64

	futuresMu sync.Mutex
	futures   map[uint64]*writeFuture
	nextFutID uint64

	sem *semaphore.Weighted

	pushed  atomic.Int64
	written atomic.Int64
	state   atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

type writeFuture struct {
	done chan struct{}
	err  error
}

// NewTopicWriteState constructs a write state. maxBatchSizeBytes must be set and
// strictly less than 90% of the wire ceiling M; maxBatchSizeRecords must
// also be set. writer must not be nil. lane may be nil, selecting the
// synchronous flush path.
func NewTopicWriteState(
	topicName, ontologyTag string,
	schema *arrow.Schema,
	writer WriteStream,
	lane *comm.Lane,
	serializationFormat string,
	maxBatchSizeBytes, maxBatchSizeRecords int,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) (*TopicWriteState, error) {
	if writer == nil {
		return nil, fmt.Errorf("handlers: topic write state requires a non-nil writer")
	}
	if maxBatchSizeBytes <= 0 {
		return nil, fmt.Errorf("handlers: max_batch_size_bytes must be set")
	}
	if maxBatchSizeRecords <= 0 {
		return nil, fmt.Errorf("handlers: max_batch_size_records must be set")
	}
	if float64(maxBatchSizeBytes) > float64(comm.MaxWireBatchBytes)*0.9 {
		return nil, fmt.Errorf("handlers: max_batch_size_bytes (%d) must be strictly less than 90%% of the wire ceiling (%d)", maxBatchSizeBytes, comm.MaxWireBatchBytes)
	}
	if logger == nil {
		logger = slog.Default()
	}

	mode, ok := serializationFormatToUploadMode[serializationFormat]
	if !ok {
		mode = uploadModeBytes
	}

	return &TopicWriteState{
		topicName:           topicName,
		ontologyTag:         ontologyTag,
		schema:              schema,
		writer:              writer,
		lane:                lane,
		logger:              logger,
		metrics:             metrics,
		maxBatchSizeBytes:   maxBatchSizeBytes,
		maxBatchSizeRecords: maxBatchSizeRecords,
		mode:                mode,
		futures:             make(map[uint64]*writeFuture),
		sem:                 semaphore.NewWeighted(maxPendingBatches),
	}, nil
}

// Finalized reports whether Close has completed and the underlying writer
// handle has been released.
func (s *TopicWriteState) Finalized() bool {
	return writeState(s.state.Load()) == stateClosed
}

// PushRecord enqueues one already-encoded row (an envelope+payload column
// map) into the buffer, dispatching to byte-mode or count-mode per the
// static table.
func (s *TopicWriteState) PushRecord(row map[string]any) error {
	if writeState(s.state.Load()) != stateOpen {
		return ErrWriterClosed
	}
	s.pushed.Add(1)
	s.metrics.RecordPush(context.Background(), s.topicName)

	switch s.mode {
	case uploadModeCount:
		return s.pushByCount(row)
	default:
		return s.pushByBytes(row)
	}
}

func (s *TopicWriteState) pushByBytes(row map[string]any) error {
	rec, err := BuildRecordBatch(s.schema, []map[string]any{row})
	if err != nil {
		return err
	}
	defer rec.Release()

	size, err := MeasureSerializedSize(rec)
	if err != nil {
		return err
	}

	if size > int64(comm.MaxWireBatchBytes) {
		s.logger.Error("dropping message exceeding wire ceiling; requires upstream chunking",
			"topic", s.topicName, "size", size, "ceiling", comm.MaxWireBatchBytes)
		return nil
	}

	s.mu.Lock()
	if s.currentBytes+size > int64(s.maxBatchSizeBytes) {
		snapshot := s.buffer
		s.buffer = []map[string]any{row}
		s.currentBytes = size
		s.mu.Unlock()
		return s.scheduleFlush(snapshot)
	}
	s.buffer = append(s.buffer, row)
	s.currentBytes += size
	s.mu.Unlock()
	return nil
}

func (s *TopicWriteState) pushByCount(row map[string]any) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, row)
	shouldFlush := len(s.buffer) >= s.maxBatchSizeRecords
	var snapshot []map[string]any
	if shouldFlush {
		snapshot = s.buffer
		s.buffer = nil
	}
	s.mu.Unlock()

	if shouldFlush {
		return s.scheduleFlush(snapshot)
	}
	return nil
}

// scheduleFlush is the back-pressure gate: it acquires one semaphore
// permit (blocking the producer when K flushes are already in flight), then
// submits the serialize+write task to the assigned worker lane, or runs it
// synchronously with the same semaphore discipline if no lane is
// configured.
func (s *TopicWriteState) scheduleFlush(snapshot []map[string]any) error {
	if len(snapshot) == 0 {
		return nil
	}
	ctx := context.Background()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("handlers: acquiring back-pressure permit: %w", err)
	}
	s.metrics.InFlightDelta(ctx, s.topicName, 1)

	fut := &writeFuture{done: make(chan struct{})}
	s.futuresMu.Lock()
	id := s.nextFutID
	s.nextFutID++
	s.futures[id] = fut
	s.futuresMu.Unlock()

	run := func() {
		defer s.sem.Release(1)
		defer s.metrics.InFlightDelta(context.Background(), s.topicName, -1)
		defer close(fut.done)
		defer func() {
			s.futuresMu.Lock()
			delete(s.futures, id)
			s.futuresMu.Unlock()
		}()

		rec, err := BuildRecordBatch(s.schema, snapshot)
		if err != nil {
			fut.err = err
			s.logger.Error("failed to serialize batch", "topic", s.topicName, "error", err)
			return
		}
		defer rec.Release()

		size, sizeErr := MeasureSerializedSize(rec)
		if sizeErr != nil {
			size = 0
		}

		if err := s.writer.Write(rec); err != nil {
			fut.err = err
			s.logger.Error("failed to write batch", "topic", s.topicName, "error", err)
			return
		}
		s.written.Add(int64(len(snapshot)))
		s.metrics.RecordFlush(context.Background(), s.topicName, size)
	}

	if s.lane != nil {
		if err := s.lane.Submit(run); err != nil {
			s.sem.Release(1)
			s.futuresMu.Lock()
			delete(s.futures, id)
			s.futuresMu.Unlock()
			return fmt.Errorf("handlers: submitting flush to worker lane: %w", err)
		}
		return nil
	}

	run()
	return nil
}

// Close finalizes the topic's write pipeline. When
// withError is false, any residual buffered rows are flushed and the call
// blocks until every in-flight write completes, logging (not raising) any
// observed failure. In both cases the DoPut stream is signalled
// end-of-stream and closed, and the handle is released so Finalized()
// reports true. The close path is idempotent.
func (s *TopicWriteState) Close(withError bool) error {
	s.state.CompareAndSwap(int32(stateOpen), int32(stateClosing))

	s.closeOnce.Do(func() {
		if !withError {
			s.mu.Lock()
			residual := s.buffer
			s.buffer = nil
			s.currentBytes = 0
			s.mu.Unlock()

			if len(residual) > 0 {
				if err := s.scheduleFlush(residual); err != nil {
					s.logger.Error("failed to flush residual buffer on close", "topic", s.topicName, "error", err)
				}
			}
			s.waitForPendingWrites()
		}

		if s.writer != nil {
			if err := s.writer.DoneWriting(); err != nil {
				s.closeErr = fmt.Errorf("handlers: signalling end-of-stream for topic %q: %w", s.topicName, err)
			}
			if err := s.writer.Close(); err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("handlers: closing write stream for topic %q: %w", s.topicName, err)
			}
			s.writer = nil
		}

		s.logger.Info("topic write state closed", "topic", s.topicName, "pushed", s.pushed.Load(), "written", s.written.Load())
		s.state.Store(int32(stateClosed))
	})

	return s.closeErr
}

// waitForPendingWrites blocks until every tracked in-flight future has
// completed, logging any failure without propagating it.
func (s *TopicWriteState) waitForPendingWrites() {
	s.futuresMu.Lock()
	pending := make([]*writeFuture, 0, len(s.futures))
	for _, f := range s.futures {
		pending = append(pending, f)
	}
	s.futuresMu.Unlock()

	for _, f := range pending {
		<-f.done
		if f.err != nil {
			s.logger.Error("observed async write failure at finalize", "topic", s.topicName, "error", f.err)
		}
	}
}

// Pushed returns the number of PushRecord calls observed so far.
func (s *TopicWriteState) Pushed() int64 { return s.pushed.Load() }

// Written returns the number of rows actually written to the stream so far.
func (s *TopicWriteState) Written() int64 { return s.written.Load() }
