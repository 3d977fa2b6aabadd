package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/models"
	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// sequenceCreatePayload is the wire payload for sequence_create.
type sequenceCreatePayload struct {
	Name         string         `json:"name"`
	UserMetadata map[string]any `json:"user_metadata"`
}

type sequenceFinalizePayload struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type sequenceAbortPayload struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type sequenceNotifyCreatePayload struct {
	Name       string `json:"name"`
	Key        string `json:"key"`
	NotifyType string `json:"notify_type"`
	Msg        string `json:"msg"`
}

// ConnectionSource and LaneSource abstract the client's pools so
// SequenceWriter can fall back to the control client / synchronous flush
// when no pool is configured.
type ConnectionSource interface {
	Next() (flight.Client, error)
}

type LaneSource interface {
	Next() (*comm.Lane, error)
}

// SequenceWriter is the transactional coordinator for a sequence's
// write lifecycle.
type SequenceWriter struct {
	sequenceName  string
	controlClient flight.Client
	connPool      ConnectionSource
	lanePool      LaneSource
	config        WriterConfig
	logger        *slog.Logger
	metrics       *telemetry.Metrics

	sequenceKey string
	status      SequenceStatus

	mu     sync.Mutex
	topics map[string]*TopicWriter
}

// ErrSequenceNotPending is returned by operations that require the sequence
// to still be in the Pending state.
var ErrSequenceNotPending = errors.New("handlers: sequence is not in the pending state")

// BeginSequence sends sequence_create and returns a Pending SequenceWriter.
func BeginSequence(
	ctx context.Context,
	controlClient flight.Client,
	connPool ConnectionSource,
	lanePool LaneSource,
	sequenceName string,
	userMetadata map[string]any,
	config WriterConfig,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) (*SequenceWriter, error) {
	if err := ValidateSequenceName(sequenceName); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	_, span := telemetry.StartActionSpan(ctx, comm.ActionSequenceCreate, sequenceName)
	var spanErr error
	defer func() { telemetry.EndWithError(span, spanErr) }()

	var keyResp comm.KeyResponse
	if err := comm.Do(ctx, controlClient, comm.ActionSequenceCreate, sequenceCreatePayload{
		Name: sequenceName, UserMetadata: userMetadata,
	}, &keyResp); err != nil {
		spanErr = WrapErr(comm.ActionSequenceCreate, sequenceName, err)
		return nil, spanErr
	}

	return &SequenceWriter{
		sequenceName:  sequenceName,
		controlClient: controlClient,
		connPool:      connPool,
		lanePool:      lanePool,
		config:        config,
		logger:        logger,
		metrics:       metrics,
		sequenceKey:   keyResp.Key,
		status:        SequenceStatusPending,
		topics:        make(map[string]*TopicWriter),
	}, nil
}

// Status returns the current lifecycle state.
func (w *SequenceWriter) Status() SequenceStatus { return w.status }

// Key returns the server-issued sequence ownership token.
func (w *SequenceWriter) Key() string { return w.sequenceKey }

// CreateTopic refuses local duplicates (returns nil, not an error, so the
// sequence continues), assigns a data
// connection and worker lane from the client's pools (falling back to the
// control client / synchronous flush when no pool is configured), and
// constructs a TopicWriter.
func (w *SequenceWriter) CreateTopic(ctx context.Context, topicName string, userMetadata map[string]any, data models.Serializable) *TopicWriter {
	if w.status != SequenceStatusPending {
		w.logger.Error("topic_create refused: sequence is not pending", "sequence", w.sequenceName, "status", w.status.String())
		return nil
	}
	w.mu.Lock()
	if _, exists := w.topics[topicName]; exists {
		w.mu.Unlock()
		w.logger.Error("topic already exists locally", "sequence", w.sequenceName, "topic", topicName)
		return nil
	}
	w.mu.Unlock()

	dataClient := w.controlClient
	if w.connPool != nil {
		if c, err := w.connPool.Next(); err == nil {
			dataClient = c
		}
	}
	var lane *comm.Lane
	if w.lanePool != nil {
		if l, err := w.lanePool.Next(); err == nil {
			lane = l
		}
	}

	tw, err := CreateTopicWriter(ctx, w.controlClient, dataClient, lane, w.sequenceName, w.sequenceKey, topicName, userMetadata, data, w.config, w.logger, w.metrics)
	if err != nil {
		w.logger.Error("topic_create failed", "sequence", w.sequenceName, "topic", topicName, "error", err)
		return nil
	}

	w.mu.Lock()
	w.topics[topicName] = tw
	w.mu.Unlock()
	return tw
}

// Finish is the scope-exit policy dispatcher. userErr is the error
// observed from the caller's write block, or nil on normal exit.
func (w *SequenceWriter) Finish(ctx context.Context, userErr error) error {
	if w.status != SequenceStatusPending {
		return ErrSequenceNotPending
	}

	ctx, span := telemetry.StartSequenceSpan(ctx, w.sequenceName)
	var spanErr error
	defer func() { telemetry.EndWithError(span, spanErr) }()

	if userErr == nil {
		if err := w.closeTopics(false); err != nil {
			w.logger.Error("one or more topics failed to finalize cleanly", "sequence", w.sequenceName, "error", err)
		}
		if err := comm.Do(ctx, w.controlClient, comm.ActionSequenceFinalize, sequenceFinalizePayload{
			Name: w.sequenceName, Key: w.sequenceKey,
		}, nil); err != nil && !errors.Is(err, comm.ErrNoResponse) {
			spanErr = WrapErr(comm.ActionSequenceFinalize, w.sequenceName, err)
			return spanErr
		}
		w.status = SequenceStatusFinalized
		return nil
	}

	spanErr = userErr
	// Delete discards partial data, so residual buffers are dropped; Report
	// retains whatever was pushed, so child topics still drain before the
	// error notification goes out.
	if err := w.closeTopics(w.config.OnError == OnErrorDelete); err != nil {
		w.logger.Error("one or more topics failed to close on error path", "sequence", w.sequenceName, "error", err)
	}

	// The policy call must observe the still-Pending sequence; status only
	// moves to Error afterwards.
	switch w.config.OnError {
	case OnErrorDelete:
		if err := comm.Do(ctx, w.controlClient, comm.ActionSequenceAbort, sequenceAbortPayload{
			Name: w.sequenceName, Key: w.sequenceKey,
		}, nil); err != nil && !errors.Is(err, comm.ErrNoResponse) {
			w.logger.Error("sequence_abort failed", "sequence", w.sequenceName, "error", err)
		}
	default: // OnErrorReport
		if err := comm.Do(ctx, w.controlClient, comm.ActionSequenceNotifyCreate, sequenceNotifyCreatePayload{
			Name: w.sequenceName, Key: w.sequenceKey, NotifyType: "error", Msg: userErr.Error(),
		}, nil); err != nil && !errors.Is(err, comm.ErrNoResponse) {
			w.logger.Error("sequence_notify_create failed", "sequence", w.sequenceName, "error", err)
		}
	}
	w.status = SequenceStatusError
	return nil
}

// closeTopics finalizes every child topic concurrently, continuing through
// the full set even if some fail, and aggregates any failures so one
// failed topic never prevents the others' closure.
func (w *SequenceWriter) closeTopics(withError bool) error {
	w.mu.Lock()
	topics := make(map[string]*TopicWriter, len(w.topics))
	for k, v := range w.topics {
		topics[k] = v
	}
	w.mu.Unlock()

	var g errgroup.Group
	for name, tw := range topics {
		name, tw := name, tw
		g.Go(func() error {
			if err := tw.Finalize(withError); err != nil {
				return fmt.Errorf("topic %q: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
