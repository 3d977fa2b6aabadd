package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/models"
	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// topicCreatePayload is the wire payload for the topic_create action.
type topicCreatePayload struct {
	SequenceKey         string         `json:"sequence_key"`
	Name                string         `json:"name"`
	SerializationFormat string         `json:"serialization_format"`
	OntologyTag         string         `json:"ontology_tag"`
	UserMetadata        map[string]any `json:"user_metadata"`
}

// topicDescriptorCommand is the JSON command embedded in the DoPut
// FlightDescriptor.
type topicDescriptorCommand struct {
	Topic struct {
		Name string `json:"name"`
		Key  string `json:"key"`
	} `json:"topic"`
}

// TopicWriter composes a TopicWriteState with the create/push/finalize
// lifecycle.
type TopicWriter struct {
	sequenceName string
	topicName    string
	topicKey     string
	config       WriterConfig
	state        *TopicWriteState
	logger       *slog.Logger
}

// CreateTopicWriter validates the ontology type, issues the topic_create
// action, opens the DoPut stream, and constructs the write state.
func CreateTopicWriter(
	ctx context.Context,
	controlClient flight.Client,
	dataClient flight.Client,
	lane *comm.Lane,
	sequenceName, sequenceKey, topicName string,
	userMetadata map[string]any,
	data models.Serializable,
	config WriterConfig,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
) (*TopicWriter, error) {
	if data.OntologyTag() == "" {
		return nil, fmt.Errorf("handlers: ontology type must declare a non-empty ontology tag")
	}
	if data.SerializationFormat() == "" {
		return nil, fmt.Errorf("handlers: ontology type %q must declare a serialization format", data.OntologyTag())
	}
	if logger == nil {
		logger = slog.Default()
	}

	resourceName := PackTopicResourceName(sequenceName, topicName)

	var keyResp comm.KeyResponse
	if err := comm.Do(ctx, controlClient, comm.ActionTopicCreate, topicCreatePayload{
		SequenceKey:         sequenceKey,
		Name:                resourceName,
		SerializationFormat: data.SerializationFormat(),
		OntologyTag:         data.OntologyTag(),
		UserMetadata:        userMetadata,
	}, &keyResp); err != nil {
		return nil, WrapErr(comm.ActionTopicCreate, resourceName, err)
	}

	combinedSchema, err := models.CombinedSchema(data)
	if err != nil {
		return nil, err
	}

	var cmd topicDescriptorCommand
	cmd.Topic.Name = resourceName
	cmd.Topic.Key = keyResp.Key
	cmdBytes, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("handlers: encoding topic descriptor: %w", err)
	}
	descriptor := &flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  cmdBytes,
	}

	writeStream, err := OpenFlightWriteStream(ctx, dataClient, descriptor, combinedSchema)
	if err != nil {
		return nil, WrapErr("do_put", resourceName, err)
	}

	state, err := NewTopicWriteState(topicName, data.OntologyTag(), combinedSchema, writeStream, lane,
		data.SerializationFormat(), config.MaxBatchSizeBytes, config.MaxBatchSizeRecords, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &TopicWriter{
		sequenceName: sequenceName,
		topicName:    topicName,
		topicKey:     keyResp.Key,
		config:       config,
		state:        state,
		logger:       logger,
	}, nil
}

// Push enqueues a fully-constructed Message for serialization and write.
// On a caller-visible error the underlying state is closed on its error
// path (residual buffers dropped) and the wrapped error is returned; the
// owning sequence's error policy decides recovery.
func (w *TopicWriter) Push(msg *models.Message) error {
	if err := w.state.PushRecord(msg.Encode()); err != nil {
		w.logger.Error("push failed, closing topic with error", "topic", w.topicName, "error", err)
		_ = w.state.Close(true)
		return WrapErr("push", PackTopicResourceName(w.sequenceName, w.topicName), err)
	}
	return nil
}

// Finalized reports whether the topic's write stream has been closed.
func (w *TopicWriter) Finalized() bool {
	return w.state.Finalized()
}

// Finalize is the single exit path for a topic writer; invoked
// automatically when the owning SequenceWriter closes its topics.
func (w *TopicWriter) Finalize(withError bool) error {
	return w.state.Close(withError)
}

// Pushed and Written expose the underlying pipeline counters.
func (w *TopicWriter) Pushed() int64  { return w.state.Pushed() }
func (w *TopicWriter) Written() int64 { return w.state.Written() }
