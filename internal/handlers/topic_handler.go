package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/models/platform"
)

// TopicHandler is the read-side cache entry for one topic, keyed by its
// packed resource name. It is independent of
// any particular SequenceHandler connection: a caller may look a topic up
// directly without walking its parent sequence first.
type TopicHandler struct {
	sequenceName string
	topicName    string
	metadata     comm.TopicMetadata
	ticket       *flight.Ticket
	client       flight.Client
	logger       *slog.Logger
}

// ConnectTopic issues GetFlightInfo for the packed "<sequence>/<topic>"
// resource name and returns a TopicHandler ready to open a reader.
func ConnectTopic(ctx context.Context, client flight.Client, sequenceName, topicName string, logger *slog.Logger) (*TopicHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	resourceName := PackTopicResourceName(sequenceName, topicName)
	descriptor := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{sequenceName, topicName}}

	info, err := client.GetFlightInfo(ctx, descriptor)
	if err != nil {
		return nil, WrapErr("get_flight_info", resourceName, err)
	}
	schema, err := flight.DeserializeSchema(info.Schema, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("handlers: deserializing flight schema for topic %q: %w", resourceName, err)
	}
	meta, err := comm.DecodeTopicMetadata(comm.DecodeMetadata(schemaMetadataMap(schema)))
	if err != nil {
		return nil, WrapErr("get_flight_info", resourceName, err)
	}
	if len(info.Endpoint) == 0 {
		return nil, fmt.Errorf("handlers: no endpoints returned for topic %q", resourceName)
	}

	return &TopicHandler{
		sequenceName: sequenceName,
		topicName:    topicName,
		metadata:     meta,
		ticket:       info.Endpoint[0].Ticket,
		client:       client,
		logger:       logger,
	}, nil
}

// ResourceName returns the packed "<sequence>/<topic>" resource name.
func (h *TopicHandler) ResourceName() string {
	return PackTopicResourceName(h.sequenceName, h.topicName)
}

// OntologyTag returns the topic's declared ontology tag.
func (h *TopicHandler) OntologyTag() string { return h.metadata.Properties.OntologyTag }

// UserMetadata returns the topic's user-supplied metadata with "ros:"
// internal keys filtered out.
func (h *TopicHandler) UserMetadata() map[string]any { return h.metadata.UserMetadata }

// Open starts a DoGet stream against this topic's ticket and wraps it as a
// TopicDataStreamer.
func (h *TopicHandler) Open(ctx context.Context, factory MessageFactory) (*TopicDataStreamer, error) {
	return OpenTopicDataStreamer(ctx, h.client, h.ticket, h.topicName, h.metadata, factory)
}

// SystemInfo issues topic_system_info and combines the response with the
// already-decoded flight metadata into the catalog view.
func (h *TopicHandler) SystemInfo(ctx context.Context) (*platform.Topic, error) {
	var info comm.SystemInfoResponse
	if err := comm.Do(ctx, h.client, comm.ActionTopicSystemInfo, map[string]any{
		"name": h.ResourceName(),
	}, &info); err != nil {
		return nil, WrapErr(comm.ActionTopicSystemInfo, h.ResourceName(), err)
	}
	return &platform.Topic{
		SequenceName:        h.sequenceName,
		Name:                h.topicName,
		OntologyTag:         h.metadata.Properties.OntologyTag,
		SerializationFormat: platform.SerializationFormat(h.metadata.Properties.SerializationFormat),
		UserMetadata:        h.metadata.UserMetadata,
		ChunksCount:         info.ChunksNumber,
		SizeBytes:           info.TotalSizeBytes,
		CreatedAt:           info.CreatedDatetime,
	}, nil
}
