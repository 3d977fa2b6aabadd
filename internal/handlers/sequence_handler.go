package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/models/platform"
	"github.com/mosaicolabs/mosaico-go/internal/telemetry"
)

// SequenceHandler is the read-side cache entry for one sequence: it holds
// the server-reported catalog metadata and opens the k-way merge reader on
// demand.
type SequenceHandler struct {
	name     string
	metadata comm.SequenceMetadata
	topics   []string
	client   flight.Client
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// ConnectSequence issues GetFlightInfo for sequenceName, decodes the
// mosaico:* schema metadata, and returns a SequenceHandler ready to open
// per-topic readers.
func ConnectSequence(ctx context.Context, client flight.Client, sequenceName string, logger *slog.Logger, metrics *telemetry.Metrics) (*SequenceHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	descriptor := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{sequenceName}}

	info, err := client.GetFlightInfo(ctx, descriptor)
	if err != nil {
		return nil, WrapErr("get_flight_info", sequenceName, err)
	}

	schema, err := flight.DeserializeSchema(info.Schema, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("handlers: deserializing flight schema for sequence %q: %w", sequenceName, err)
	}

	meta, err := comm.DecodeSequenceMetadata(comm.DecodeMetadata(schemaMetadataMap(schema)))
	if err != nil {
		return nil, WrapErr("get_flight_info", sequenceName, err)
	}

	// Tickets decode as "[/]sequence-name/topic-name[/]".
	topics := make([]string, 0, len(info.Endpoint))
	for _, ep := range info.Endpoint {
		if ep.Ticket == nil {
			continue
		}
		raw := strings.TrimSuffix(string(ep.Ticket.Ticket), "/")
		if _, topic, ok := UnpackTopicFullPath(raw); ok {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	return &SequenceHandler{name: sequenceName, metadata: meta, topics: topics, client: client, logger: logger, metrics: metrics}, nil
}

// Topics returns the topic names reported by the sequence's flight info, in
// lexicographic order.
func (h *SequenceHandler) Topics() []string { return h.topics }

// SystemInfo issues sequence_system_info and combines the response with the
// already-decoded flight metadata into the catalog view.
func (h *SequenceHandler) SystemInfo(ctx context.Context) (*platform.Sequence, error) {
	var info comm.SystemInfoResponse
	if err := comm.Do(ctx, h.client, comm.ActionSequenceSystemInfo, map[string]any{
		"name": h.name,
	}, &info); err != nil {
		return nil, WrapErr(comm.ActionSequenceSystemInfo, h.name, err)
	}
	return platform.NewSequence(h.name, h.metadata.UserMetadata, info.CreatedDatetime,
		info.TotalSizeBytes, info.IsLocked, h.topics), nil
}

// Name returns the sequence name this handler was opened for.
func (h *SequenceHandler) Name() string { return h.name }

// UserMetadata returns the sequence's user-supplied metadata, with internal
// "ros:"-prefixed keys already filtered out.
func (h *SequenceHandler) UserMetadata() map[string]any { return h.metadata.UserMetadata }

// OpenTopic opens one per-topic reader for topicName within this sequence,
// returning a TopicDataStreamer. The caller is responsible for closing
// it, or for folding it into OpenAll for the k-way merge.
func (h *SequenceHandler) OpenTopic(ctx context.Context, topicName string, factory MessageFactory) (*TopicDataStreamer, error) {
	resourceName := PackTopicResourceName(h.name, topicName)
	descriptor := &flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: []string{h.name, topicName}}

	info, err := h.client.GetFlightInfo(ctx, descriptor)
	if err != nil {
		return nil, WrapErr("get_flight_info", resourceName, err)
	}
	schema, err := flight.DeserializeSchema(info.Schema, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("handlers: deserializing flight schema for topic %q: %w", resourceName, err)
	}
	topicMeta, err := comm.DecodeTopicMetadata(comm.DecodeMetadata(schemaMetadataMap(schema)))
	if err != nil {
		return nil, WrapErr("get_flight_info", resourceName, err)
	}
	if len(info.Endpoint) == 0 {
		return nil, fmt.Errorf("handlers: no endpoints returned for topic %q", resourceName)
	}

	return OpenTopicDataStreamer(ctx, h.client, info.Endpoint[0].Ticket, topicName, topicMeta, factory)
}

// OpenAll opens every topic named in topicNames (defaulting to every topic
// the sequence's flight info reported) and combines them into a
// SequenceDataStreamer. If any topic fails to open, every
// already-opened reader is closed and the error is returned.
func (h *SequenceHandler) OpenAll(ctx context.Context, topicNames []string, factory MessageFactory) (*SequenceDataStreamer, error) {
	if len(topicNames) == 0 {
		topicNames = h.topics
	}
	readers := make(map[string]*TopicDataStreamer, len(topicNames))
	for _, name := range topicNames {
		r, err := h.OpenTopic(ctx, name, factory)
		if err != nil {
			for _, opened := range readers {
				opened.Close()
			}
			return nil, err
		}
		readers[name] = r
	}
	return NewSequenceDataStreamer(readers, h.logger, h.metrics)
}

// schemaMetadataMap flattens an Arrow schema's key-value metadata into a
// plain string map for comm.DecodeMetadata.
func schemaMetadataMap(schema *arrow.Schema) map[string]string {
	md := schema.Metadata()
	keys := md.Keys()
	values := md.Values()
	out := make(map[string]string, len(keys))
	for i := range keys {
		out[keys[i]] = values[i]
	}
	return out
}
