package models

import (
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// Serializable is the interface every registered ontology payload type must
// implement. Ontology types register themselves at process start via
// RegisterOntology.
type Serializable interface {
	// OntologyTag returns the short string identifying this payload's schema.
	OntologyTag() string
	// SerializationFormat returns the wire-format tag for this payload, one
	// of the literal strings "default", "ragged", "image". It selects
	// the batching discipline of the topic's write pipeline.
	SerializationFormat() string
	// Schema returns the Arrow struct type for this payload's own columns.
	// Envelope fields are NOT included; CombinedSchema merges them
	// separately so the envelope schema stays a separately-owned constant.
	Schema() *arrow.StructType
	// Encode flattens the payload into column-name -> value.
	Encode() map[string]any
	// DecodeFrom reconstructs a payload of this type from a flattened
	// column map (the read-path counterpart to Encode), returning a new
	// Serializable value. Called on the zero-value instance produced by
	// the tag's registered constructor.
	DecodeFrom(columns map[string]any) (Serializable, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Serializable{}
)

// RegisterOntology registers a constructor for the given ontology tag. It is
// intended to be called from an init() func or an explicit startup routine,
// guarded by the package-level mutex against concurrent registration.
func RegisterOntology(tag string, ctor func() Serializable) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[tag] = ctor
}

// LookupOntology returns the constructor registered for tag, if any.
func LookupOntology(tag string) (func() Serializable, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[tag]
	return ctor, ok
}

// envelopeFields are the Message envelope's own columns: timestamp_ns and
// an optional message_header. Kept as a separately-owned constant so they
// can be combined on demand with any ontology's schema without a cyclic
// package reference.
var envelopeFields = []arrow.Field{
	{Name: "timestamp_ns", Type: arrow.PrimitiveTypes.Int64},
	{Name: "message_header", Type: arrow.StructOf(
		arrow.Field{Name: "seq", Type: arrow.PrimitiveTypes.Uint32, Nullable: true},
		arrow.Field{Name: "stamp", Type: arrow.StructOf(
			arrow.Field{Name: "sec", Type: arrow.PrimitiveTypes.Int64},
			arrow.Field{Name: "nanosec", Type: arrow.PrimitiveTypes.Uint32},
		)},
		arrow.Field{Name: "frame_id", Type: arrow.BinaryTypes.String, Nullable: true},
	), Nullable: true},
}

// Message is the universal transport envelope wrapping one ontology payload.
type Message struct {
	TimestampNs   int64
	MessageHeader *Header
	Data          Serializable
}

// NewMessage constructs a Message, rejecting any collision between the
// envelope's own field names and the payload's declared schema field names.
func NewMessage(timestampNs int64, data Serializable, header *Header) (*Message, error) {
	if data == nil {
		return nil, fmt.Errorf("models: message data payload must not be nil")
	}
	envNames := map[string]struct{}{"timestamp_ns": {}, "message_header": {}}
	for _, f := range data.Schema().Fields() {
		if _, collide := envNames[f.Name]; collide {
			return nil, fmt.Errorf("models: field name collision between payload %q and message envelope: %q", data.OntologyTag(), f.Name)
		}
	}
	return &Message{TimestampNs: timestampNs, MessageHeader: header, Data: data}, nil
}

// OntologyTag returns the ontology tag of the wrapped payload.
func (m *Message) OntologyTag() string {
	return m.Data.OntologyTag()
}

// Encode flattens the envelope and payload fields into one column map
// suitable for Arrow serialization.
func (m *Message) Encode() map[string]any {
	cols := map[string]any{"timestamp_ns": m.TimestampNs}
	if m.MessageHeader != nil {
		var seq any
		if m.MessageHeader.Seq != nil {
			seq = *m.MessageHeader.Seq
		}
		cols["message_header"] = map[string]any{
			"seq":      seq,
			"stamp":    map[string]any{"sec": m.MessageHeader.Stamp.Sec, "nanosec": m.MessageHeader.Stamp.Nanosec},
			"frame_id": m.MessageHeader.FrameID,
		}
	} else {
		cols["message_header"] = nil
	}
	for k, v := range m.Data.Encode() {
		cols[k] = v
	}
	return cols
}

// DefaultMessageFactory returns a column-map-to-Message factory for
// ontologyTag, backed by the tag's registered constructor and its
// DecodeFrom method. The returned func's signature
// matches handlers.MessageFactory structurally, so it can be assigned
// directly to that named type without an explicit conversion.
func DefaultMessageFactory(ontologyTag string) (func(columns map[string]any) (*Message, error), error) {
	ctor, ok := LookupOntology(ontologyTag)
	if !ok {
		return nil, fmt.Errorf("models: no ontology registered for tag %q", ontologyTag)
	}
	return func(columns map[string]any) (*Message, error) {
		data, err := ctor().DecodeFrom(columns)
		if err != nil {
			return nil, fmt.Errorf("models: decoding payload for ontology %q: %w", ontologyTag, err)
		}
		ts, _ := columns["timestamp_ns"].(int64)
		var header *Header
		if hv, ok := columns["message_header"].(map[string]any); ok && hv != nil {
			header = decodeHeader(hv)
		}
		return NewMessage(ts, data, header)
	}, nil
}

func decodeHeader(v map[string]any) *Header {
	h := &Header{}
	if seq, ok := v["seq"].(uint32); ok {
		h.Seq = &seq
	}
	if stamp, ok := v["stamp"].(map[string]any); ok {
		sec, _ := stamp["sec"].(int64)
		nanosec, _ := stamp["nanosec"].(uint32)
		h.Stamp = Time{Sec: sec, Nanosec: nanosec}
	}
	if fid, ok := v["frame_id"].(string); ok {
		h.FrameID = fid
	}
	return h
}

// CombinedSchema merges the envelope schema with data's own schema,
// rejecting any column-name collision between the two.
func CombinedSchema(data Serializable) (*arrow.Schema, error) {
	seen := make(map[string]struct{}, len(envelopeFields))
	fields := make([]arrow.Field, 0, len(envelopeFields)+data.Schema().NumFields())
	for _, f := range envelopeFields {
		seen[f.Name] = struct{}{}
		fields = append(fields, f)
	}
	for _, f := range data.Schema().Fields() {
		if _, collide := seen[f.Name]; collide {
			return nil, fmt.Errorf("models: schema collision between payload %q and envelope field %q", data.OntologyTag(), f.Name)
		}
		fields = append(fields, f)
	}
	return arrow.NewSchema(fields, nil), nil
}
