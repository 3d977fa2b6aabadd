package comm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MosaicoKeyPrefix namespaces every server-side framework key on the wire.
const MosaicoKeyPrefix = "mosaico:"

// RosKeyPrefix identifies internal keys inside the user-metadata map that
// must be filtered out before returning user metadata to the caller.
const RosKeyPrefix = "ros:"

// TopicProperties is the `mosaico:properties` sub-object of a topic's
// schema metadata.
type TopicProperties struct {
	OntologyTag         string `json:"ontology_tag"`
	SerializationFormat string `json:"serialization_format"`
}

// SequenceMetadata is the decoded `mosaico:*` metadata found on a sequence's
// GetFlightInfo schema.
type SequenceMetadata struct {
	Context      string         `json:"context"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// TopicMetadata is the decoded `mosaico:*` metadata found on a topic's
// GetFlightInfo schema.
type TopicMetadata struct {
	Context      string          `json:"context"`
	Properties   TopicProperties `json:"properties"`
	UserMetadata map[string]any  `json:"user_metadata"`
}

func valueKey(key string) string {
	return MosaicoKeyPrefix + key
}

// DecodeMetadata decodes a raw byte-keyed Arrow schema metadata map: every
// value is tried as JSON first, falling back to the raw string on failure
// (mirrors the reference `_decode_metadata`).
func DecodeMetadata(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out
}

// DecodeSequenceMetadata extracts and validates a SequenceMetadata from a
// raw decoded metadata map.
func DecodeSequenceMetadata(m map[string]any) (SequenceMetadata, error) {
	var out SequenceMetadata
	ctxVal, _ := m[valueKey("context")].(string)
	if ctxVal != "sequence" {
		return out, fmt.Errorf("%w: expected context 'sequence', got %q", ErrProtocol, ctxVal)
	}
	out.Context = ctxVal
	out.UserMetadata = filterRosKeys(extractMap(m, valueKey("user_metadata")))
	return out, nil
}

// DecodeTopicMetadata extracts and validates a TopicMetadata from a raw
// decoded metadata map.
func DecodeTopicMetadata(m map[string]any) (TopicMetadata, error) {
	var out TopicMetadata
	ctxVal, _ := m[valueKey("context")].(string)
	if ctxVal != "topic" {
		return out, fmt.Errorf("%w: expected context 'topic', got %q", ErrProtocol, ctxVal)
	}
	out.Context = ctxVal

	props := extractMap(m, valueKey("properties"))
	out.Properties = TopicProperties{
		OntologyTag:         stringField(props, "ontology_tag"),
		SerializationFormat: stringField(props, "serialization_format"),
	}
	out.UserMetadata = filterRosKeys(extractMap(m, valueKey("user_metadata")))
	return out, nil
}

func extractMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// filterRosKeys removes internal "ros:"-prefixed keys before user metadata
// is returned to the caller.
func filterRosKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, RosKeyPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}
