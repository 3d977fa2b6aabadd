package handlers

import (
	"fmt"
	"strings"
)

// PackTopicResourceName builds the wire-level resource name
// "<sequence-name>/<topic-name>", stripping any leading slash from both
// components.
func PackTopicResourceName(sequenceName, topicName string) string {
	seq := strings.TrimPrefix(sequenceName, "/")
	topic := strings.TrimPrefix(topicName, "/")
	return seq + "/" + topic
}

// UnpackTopicFullPath splits a full resource path back into (sequence name,
// topic name). Topic name is returned with a leading slash restored. Inputs
// without at least one "/" fail to unpack.
func UnpackTopicFullPath(topicPath string) (sequenceName, topicName string, ok bool) {
	p := strings.TrimPrefix(topicPath, "/")
	parts := strings.SplitN(p, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], "/" + parts[1], true
}

// ValidateSequenceName rejects names containing an internal "/" once the
// leading slash (if any) has been stripped.
func ValidateSequenceName(name string) error {
	stripped := strings.TrimPrefix(name, "/")
	if strings.Contains(stripped, "/") {
		return fmt.Errorf("handlers: sequence name %q must not contain '/'", name)
	}
	return nil
}

// WrapErr wraps a transport failure with its action and resource context
// ("action X failed for resource Y: <inner>").
func WrapErr(action, resource string, inner error) error {
	return fmt.Errorf("action %s failed for resource %s: %w", action, resource, inner)
}
