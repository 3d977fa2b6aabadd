package platform

import "time"

// SerializationFormat is one of the literal wire strings.
type SerializationFormat string

const (
	SerializationDefault SerializationFormat = "default"
	SerializationRagged  SerializationFormat = "ragged"
	SerializationImage   SerializationFormat = "image"
)

// Topic is the catalog view of one logical stream within a sequence.
// ChunksCount is a pointer because the server reports it as optional.
type Topic struct {
	SequenceName        string
	Name                string
	OntologyTag         string
	SerializationFormat SerializationFormat
	UserMetadata        map[string]any
	Key                 string
	ChunksCount         *int64
	SizeBytes           int64
	CreatedAt           time.Time
}

// ResourceName returns the wire-level "<sequence-name>/<topic-name>"
// resource name.
func (t *Topic) ResourceName() string {
	seq := t.SequenceName
	if len(seq) > 0 && seq[0] == '/' {
		seq = seq[1:]
	}
	name := t.Name
	if len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return seq + "/" + name
}
