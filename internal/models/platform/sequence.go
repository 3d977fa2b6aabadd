// Package platform holds the client-side catalog models for the two
// top-level entities the server tracks: Sequence and Topic. These are
// read-only views over server-reported state; they are
// distinct from the write-path's handlers.SequenceWriter/TopicWriter, which
// own the live transactional lifecycle.
package platform

import "time"

// SequenceStatus mirrors handlers.SequenceStatus for catalog consumers that
// never touch the write path directly (e.g. a caller who only reads
// sequences through a SequenceHandler).
type SequenceStatus int

const (
	SequenceStatusNull SequenceStatus = iota
	SequenceStatusPending
	SequenceStatusFinalized
	SequenceStatusError
)

// Sequence is the catalog view of a recording session.
type Sequence struct {
	Name         string
	UserMetadata map[string]any
	CreatedAt    time.Time
	TotalBytes   int64
	Locked       bool
	Topics       []string
	Status       SequenceStatus
}

// NewSequence constructs a catalog Sequence from server-reported fields.
func NewSequence(name string, userMetadata map[string]any, createdAt time.Time, totalBytes int64, locked bool, topics []string) *Sequence {
	status := SequenceStatusPending
	if locked {
		status = SequenceStatusFinalized
	}
	return &Sequence{
		Name:         name,
		UserMetadata: userMetadata,
		CreatedAt:    createdAt,
		TotalBytes:   totalBytes,
		Locked:       locked,
		Topics:       topics,
		Status:       status,
	}
}
