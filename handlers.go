package mosaico

import (
	"github.com/mosaicolabs/mosaico-go/internal/handlers"
	"github.com/mosaicolabs/mosaico-go/internal/models/platform"
)

// Re-exported write/read pipeline surface. Client factory methods return
// these types; the aliases let an embedding application name them without
// importing internal packages.
type (
	SequenceWriter       = handlers.SequenceWriter
	TopicWriter          = handlers.TopicWriter
	SequenceHandler      = handlers.SequenceHandler
	TopicHandler         = handlers.TopicHandler
	SequenceDataStreamer = handlers.SequenceDataStreamer
	TopicDataStreamer    = handlers.TopicDataStreamer
	MessageFactory       = handlers.MessageFactory
	OnErrorPolicy        = handlers.OnErrorPolicy
	SequenceStatus       = handlers.SequenceStatus
	SequenceInfo         = platform.Sequence
	TopicInfo            = platform.Topic
	SerializationFormat  = platform.SerializationFormat
)

// Sequence-scope error policies: Report retains partial data and files
// an error notification; Delete aborts the sequence server-side.
const (
	OnErrorReport = handlers.OnErrorReport
	OnErrorDelete = handlers.OnErrorDelete
)

// Sequence lifecycle states.
const (
	SequenceStatusNull      = handlers.SequenceStatusNull
	SequenceStatusPending   = handlers.SequenceStatusPending
	SequenceStatusFinalized = handlers.SequenceStatusFinalized
	SequenceStatusError     = handlers.SequenceStatusError
)
