package handlers

import (
	"context"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/mosaicolabs/mosaico-go/internal/comm"
	"github.com/mosaicolabs/mosaico-go/internal/models"
)

// MessageFactory builds a Message from a flattened column map; the caller
// supplies one each time a topic stream is opened.
type MessageFactory func(columns map[string]any) (*models.Message, error)

// TopicDataStreamer is the public per-topic iteration surface, a thin
// layer over TopicReadState's peek buffer.
type TopicDataStreamer struct {
	topicName   string
	ontologyTag string
	state       *TopicReadState
	factory     MessageFactory
}

// OpenTopicDataStreamer opens a DoGet stream for ticket and wraps it,
// taking the ontology tag from the already-decoded topicMeta.
func OpenTopicDataStreamer(ctx context.Context, client flight.Client, ticket *flight.Ticket, topicName string, topicMeta comm.TopicMetadata, factory MessageFactory) (*TopicDataStreamer, error) {
	reader, err := OpenFlightRecordReader(ctx, client, ticket)
	if err != nil {
		return nil, err
	}
	state, err := NewTopicReadState(topicName, topicMeta.Properties.OntologyTag, reader)
	if err != nil {
		reader.Cancel()
		return nil, err
	}
	return &TopicDataStreamer{
		topicName:   topicName,
		ontologyTag: topicMeta.Properties.OntologyTag,
		state:       state,
		factory:     factory,
	}, nil
}

// Next returns the next Message in this topic's stream, or (nil, false) at
// end-of-stream.
func (s *TopicDataStreamer) Next() (*models.Message, bool, error) {
	ok, err := s.state.PeekNextRow()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	row := s.state.ConsumeAndAdvance()
	msg, err := s.factory(row.Columns)
	if err != nil {
		return nil, false, fmt.Errorf("handlers: constructing message for topic %q: %w", s.topicName, err)
	}
	return msg, true, nil
}

// NextTimestamp peeks (without consuming) the next row's timestamp. Returns
// (0, false) at end-of-stream.
func (s *TopicDataStreamer) NextTimestamp() (int64, bool, error) {
	ok, err := s.state.PeekNextRow()
	if err != nil {
		return 0, false, err
	}
	if !ok || math.IsInf(s.state.PeekedTimestamp(), 1) {
		return 0, false, nil
	}
	return int64(s.state.PeekedTimestamp()), true, nil
}

// peekNextRow exposes the read state's peek for the k-way merge without
// consuming.
func (s *TopicDataStreamer) peekNextRow() (bool, error) {
	return s.state.PeekNextRow()
}

func (s *TopicDataStreamer) peekedTimestamp() float64 {
	return s.state.PeekedTimestamp()
}

func (s *TopicDataStreamer) consumeAndAdvance() (*models.Message, error) {
	row := s.state.ConsumeAndAdvance()
	if row == nil {
		return nil, fmt.Errorf("handlers: consumeAndAdvance called with no peeked row for topic %q", s.topicName)
	}
	return s.factory(row.Columns)
}

// Close cancels the underlying stream; safe to call more than once.
func (s *TopicDataStreamer) Close() {
	s.state.Close()
}
