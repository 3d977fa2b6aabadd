package handlers

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
)

// ErrMissingTimestampColumn is returned when a reader's schema lacks the
// required timestamp_ns column.
var ErrMissingTimestampColumn = errors.New("handlers: schema is missing required column timestamp_ns")

// RecordReader abstracts the DoGet reader stream a TopicReadState pulls
// batches from.
type RecordReader interface {
	Schema() *arrow.Schema
	// ReadChunk returns the next record batch, or (nil, io.EOF) at
	// end-of-stream.
	ReadChunk() (arrow.Record, error)
	Cancel()
}

// PeekedRow is one materialized row with its timestamp, produced by
// PeekNextRow.
type PeekedRow struct {
	Columns   map[string]any
	Timestamp int64
}

// TopicReadState is a per-topic stream reader with a one-row,
// non-destructive peek buffer.
type TopicReadState struct {
	topicName      string
	ontologyTag    string
	reader         RecordReader
	columnNames    []string
	timestampIndex int

	currentBatch arrow.Record
	rowIndex     int

	peeked          bool
	peekedRow       *PeekedRow
	peekedTimestamp float64

	closed bool
}

// NewTopicReadState validates the reader's schema contains timestamp_ns.
// The peeked timestamp is initialised to +Inf until a row is buffered.
func NewTopicReadState(topicName, ontologyTag string, reader RecordReader) (*TopicReadState, error) {
	if reader == nil {
		return nil, fmt.Errorf("handlers: topic read state requires a non-nil reader")
	}
	schema := reader.Schema()
	names := make([]string, schema.NumFields())
	tsIndex := -1
	for i, f := range schema.Fields() {
		names[i] = f.Name
		if f.Name == "timestamp_ns" {
			tsIndex = i
		}
	}
	if tsIndex < 0 {
		return nil, ErrMissingTimestampColumn
	}

	return &TopicReadState{
		topicName:       topicName,
		ontologyTag:     ontologyTag,
		reader:          reader,
		columnNames:     names,
		timestampIndex:  tsIndex,
		peekedTimestamp: math.Inf(1),
	}, nil
}

// PeekNextRow populates the peek buffer with the next available row,
// returning true, or clears it (row=nil, timestamp=+Inf) and returns false
// at end-of-stream. On a transport error it clears the peek state and
// returns the error.
//
// The operation is idempotent: calling it while a row is already peeked is
// a no-op that returns true immediately. Only ConsumeAndAdvance moves the
// cursor forward.
func (s *TopicReadState) PeekNextRow() (bool, error) {
	if s.peeked {
		return true, nil
	}

	for {
		if s.currentBatch == nil || s.rowIndex >= int(s.currentBatch.NumRows()) {
			ok, err := s.advanceToNextBatch()
			if err != nil {
				s.clearPeek()
				return false, err
			}
			if !ok {
				s.clearPeek()
				return false, nil
			}
			continue
		}

		row := s.extractRow(s.rowIndex)
		ts := row.Timestamp
		s.rowIndex++

		s.peeked = true
		s.peekedRow = &row
		s.peekedTimestamp = float64(ts)
		return true, nil
	}
}

// advanceToNextBatch fetches batches until it finds one with at least one
// row, skipping zero-row chunks. Returns false at end-of-stream.
func (s *TopicReadState) advanceToNextBatch() (bool, error) {
	if s.currentBatch != nil {
		s.currentBatch.Release()
		s.currentBatch = nil
	}
	for {
		rec, err := s.reader.ReadChunk()
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if rec.NumRows() == 0 {
			rec.Release()
			continue
		}
		s.currentBatch = rec
		s.rowIndex = 0
		return true, nil
	}
}

func (s *TopicReadState) extractRow(idx int) PeekedRow {
	cols := make(map[string]any, len(s.columnNames))
	for i, name := range s.columnNames {
		cols[name] = columnValueAt(s.currentBatch.Column(i), idx)
	}
	ts, _ := cols["timestamp_ns"].(int64)
	return PeekedRow{Columns: cols, Timestamp: ts}
}

func (s *TopicReadState) clearPeek() {
	s.peeked = false
	s.peekedRow = nil
	s.peekedTimestamp = math.Inf(1)
}

// ConsumeAndAdvance returns the currently peeked row (nil if none) and
// clears the peek buffer so the next PeekNextRow call advances forward.
func (s *TopicReadState) ConsumeAndAdvance() *PeekedRow {
	row := s.peekedRow
	s.clearPeek()
	return row
}

// PeekedTimestamp returns the currently peeked timestamp, or +Inf if none
// is peeked.
func (s *TopicReadState) PeekedTimestamp() float64 {
	return s.peekedTimestamp
}

// HasPeeked reports whether a row is currently peeked.
func (s *TopicReadState) HasPeeked() bool {
	return s.peeked
}

// Close cancels the reader and releases the current batch; safe to call
// more than once.
func (s *TopicReadState) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.currentBatch != nil {
		s.currentBatch.Release()
		s.currentBatch = nil
	}
	s.reader.Cancel()
}
