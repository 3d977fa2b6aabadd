package handlers

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecordReader struct {
	schema    *arrow.Schema
	batches   []arrow.Record
	idx       int
	err       error // returned once batches are exhausted, instead of EOF
	cancelled bool
}

func (f *fakeRecordReader) Schema() *arrow.Schema { return f.schema }

func (f *fakeRecordReader) ReadChunk() (arrow.Record, error) {
	if f.idx >= len(f.batches) {
		if f.err != nil {
			return nil, f.err
		}
		return nil, io.EOF
	}
	rec := f.batches[f.idx]
	f.idx++
	return rec, nil
}

func (f *fakeRecordReader) Cancel() { f.cancelled = true }

func readSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "timestamp_ns", Type: arrow.PrimitiveTypes.Int64},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
}

func batchOf(t *testing.T, timestamps ...int64) arrow.Record {
	t.Helper()
	rows := make([]map[string]any, len(timestamps))
	for i, ts := range timestamps {
		rows[i] = map[string]any{"timestamp_ns": ts, "value": float64(ts) / 2}
	}
	rec, err := BuildRecordBatch(readSchema(), rows)
	require.NoError(t, err)
	return rec
}

func newReadState(t *testing.T, reader RecordReader) *TopicReadState {
	t.Helper()
	s, err := NewTopicReadState("/t1", "imu", reader)
	require.NoError(t, err)
	return s
}

func TestNewTopicReadStateRequiresTimestampColumn(t *testing.T) {
	bad := arrow.NewSchema([]arrow.Field{
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
	_, err := NewTopicReadState("/t1", "imu", &fakeRecordReader{schema: bad})
	require.ErrorIs(t, err, ErrMissingTimestampColumn)

	_, err = NewTopicReadState("/t1", "imu", nil)
	require.Error(t, err)
}

func TestPeekNextRowIsIdempotent(t *testing.T) {
	reader := &fakeRecordReader{schema: readSchema(), batches: []arrow.Record{batchOf(t, 10, 20)}}
	s := newReadState(t, reader)

	ok, err := s.PeekNextRow()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(10), s.PeekedTimestamp())

	// A second peek with a row already buffered is a no-op.
	ok, err = s.PeekNextRow()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(10), s.PeekedTimestamp())

	row := s.ConsumeAndAdvance()
	require.NotNil(t, row)
	assert.Equal(t, int64(10), row.Timestamp)
	assert.Equal(t, 5.0, row.Columns["value"])
	assert.False(t, s.HasPeeked())
}

func TestPeekAdvancesAcrossBatchesSkippingEmptyOnes(t *testing.T) {
	reader := &fakeRecordReader{schema: readSchema(), batches: []arrow.Record{
		batchOf(t, 1),
		batchOf(t), // zero-row chunk, skipped
		batchOf(t, 2, 3),
	}}
	s := newReadState(t, reader)

	var got []int64
	for {
		ok, err := s.PeekNextRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, s.ConsumeAndAdvance().Timestamp)
	}
	assert.Equal(t, []int64{1, 2, 3}, got)

	// Exhausted state: peeked timestamp pins to +Inf.
	assert.True(t, math.IsInf(s.PeekedTimestamp(), 1))
}

func TestPeekPropagatesTransportError(t *testing.T) {
	transportErr := errors.New("stream reset")
	reader := &fakeRecordReader{schema: readSchema(), batches: []arrow.Record{batchOf(t, 1)}, err: transportErr}
	s := newReadState(t, reader)

	ok, err := s.PeekNextRow()
	require.NoError(t, err)
	require.True(t, ok)
	s.ConsumeAndAdvance()

	ok, err = s.PeekNextRow()
	require.ErrorIs(t, err, transportErr)
	assert.False(t, ok)
	assert.True(t, math.IsInf(s.PeekedTimestamp(), 1))
	assert.Nil(t, s.ConsumeAndAdvance())
}

func TestReadStateCloseCancelsReader(t *testing.T) {
	reader := &fakeRecordReader{schema: readSchema(), batches: []arrow.Record{batchOf(t, 1)}}
	s := newReadState(t, reader)

	ok, err := s.PeekNextRow()
	require.NoError(t, err)
	require.True(t, ok)

	s.Close()
	assert.True(t, reader.cancelled)
	s.Close() // safe to call again
}
