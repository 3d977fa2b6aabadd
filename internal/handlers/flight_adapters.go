package handlers

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// flightWriteStream adapts an Arrow Flight DoPut stream to the WriteStream
// interface TopicWriteState writes through.
type flightWriteStream struct {
	stream flight.FlightService_DoPutClient
	writer *flight.Writer
}

// OpenFlightWriteStream opens a DoPut stream against client for the given
// descriptor and schema, returning a WriteStream ready for TopicWriteState.
func OpenFlightWriteStream(ctx context.Context, client flight.Client, descriptor *flight.FlightDescriptor, schema *arrow.Schema) (WriteStream, error) {
	stream, err := client.DoPut(ctx)
	if err != nil {
		return nil, fmt.Errorf("handlers: opening DoPut stream: %w", err)
	}
	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
	w.SetFlightDescriptor(descriptor)
	return &flightWriteStream{stream: stream, writer: w}, nil
}

func (f *flightWriteStream) Write(rec arrow.Record) error {
	return f.writer.Write(rec)
}

func (f *flightWriteStream) DoneWriting() error {
	return f.writer.Close()
}

func (f *flightWriteStream) Close() error {
	if err := f.stream.CloseSend(); err != nil {
		return err
	}
	// Drain any pending PutResult acknowledgements.
	for {
		if _, err := f.stream.Recv(); err != nil {
			break
		}
	}
	return nil
}

// flightRecordReader adapts an Arrow Flight DoGet stream to the
// RecordReader interface TopicReadState reads through.
type flightRecordReader struct {
	stream flight.FlightService_DoGetClient
	reader *flight.Reader
	cancel context.CancelFunc
}

// OpenFlightRecordReader opens a DoGet stream for the given ticket.
func OpenFlightRecordReader(ctx context.Context, client flight.Client, ticket *flight.Ticket) (RecordReader, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := client.DoGet(ctx, ticket)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("handlers: opening DoGet stream: %w", err)
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("handlers: constructing record reader: %w", err)
	}
	return &flightRecordReader{stream: stream, reader: reader, cancel: cancel}, nil
}

func (f *flightRecordReader) Schema() *arrow.Schema {
	return f.reader.Schema()
}

func (f *flightRecordReader) ReadChunk() (arrow.Record, error) {
	rec, err := f.reader.Read()
	if err != nil {
		return nil, err
	}
	rec.Retain()
	return rec, nil
}

func (f *flightRecordReader) Cancel() {
	f.cancel()
	f.reader.Release()
}
