package handlers

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// byteCounter is an io.Writer that only counts bytes written, used to
// measure a batch's exact stream-encoded size without materializing the
// buffer.
type byteCounter struct {
	n int64
}

func (c *byteCounter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func ipcStreamWriter(w *byteCounter, schema *arrow.Schema) *ipc.Writer {
	return ipc.NewWriter(w, ipc.WithSchema(schema))
}
