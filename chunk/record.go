package chunk

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"pkt.systems/robotrpc/api"
)

// MaxRecordBytes bounds a single framed record accepted by RecordReader.
const MaxRecordBytes = 64 << 20

// RecordWriter writes chunks as varint length-delimited DataChunk records,
// the framing protobuf uses for delimited message streams.
type RecordWriter struct {
	w   *bufio.Writer
	buf []byte
}

// NewRecordWriter returns a RecordWriter over w. Call Flush when done.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w)}
}

// Write appends one record.
func (rw *RecordWriter) Write(c Chunk) error {
	body, err := c.Wire().MarshalWire()
	if err != nil {
		return fmt.Errorf("chunk: encode record %d: %w", c.Index, err)
	}
	rw.buf = protowire.AppendVarint(rw.buf[:0], uint64(len(body)))
	if _, err := rw.w.Write(rw.buf); err != nil {
		return err
	}
	_, err = rw.w.Write(body)
	return err
}

// Flush writes any buffered records to the underlying writer.
func (rw *RecordWriter) Flush() error {
	return rw.w.Flush()
}

// RecordReader reads records written by RecordWriter.
type RecordReader struct {
	r *bufio.Reader
}

// NewRecordReader returns a RecordReader over r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF at a clean end of input. Input
// that ends inside a record yields io.ErrUnexpectedEOF.
func (rr *RecordReader) Next() (*api.DataChunk, error) {
	n, err := binary.ReadUvarint(rr.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("chunk: read record length: %w", err)
	}
	if n > MaxRecordBytes {
		return nil, fmt.Errorf("chunk: record of %d bytes exceeds limit %d", n, MaxRecordBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(rr.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("chunk: read record body: %w", err)
	}
	dc := new(api.DataChunk)
	if err := dc.UnmarshalWire(body); err != nil {
		return nil, fmt.Errorf("chunk: decode record: %w", err)
	}
	return dc, nil
}
