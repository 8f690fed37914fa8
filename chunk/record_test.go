package chunk

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestRecordsRoundTrip(t *testing.T) {
	t.Parallel()
	payload := bytes.Repeat([]byte("mission-tree "), 50)
	chunks, err := EncodeBytes(payload, 64, WithChecksum())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	w := NewRecordWriter(&buf)
	for _, c := range chunks {
		if err := w.Write(c); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	r := NewRecordReader(&buf)
	s := NewStream()
	for {
		dc, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if _, err := s.Push(dc); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if err := s.Reassembler().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.Reassembler().Received() != len(chunks) {
		t.Fatalf("received %d records, want %d", s.Reassembler().Received(), len(chunks))
	}
	if !bytes.Equal(s.Reassembler().Payload(), payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestRecordReaderTruncated(t *testing.T) {
	t.Parallel()
	chunks, err := EncodeBytes([]byte("abcdef"), 16)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	w := NewRecordWriter(&buf)
	if err := w.Write(chunks[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data := buf.Bytes()[:buf.Len()-2]
	_, err = NewRecordReader(bytes.NewReader(data)).Next()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
	if _, err := NewRecordReader(bytes.NewReader(nil)).Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF on empty input, got %v", err)
	}
}
