package chunk

import (
	"github.com/cespare/xxhash/v2"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/status"
	"pkt.systems/robotrpc/wire"
)

// Progress reports the state of a Reassembler after a Feed.
type Progress int

const (
	InProgress Progress = iota
	Complete
)

func (p Progress) String() string {
	if p == Complete {
		return "complete"
	}
	return "in_progress"
}

// MaxMessageBytes is the default limit on the TotalSize a chunk stream may
// declare.
const MaxMessageBytes = 256 << 20

// initialBuffer caps the up-front allocation for a declared total. The
// buffer grows as data actually arrives.
const initialBuffer = 1 << 20

// Reassembler accumulates the chunks of one message. It belongs to a single
// call, is not safe for concurrent use, and never blocks.
type Reassembler struct {
	limit    uint64
	next     int
	total    uint64
	checksum uint64
	started  bool
	complete bool
	boundary bool
	buf      []byte
	err      error
}

// ReassemblerOption customises a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithMaxMessageBytes overrides MaxMessageBytes. Zero keeps the default.
func WithMaxMessageBytes(n uint64) ReassemblerOption {
	return func(r *Reassembler) {
		if n > 0 {
			r.limit = n
		}
	}
}

// NewReassembler returns an empty Reassembler.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{limit: MaxMessageBytes}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed adds the next chunk. Once an error is returned the reassembler stays
// failed and keeps returning it.
func (r *Reassembler) Feed(c Chunk) (Progress, error) {
	if r.err != nil {
		return InProgress, r.err
	}
	if c.Index != r.next {
		return r.fail(status.Newf(status.ChunkOutOfOrder, "expected chunk %d, got %d", r.next, c.Index))
	}
	if r.complete {
		// Only the zero-length boundary chunk may follow a message whose
		// length is an exact multiple of the chunk size.
		if len(c.Data) != 0 || r.boundary || c.TotalSize != r.total {
			return r.fail(status.Newf(status.ChunkMalformed, "chunk %d after message completed", c.Index))
		}
		r.boundary = true
		r.next++
		return Complete, nil
	}
	if !r.started {
		if c.TotalSize > r.limit {
			return r.fail(status.Newf(status.ChunkMalformed, "chunk %d declares total %d, limit is %d", c.Index, c.TotalSize, r.limit))
		}
		r.started = true
		r.total = c.TotalSize
		r.checksum = c.Checksum
		if r.total > 0 {
			r.buf = make([]byte, 0, min(r.total, initialBuffer))
		}
	} else if c.TotalSize != r.total {
		return r.fail(status.Newf(status.ChunkMalformed, "chunk %d declares total %d, expected %d", c.Index, c.TotalSize, r.total))
	}
	if uint64(len(r.buf))+uint64(len(c.Data)) > r.total {
		return r.fail(status.Newf(status.ChunkMalformed, "chunk %d overflows declared total %d", c.Index, r.total))
	}
	r.buf = append(r.buf, c.Data...)
	r.next++
	if uint64(len(r.buf)) < r.total {
		return InProgress, nil
	}
	if r.checksum != 0 {
		if got := xxhash.Sum64(r.buf); got != r.checksum {
			return r.fail(status.Newf(status.ChunkMalformed, "checksum mismatch: got %016x, want %016x", got, r.checksum))
		}
	}
	r.complete = true
	return Complete, nil
}

// Close marks the end of the stream. It returns a status.ChunkTruncated error
// unless the message is complete.
func (r *Reassembler) Close() error {
	if r.err != nil {
		return r.err
	}
	if !r.complete {
		if !r.started {
			_, err := r.fail(status.New(status.ChunkTruncated, "stream ended before any chunk"))
			return err
		}
		_, err := r.fail(status.Newf(status.ChunkTruncated, "stream ended after %d of %d bytes", len(r.buf), r.total))
		return err
	}
	return nil
}

// Complete reports whether the whole message has been received.
func (r *Reassembler) Complete() bool {
	return r.err == nil && r.complete
}

// Received returns the number of chunks accepted so far.
func (r *Reassembler) Received() int {
	return r.next
}

// Payload returns the reassembled bytes, or nil before completion.
func (r *Reassembler) Payload() []byte {
	if !r.Complete() {
		return nil
	}
	return r.buf
}

// Unmarshal decodes the reassembled message into dst.
func (r *Reassembler) Unmarshal(dst any) error {
	if r.err != nil {
		return r.err
	}
	if !r.complete {
		return status.Newf(status.ChunkTruncated, "message incomplete after %d of %d bytes", len(r.buf), r.total)
	}
	if err := wire.Unmarshal(r.buf, dst); err != nil {
		return status.Wrap(status.ChunkMalformed, err, "decode reassembled message")
	}
	return nil
}

func (r *Reassembler) fail(err error) (Progress, error) {
	r.err = err
	r.buf = nil
	return InProgress, err
}

// Decode reassembles a complete slice of chunks into dst.
func Decode(chunks []Chunk, dst any) error {
	r := NewReassembler()
	for _, c := range chunks {
		if _, err := r.Feed(c); err != nil {
			return err
		}
	}
	if err := r.Close(); err != nil {
		return err
	}
	return r.Unmarshal(dst)
}

// Stream assigns indices to wire chunks in delivery order.
type Stream struct {
	r *Reassembler
}

// NewStream returns a Stream over a fresh Reassembler.
func NewStream(opts ...ReassemblerOption) *Stream {
	return &Stream{r: NewReassembler(opts...)}
}

// Push feeds the next delivered wire chunk.
func (s *Stream) Push(dc *api.DataChunk) (Progress, error) {
	return s.r.Feed(FromWire(s.r.Received(), dc))
}

// Reassembler exposes the underlying reassembler.
func (s *Stream) Reassembler() *Reassembler {
	return s.r
}
