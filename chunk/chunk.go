// Package chunk splits serialized messages into size-bounded transport chunks
// and reassembles them on the receiving side.
//
// Every chunk of one message declares the same TotalSize, so a receiver can
// tell a complete message from a truncated stream without an explicit end
// marker. When the serialized length is an exact multiple of the chunk size
// the encoder still emits a final zero-length chunk to mark the boundary.
package chunk

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/wire"
)

// DefaultChunkSize is the chunk size used when none is configured (4 MiB).
const DefaultChunkSize = 4 << 20

// Chunk is one ordered fragment of a serialized message.
type Chunk struct {
	// Index is the zero-based position within the message.
	Index int
	// TotalSize is the declared length of the complete serialized message.
	TotalSize uint64
	Data      []byte
	// Checksum is the xxhash64 of the complete message; 0 when absent.
	Checksum uint64
}

// Wire returns the transport form of c. The index is implied by stream order.
func (c Chunk) Wire() *api.DataChunk {
	return &api.DataChunk{TotalSize: c.TotalSize, Data: c.Data, Checksum: c.Checksum}
}

// FromWire builds a Chunk at position index from its transport form.
func FromWire(index int, dc *api.DataChunk) Chunk {
	if dc == nil {
		return Chunk{Index: index}
	}
	return Chunk{Index: index, TotalSize: dc.TotalSize, Data: dc.Data, Checksum: dc.Checksum}
}

type encodeOptions struct {
	checksum bool
}

// EncodeOption customises Encode.
type EncodeOption func(*encodeOptions)

// WithChecksum stamps every chunk with the xxhash64 of the whole message.
func WithChecksum() EncodeOption {
	return func(o *encodeOptions) { o.checksum = true }
}

// Encode serializes msg with the wire codec and slices it into chunks of at
// most maxChunkBytes each.
func Encode(msg any, maxChunkBytes int, opts ...EncodeOption) ([]Chunk, error) {
	if maxChunkBytes < 1 {
		return nil, fmt.Errorf("chunk: max chunk size must be at least 1, got %d", maxChunkBytes)
	}
	payload, err := wire.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("chunk: serialize message: %w", err)
	}
	return EncodeBytes(payload, maxChunkBytes, opts...)
}

// EncodeBytes slices an already serialized payload. The chunks alias payload.
func EncodeBytes(payload []byte, maxChunkBytes int, opts ...EncodeOption) ([]Chunk, error) {
	if maxChunkBytes < 1 {
		return nil, fmt.Errorf("chunk: max chunk size must be at least 1, got %d", maxChunkBytes)
	}
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}
	total := uint64(len(payload))
	var sum uint64
	if o.checksum {
		sum = xxhash.Sum64(payload)
	}
	// One chunk per full stride plus the remainder, which is empty when the
	// payload is an exact multiple of the stride.
	count := len(payload)/maxChunkBytes + 1
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * maxChunkBytes
		end := min(start+maxChunkBytes, len(payload))
		chunks = append(chunks, Chunk{
			Index:     i,
			TotalSize: total,
			Data:      payload[start:end:end],
			Checksum:  sum,
		})
	}
	return chunks, nil
}
