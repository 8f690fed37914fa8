package api

import (
	"slices"

	"pkt.systems/robotrpc/wire"
)

// DataChunk is one transport fragment of a serialized message. The position
// of a chunk is implied by its delivery order on the stream.
type DataChunk struct {
	// TotalSize is the length of the complete serialized message; identical
	// on every chunk of one message.
	TotalSize uint64
	// Data is the raw payload slice.
	Data []byte
	// Checksum is the xxhash64 of the complete message, 0 when absent.
	Checksum uint64
}

// MarshalWire implements wire.Message.
func (c *DataChunk) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, c.TotalSize)
	b = wire.AppendBytes(b, 2, c.Data)
	b = wire.AppendFixed64(b, 3, c.Checksum)
	return b, nil
}

// UnmarshalWire implements wire.Message.
func (c *DataChunk) UnmarshalWire(data []byte) error {
	*c = DataChunk{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			c.TotalSize = f.Varint
		case 2:
			c.Data = slices.Clone(f.Bytes)
		case 3:
			c.Checksum = f.Fixed64
		}
		return nil
	})
}
