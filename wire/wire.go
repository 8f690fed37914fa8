// Package wire encodes robotrpc messages in protobuf wire format and exposes
// the gRPC codec used by the client dispatch layer.
//
// Types that live in this module implement Message and encode themselves with
// protowire; generated protobuf types (proto.Message) are accepted as well so
// callers can send well-known types without an adapter.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// Name is the gRPC content-subtype the codec is registered under.
const Name = "robotrpc"

// ErrUnsupportedType is returned when a value is neither a Message nor a
// proto.Message.
var ErrUnsupportedType = errors.New("wire: unsupported message type")

// Message is implemented by types that encode themselves in protobuf wire
// format.
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(data []byte) error
}

// Marshal serializes v.
func Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnsupportedType)
	case Message:
		return m.MarshalWire()
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// Unmarshal decodes data into v, which must be a pointer implementing
// Message or proto.Message.
func Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case nil:
		return fmt.Errorf("%w: nil", ErrUnsupportedType)
	case Message:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// Codec adapts Marshal/Unmarshal to grpc's encoding.Codec.
type Codec struct{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return Marshal(v) }

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error { return Unmarshal(data, v) }

// Name implements encoding.Codec.
func (Codec) Name() string { return Name }

func init() {
	encoding.RegisterCodec(Codec{})
}

// Field is one decoded top-level field.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed64 uint64
	Fixed32 uint32
	Bytes   []byte
}

// ForEachField walks the fields encoded in b. Groups are skipped.
func ForEachField(b []byte, fn func(f Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: consume tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("wire: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return fmt.Errorf("wire: field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// Uint64s decodes a repeated varint field that may arrive packed or unpacked.
func (f Field) Uint64s() ([]uint64, error) {
	switch f.Type {
	case protowire.VarintType:
		return []uint64{f.Varint}, nil
	case protowire.BytesType:
		var out []uint64
		b := f.Bytes
		for len(b) > 0 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("wire: packed field %d: %w", f.Num, protowire.ParseError(n))
			}
			out = append(out, v)
			b = b[n:]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: field %d: unexpected wire type %d", f.Num, f.Type)
	}
}

// AppendString appends a string field, omitting the empty string.
func AppendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendBytes appends a bytes field, omitting empty values.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendVarint appends a varint field, omitting zero.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendFixed64 appends a fixed64 field, omitting zero.
func AppendFixed64(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

// AppendPacked appends a packed repeated varint field.
func AppendPacked(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var payload []byte
	for _, v := range vs {
		payload = protowire.AppendVarint(payload, v)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

// AppendMessage appends an embedded message field. Nil messages are omitted.
func AppendMessage(b []byte, num protowire.Number, m Message) ([]byte, error) {
	if m == nil {
		return b, nil
	}
	payload, err := m.MarshalWire()
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload), nil
}
