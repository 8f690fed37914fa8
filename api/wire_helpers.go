package api

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"pkt.systems/robotrpc/wire"
)

// protowireAppendRepeatedString appends one element of a repeated string
// field. Unlike wire.AppendString it keeps empty elements so positions survive.
func protowireAppendRepeatedString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendLeases appends leases as a repeated embedded message field.
func AppendLeases(b []byte, num protowire.Number, leases []Lease) ([]byte, error) {
	for i := range leases {
		var err error
		b, err = wire.AppendMessage(b, num, &leases[i])
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// AppendLease appends a single optional lease field.
func AppendLease(b []byte, num protowire.Number, l *Lease) ([]byte, error) {
	if l == nil {
		return b, nil
	}
	return wire.AppendMessage(b, num, l)
}

// DecodeLease decodes an embedded Lease field.
func DecodeLease(f wire.Field) (*Lease, error) {
	var l Lease
	if err := l.UnmarshalWire(f.Bytes); err != nil {
		return nil, fmt.Errorf("api: decode lease field %d: %w", f.Num, err)
	}
	return &l, nil
}

// AppendLeaseUseResults appends a repeated LeaseUseResult field.
func AppendLeaseUseResults(b []byte, num protowire.Number, results []LeaseUseResult) ([]byte, error) {
	for i := range results {
		var err error
		b, err = wire.AppendMessage(b, num, &results[i])
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// AppendLeaseUseResult appends a single optional LeaseUseResult field.
func AppendLeaseUseResult(b []byte, num protowire.Number, r *LeaseUseResult) ([]byte, error) {
	if r == nil {
		return b, nil
	}
	return wire.AppendMessage(b, num, r)
}

// DecodeLeaseUseResult decodes an embedded LeaseUseResult field.
func DecodeLeaseUseResult(f wire.Field) (*LeaseUseResult, error) {
	var r LeaseUseResult
	if err := r.UnmarshalWire(f.Bytes); err != nil {
		return nil, fmt.Errorf("api: decode lease use result field %d: %w", f.Num, err)
	}
	return &r, nil
}
