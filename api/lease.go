package api

import (
	"fmt"
	"slices"

	"pkt.systems/robotrpc/wire"
)

// Lease is a token granting exclusive control of a named resource.
type Lease struct {
	// Resource names the server-defined entity the lease controls.
	Resource string
	// Sequence holds the ownership epochs. Element 0 is the root epoch and is
	// advanced by the server whenever the lease changes hands; deeper
	// elements identify sub-leases.
	Sequence []uint64
	// ClientNames lists the clients the lease was handed through.
	ClientNames []string
	// Opaque is meaningful only to the server and is never interpreted here.
	Opaque []byte
}

// Comparison describes how two leases relate.
type Comparison int

const (
	// Same means both leases carry identical sequences.
	Same Comparison = iota
	// Newer means the receiver is newer than the argument.
	Newer
	// Older means the receiver is older than the argument.
	Older
	// Super means the argument is a sub-lease of the receiver.
	Super
	// Sub means the receiver is a sub-lease of the argument.
	Sub
	// DifferentResources means the leases cannot be compared.
	DifferentResources
)

func (c Comparison) String() string {
	switch c {
	case Same:
		return "same"
	case Newer:
		return "newer"
	case Older:
		return "older"
	case Super:
		return "super"
	case Sub:
		return "sub"
	case DifferentResources:
		return "different_resources"
	default:
		return fmt.Sprintf("comparison(%d)", int(c))
	}
}

// IsValid reports whether l names a resource and carries at least one epoch.
func (l Lease) IsValid() bool {
	return l.Resource != "" && len(l.Sequence) > 0
}

// Epoch returns the root ownership epoch, or 0 for an empty sequence.
func (l Lease) Epoch() uint64 {
	if len(l.Sequence) == 0 {
		return 0
	}
	return l.Sequence[0]
}

// Compare reports how l relates to other.
func (l Lease) Compare(other Lease) Comparison {
	if l.Resource != other.Resource {
		return DifferentResources
	}
	n := min(len(l.Sequence), len(other.Sequence))
	for i := 0; i < n; i++ {
		switch {
		case l.Sequence[i] > other.Sequence[i]:
			return Newer
		case l.Sequence[i] < other.Sequence[i]:
			return Older
		}
	}
	switch {
	case len(l.Sequence) == len(other.Sequence):
		return Same
	case len(l.Sequence) < len(other.Sequence):
		return Super
	default:
		return Sub
	}
}

// Clone returns a deep copy of l.
func (l Lease) Clone() Lease {
	return Lease{
		Resource:    l.Resource,
		Sequence:    slices.Clone(l.Sequence),
		ClientNames: slices.Clone(l.ClientNames),
		Opaque:      slices.Clone(l.Opaque),
	}
}

// String renders the resource and sequence, e.g. "arm[4 1]".
func (l Lease) String() string {
	return fmt.Sprintf("%s%v", l.Resource, l.Sequence)
}

// MarshalWire implements wire.Message.
func (l *Lease) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendString(b, 1, l.Resource)
	b = wire.AppendPacked(b, 2, l.Sequence)
	for _, name := range l.ClientNames {
		b = protowireAppendRepeatedString(b, 3, name)
	}
	b = wire.AppendBytes(b, 4, l.Opaque)
	return b, nil
}

// UnmarshalWire implements wire.Message.
func (l *Lease) UnmarshalWire(data []byte) error {
	*l = Lease{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			l.Resource = string(f.Bytes)
		case 2:
			seq, err := f.Uint64s()
			if err != nil {
				return fmt.Errorf("api: lease sequence: %w", err)
			}
			l.Sequence = append(l.Sequence, seq...)
		case 3:
			l.ClientNames = append(l.ClientNames, string(f.Bytes))
		case 4:
			l.Opaque = slices.Clone(f.Bytes)
		}
		return nil
	})
}
