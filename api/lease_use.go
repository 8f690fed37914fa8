package api

import (
	"fmt"

	"pkt.systems/robotrpc/wire"
)

// LeaseUseStatus is the server's verdict on a lease attached to a request.
type LeaseUseStatus int32

const (
	LeaseUseUnknown      LeaseUseStatus = 0
	LeaseUseOK           LeaseUseStatus = 1
	LeaseUseInvalidLease LeaseUseStatus = 2
	LeaseUseOlder        LeaseUseStatus = 3
	LeaseUseRevoked      LeaseUseStatus = 4
	LeaseUseUnmanaged    LeaseUseStatus = 5
	LeaseUseWrongEpoch   LeaseUseStatus = 6
)

var leaseUseNames = map[LeaseUseStatus]string{
	LeaseUseUnknown:      "STATUS_UNKNOWN",
	LeaseUseOK:           "STATUS_OK",
	LeaseUseInvalidLease: "STATUS_INVALID_LEASE",
	LeaseUseOlder:        "STATUS_OLDER",
	LeaseUseRevoked:      "STATUS_REVOKED",
	LeaseUseUnmanaged:    "STATUS_UNMANAGED",
	LeaseUseWrongEpoch:   "STATUS_WRONG_EPOCH",
}

// LeaseUseDomain names the code space of LeaseUseStatus.
const LeaseUseDomain = "LeaseUseResult_Status"

func (s LeaseUseStatus) String() string {
	if name, ok := leaseUseNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", int32(s))
}

// Domain implements status.Code.
func (s LeaseUseStatus) Domain() string { return LeaseUseDomain }

// Value implements status.Code.
func (s LeaseUseStatus) Value() int32 { return int32(s) }

// OK implements status.Code.
func (s LeaseUseStatus) OK() bool { return s == LeaseUseOK }

// LeaseUseResult reports how the server treated one lease on one request.
type LeaseUseResult struct {
	Status LeaseUseStatus
	// Owner is the client currently holding the resource, when known.
	Owner string
	// AttemptedLease is the lease the request carried.
	AttemptedLease *Lease
	// LatestKnownLease is the newest lease the server knows for the resource.
	LatestKnownLease *Lease
}

// Resource returns the resource the result refers to.
func (r LeaseUseResult) Resource() string {
	if r.AttemptedLease != nil && r.AttemptedLease.Resource != "" {
		return r.AttemptedLease.Resource
	}
	if r.LatestKnownLease != nil {
		return r.LatestKnownLease.Resource
	}
	return ""
}

// MarshalWire implements wire.Message.
func (r *LeaseUseResult) MarshalWire() ([]byte, error) {
	var b []byte
	b = wire.AppendVarint(b, 1, uint64(r.Status))
	b = wire.AppendString(b, 2, r.Owner)
	b, err := AppendLease(b, 3, r.AttemptedLease)
	if err != nil {
		return nil, err
	}
	return AppendLease(b, 4, r.LatestKnownLease)
}

// UnmarshalWire implements wire.Message.
func (r *LeaseUseResult) UnmarshalWire(data []byte) error {
	*r = LeaseUseResult{}
	return wire.ForEachField(data, func(f wire.Field) error {
		var err error
		switch f.Num {
		case 1:
			r.Status = LeaseUseStatus(int32(f.Varint))
		case 2:
			r.Owner = string(f.Bytes)
		case 3:
			r.AttemptedLease, err = DecodeLease(f)
		case 4:
			r.LatestKnownLease, err = DecodeLease(f)
		}
		return err
	})
}
