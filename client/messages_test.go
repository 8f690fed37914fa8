package client_test

import (
	"fmt"
	"slices"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/wire"
)

type echoStatus int32

const (
	echoUnknown echoStatus = 0
	echoOK      echoStatus = 1
	echoRefused echoStatus = 2
)

func (s echoStatus) Domain() string { return "EchoResponse_Status" }
func (s echoStatus) Value() int32   { return int32(s) }
func (s echoStatus) OK() bool       { return s == echoOK }
func (s echoStatus) String() string { return fmt.Sprintf("ECHO_%d", int32(s)) }

type echoRequest struct {
	Leases []api.Lease
	Body   []byte
}

func (r *echoRequest) GetLeases() []api.Lease   { return r.Leases }
func (r *echoRequest) SetLeases(ls []api.Lease) { r.Leases = ls }

func (r *echoRequest) MarshalWire() ([]byte, error) {
	b, err := api.AppendLeases(nil, 1, r.Leases)
	if err != nil {
		return nil, err
	}
	return wire.AppendBytes(b, 2, r.Body), nil
}

func (r *echoRequest) UnmarshalWire(data []byte) error {
	*r = echoRequest{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			l, err := api.DecodeLease(f)
			if err != nil {
				return err
			}
			r.Leases = append(r.Leases, *l)
		case 2:
			r.Body = slices.Clone(f.Bytes)
		}
		return nil
	})
}

type echoResponse struct {
	Results []api.LeaseUseResult
	Status  echoStatus
	Body    []byte
}

func (r *echoResponse) GetLeaseUseResults() []api.LeaseUseResult { return r.Results }

func (r *echoResponse) MarshalWire() ([]byte, error) {
	b, err := api.AppendLeaseUseResults(nil, 1, r.Results)
	if err != nil {
		return nil, err
	}
	b = wire.AppendVarint(b, 2, uint64(r.Status))
	return wire.AppendBytes(b, 3, r.Body), nil
}

func (r *echoResponse) UnmarshalWire(data []byte) error {
	*r = echoResponse{}
	return wire.ForEachField(data, func(f wire.Field) error {
		switch f.Num {
		case 1:
			res, err := api.DecodeLeaseUseResult(f)
			if err != nil {
				return err
			}
			r.Results = append(r.Results, *res)
		case 2:
			r.Status = echoStatus(int32(f.Varint))
		case 3:
			r.Body = slices.Clone(f.Bytes)
		}
		return nil
	})
}
