package api

import (
	"bytes"
	"slices"
	"testing"

	"pkt.systems/robotrpc/wire"
)

func TestLeaseCompare(t *testing.T) {
	t.Parallel()

	mk := func(resource string, seq ...uint64) Lease {
		return Lease{Resource: resource, Sequence: seq}
	}
	cases := []struct {
		a, b Lease
		want Comparison
	}{
		{mk("arm", 4, 1), mk("arm", 4, 1), Same},
		{mk("arm", 5), mk("arm", 4, 9), Newer},
		{mk("arm", 4, 1), mk("arm", 4, 2), Older},
		{mk("arm", 3, 9), mk("arm", 4), Older},
		{mk("arm", 4), mk("arm", 4, 1), Super},
		{mk("arm", 4, 1), mk("arm", 4), Sub},
		{mk("arm", 4), mk("leg", 4), DifferentResources},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Fatalf("%s vs %s: expected %s, got %s", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestLeaseValidityAndClone(t *testing.T) {
	t.Parallel()

	if (Lease{Resource: "arm"}).IsValid() {
		t.Fatal("lease without sequence must be invalid")
	}
	if (Lease{Sequence: []uint64{1}}).IsValid() {
		t.Fatal("lease without resource must be invalid")
	}
	l := Lease{Resource: "arm", Sequence: []uint64{4, 1}, ClientNames: []string{"a"}, Opaque: []byte{1}}
	c := l.Clone()
	c.Sequence[0] = 99
	c.ClientNames[0] = "b"
	c.Opaque[0] = 9
	if l.Sequence[0] != 4 || l.ClientNames[0] != "a" || l.Opaque[0] != 1 {
		t.Fatalf("clone shares storage with original: %+v", l)
	}
	if l.Epoch() != 4 || (Lease{}).Epoch() != 0 {
		t.Fatal("unexpected epoch")
	}
	if l.String() != "arm[4 1]" {
		t.Fatalf("unexpected string %q", l.String())
	}
}

func TestLeaseWireRoundTrip(t *testing.T) {
	t.Parallel()

	in := &Lease{
		Resource:    "body",
		Sequence:    []uint64{12, 0, 300},
		ClientNames: []string{"ops-console", "", "robotrpc-x"},
		Opaque:      []byte("server-state"),
	}
	raw, err := wire.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Lease
	if err := wire.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Compare(*in) != Same || !slices.Equal(out.ClientNames, in.ClientNames) || !bytes.Equal(out.Opaque, in.Opaque) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestLeaseUseResultWireRoundTrip(t *testing.T) {
	t.Parallel()

	in := &LeaseUseResult{
		Status:           LeaseUseOlder,
		Owner:            "ops-console",
		AttemptedLease:   &Lease{Resource: "arm", Sequence: []uint64{3}},
		LatestKnownLease: &Lease{Resource: "arm", Sequence: []uint64{4}},
	}
	raw, err := wire.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out LeaseUseResult
	if err := wire.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Status != LeaseUseOlder || out.Owner != "ops-console" {
		t.Fatalf("unexpected result %+v", out)
	}
	if out.AttemptedLease == nil || out.AttemptedLease.Epoch() != 3 {
		t.Fatalf("unexpected attempted lease %v", out.AttemptedLease)
	}
	if out.LatestKnownLease == nil || out.LatestKnownLease.Epoch() != 4 {
		t.Fatalf("unexpected latest lease %v", out.LatestKnownLease)
	}
	if out.Resource() != "arm" {
		t.Fatalf("unexpected resource %q", out.Resource())
	}

	var empty LeaseUseResult
	raw, _ = wire.Marshal(&LeaseUseResult{})
	if err := wire.Unmarshal(raw, &empty); err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if empty.AttemptedLease != nil || empty.LatestKnownLease != nil || empty.Resource() != "" {
		t.Fatalf("expected empty result, got %+v", empty)
	}
}

func TestLeaseUseStatusCode(t *testing.T) {
	t.Parallel()

	if !LeaseUseOK.OK() || LeaseUseRevoked.OK() {
		t.Fatal("unexpected OK evaluation")
	}
	if LeaseUseWrongEpoch.String() != "STATUS_WRONG_EPOCH" || LeaseUseStatus(42).String() != "STATUS_42" {
		t.Fatal("unexpected status names")
	}
	if LeaseUseOlder.Domain() != LeaseUseDomain || LeaseUseOlder.Value() != 3 {
		t.Fatal("unexpected code identity")
	}
}

func TestDataChunkWireRoundTrip(t *testing.T) {
	t.Parallel()

	in := &DataChunk{TotalSize: 1 << 33, Data: []byte("payload"), Checksum: 0xdeadbeefcafef00d}
	raw, err := wire.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out DataChunk
	if err := wire.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.TotalSize != in.TotalSize || !bytes.Equal(out.Data, in.Data) || out.Checksum != in.Checksum {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestAppendLeases(t *testing.T) {
	t.Parallel()

	leases := []Lease{
		{Resource: "arm", Sequence: []uint64{1}},
		{Resource: "leg", Sequence: []uint64{2, 1}},
	}
	b, err := AppendLeases(nil, 5, leases)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	var got []Lease
	err = wire.ForEachField(b, func(f wire.Field) error {
		l, err := DecodeLease(f)
		if err != nil {
			return err
		}
		got = append(got, *l)
		return nil
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[1].Compare(leases[1]) != Same {
		t.Fatalf("unexpected leases %v", got)
	}
}
