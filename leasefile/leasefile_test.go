package leasefile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/lease"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "leases.yaml")
	src := lease.NewWallet(lease.WithClientName("ops-console"))
	for _, l := range []api.Lease{
		{Resource: "body", Sequence: []uint64{4, 1}, ClientNames: []string{"root", "ops-console"}, Opaque: []byte{0, 1, 2, 255}},
		{Resource: "arm", Sequence: []uint64{9}},
	} {
		if err := src.Add(l); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := Save(path, src); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.Version != Version || f.Client != "ops-console" || len(f.Leases) != 2 {
		t.Fatalf("unexpected document %+v", f)
	}
	if f.Leases[0].Resource != "arm" {
		t.Fatalf("expected records sorted by resource, got %s first", f.Leases[0].Resource)
	}

	dst := lease.NewWallet()
	res, err := Apply(f, dst)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied != 2 || res.Stale != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	body, err := dst.Get("body")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if body.Compare(api.Lease{Resource: "body", Sequence: []uint64{4, 1}}) != api.Same || !bytes.Equal(body.Opaque, []byte{0, 1, 2, 255}) {
		t.Fatalf("unexpected body lease %+v", body)
	}
	if len(body.ClientNames) != 2 {
		t.Fatalf("unexpected client names %v", body.ClientNames)
	}
}

func TestApplyNeverRegresses(t *testing.T) {
	t.Parallel()

	w := lease.NewWallet()
	if err := w.Add(api.Lease{Resource: "arm", Sequence: []uint64{5}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	f := &File{Version: Version, Leases: []Record{
		{Resource: "arm", Sequence: []uint64{4}},
		{Resource: "leg", Sequence: []uint64{1}},
	}}
	res, err := Apply(f, w)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Applied != 1 || res.Stale != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	arm, _ := w.Get("arm")
	if arm.Epoch() != 5 {
		t.Fatalf("wallet regressed to %d", arm.Epoch())
	}
}

func TestMergeKeepsNewerRecordsFromDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "leases.yaml")
	seed := lease.NewWallet(lease.WithClientName("seed"))
	_ = seed.Add(api.Lease{Resource: "body", Sequence: []uint64{4}})
	_ = seed.Add(api.Lease{Resource: "arm", Sequence: []uint64{2, 1}})
	_ = seed.Add(api.Lease{Resource: "gripper", Sequence: []uint64{1}})
	if err := Save(path, seed); err != nil {
		t.Fatalf("save seed: %v", err)
	}

	first := lease.NewWallet(lease.WithClientName("first"))
	second := lease.NewWallet(lease.WithClientName("second"))
	for _, w := range []*lease.Wallet{first, second} {
		if _, err := Import(path, w); err != nil {
			t.Fatalf("import: %v", err)
		}
	}
	// second advances body and saves first.
	if err := second.Advance(api.Lease{Resource: "body", Sequence: []uint64{5}}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, err := Merge(path, second); err != nil {
		t.Fatalf("merge second: %v", err)
	}
	// first still holds body at 4, moved arm to a sub-lease and released
	// gripper.
	if err := first.Advance(api.Lease{Resource: "arm", Sequence: []uint64{2, 1, 3}}); err != nil {
		t.Fatalf("advance arm: %v", err)
	}
	first.Release("gripper")
	res, err := Merge(path, first)
	if err != nil {
		t.Fatalf("merge first: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("expected only body to be merged, got %+v", res)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := make(map[string][]uint64)
	for _, rec := range f.Leases {
		got[rec.Resource] = rec.Sequence
	}
	if seq := got["body"]; len(seq) != 1 || seq[0] != 5 {
		t.Fatalf("body regressed to %v", seq)
	}
	if seq := got["arm"]; len(seq) != 3 || seq[2] != 3 {
		t.Fatalf("arm sub-lease lost: %v", seq)
	}
	if _, ok := got["gripper"]; ok {
		t.Fatalf("released gripper came back: %+v", f.Leases)
	}
}

func TestMergeMissingFileSaves(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "leases.yaml")
	w := lease.NewWallet()
	_ = w.Add(api.Lease{Resource: "body", Sequence: []uint64{1}})
	if _, err := Merge(path, w); err != nil {
		t.Fatalf("merge: %v", err)
	}
	f, err := Load(path)
	if err != nil || len(f.Leases) != 1 {
		t.Fatalf("load = %+v, %v", f, err)
	}
}

func TestLoadRejectsBadDocuments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"future.yaml":  "version: 99\nleases: []\n",
		"garbage.yaml": "version: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "future.yaml")); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}

	bad := &File{Leases: []Record{{Resource: "arm"}}}
	if _, err := Apply(bad, lease.NewWallet()); !errors.Is(err, lease.ErrInvalidLease) {
		t.Fatalf("expected ErrInvalidLease, got %v", err)
	}
	opaque := &File{Leases: []Record{{Resource: "arm", Sequence: []uint64{1}, Opaque: "!!"}}}
	if _, err := Apply(opaque, lease.NewWallet()); err == nil || !strings.Contains(err.Error(), "opaque") {
		t.Fatalf("expected opaque decode error, got %v", err)
	}
}

func TestWatchReloadsOnSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leases.yaml")

	writer := lease.NewWallet()
	if err := writer.Add(api.Lease{Resource: "arm", Sequence: []uint64{1}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := Save(path, writer); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloads := make(chan ApplyResult, 16)
	reader := lease.NewWallet()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := Watch(ctx, path, reader, WithOnReload(func(res ApplyResult, err error) {
		if err == nil {
			reloads <- res
		}
	}))
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	if arm, err := reader.Get("arm"); err != nil || arm.Epoch() != 1 {
		t.Fatalf("expected initial import, got %v %v", arm, err)
	}
	<-reloads

	if err := writer.Advance(api.Lease{Resource: "arm", Sequence: []uint64{2}}); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := Save(path, writer); err != nil {
		t.Fatalf("save: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloads:
			if arm, err := reader.Get("arm"); err == nil && arm.Epoch() == 2 {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}
