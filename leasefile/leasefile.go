// Package leasefile persists lease wallet contents as YAML so leases acquired
// by another process, or an earlier CLI invocation, can be handed to a
// client. Watch keeps a wallet in step with a file that changes underneath
// it.
package leasefile

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/lease"
	"pkt.systems/robotrpc/status"
)

// Version is the document version written by Save.
const Version = 1

// ErrUnsupportedVersion is returned for documents written by a newer release.
var ErrUnsupportedVersion = errors.New("leasefile: unsupported version")

// File is the on-disk document.
type File struct {
	Version   int       `yaml:"version"`
	Client    string    `yaml:"client,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
	Leases    []Record  `yaml:"leases"`
}

// Record is one persisted lease. Opaque is base64 encoded.
type Record struct {
	Resource    string   `yaml:"resource"`
	Sequence    []uint64 `yaml:"sequence,flow"`
	ClientNames []string `yaml:"client_names,omitempty"`
	Opaque      string   `yaml:"opaque,omitempty"`
}

// FromLease converts l to its persisted form.
func FromLease(l api.Lease) Record {
	r := Record{
		Resource:    l.Resource,
		Sequence:    append([]uint64(nil), l.Sequence...),
		ClientNames: append([]string(nil), l.ClientNames...),
	}
	if len(l.Opaque) > 0 {
		r.Opaque = base64.StdEncoding.EncodeToString(l.Opaque)
	}
	return r
}

// Lease converts r back to a lease.
func (r Record) Lease() (api.Lease, error) {
	l := api.Lease{
		Resource:    r.Resource,
		Sequence:    append([]uint64(nil), r.Sequence...),
		ClientNames: append([]string(nil), r.ClientNames...),
	}
	if r.Opaque != "" {
		raw, err := base64.StdEncoding.DecodeString(r.Opaque)
		if err != nil {
			return api.Lease{}, fmt.Errorf("leasefile: %s: decode opaque: %w", r.Resource, err)
		}
		l.Opaque = raw
	}
	if !l.IsValid() {
		return api.Lease{}, fmt.Errorf("%w: %s", lease.ErrInvalidLease, l)
	}
	return l, nil
}

// Snapshot captures the leases currently held by w.
func Snapshot(w *lease.Wallet) *File {
	entries := w.Snapshot()
	f := &File{Version: Version, Client: w.ClientName(), Leases: make([]Record, 0, len(entries))}
	for _, e := range entries {
		f.Leases = append(f.Leases, FromLease(e.Lease))
		if e.UpdatedAt.After(f.UpdatedAt) {
			f.UpdatedAt = e.UpdatedAt
		}
	}
	return f
}

// Load reads and parses the document at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leasefile: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("leasefile: parse %s: %w", path, err)
	}
	if f.Version > Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, f.Version)
	}
	return &f, nil
}

// Save writes the contents of w to path, replacing it atomically. The file
// is created with mode 0600.
func Save(path string, w *lease.Wallet) error {
	data, err := yaml.Marshal(Snapshot(w))
	if err != nil {
		return fmt.Errorf("leasefile: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("leasefile: prepare %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("leasefile: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("leasefile: write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("leasefile: chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("leasefile: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("leasefile: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("leasefile: replace %s: %w", path, err)
	}
	return nil
}

// ApplyResult counts what Apply did.
type ApplyResult struct {
	Applied int
	// Stale counts records older than the lease already held.
	Stale int
}

// Apply folds the records of f into w. Records never regress the wallet: a
// record older than the held lease is counted as stale and skipped.
func Apply(f *File, w *lease.Wallet) (ApplyResult, error) {
	var res ApplyResult
	for _, rec := range f.Leases {
		l, err := rec.Lease()
		if err != nil {
			return res, err
		}
		if err := w.Advance(l); err != nil {
			if errors.Is(err, status.LeaseStale) {
				res.Stale++
				continue
			}
			return res, err
		}
		res.Applied++
	}
	return res, nil
}

// Merge folds the file at path into w and then saves w back to path, so a
// record written by another process since w was loaded is not overwritten
// by an older lease. Only records strictly newer than the lease w holds are
// taken; records for resources w has released are dropped. A missing file is
// treated as empty.
func Merge(path string, w *lease.Wallet) (ApplyResult, error) {
	var res ApplyResult
	f, err := Load(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return res, err
	default:
		released := w.Released()
		for _, rec := range f.Leases {
			if _, found := slices.BinarySearch(released, rec.Resource); found {
				continue
			}
			l, err := rec.Lease()
			if err != nil {
				return res, err
			}
			if held, ok := w.Entry(l.Resource); ok {
				switch l.Compare(held.Lease) {
				case api.Newer:
				case api.Older:
					res.Stale++
					continue
				default:
					continue
				}
			}
			if err := w.Advance(l); err != nil {
				if errors.Is(err, status.LeaseStale) {
					res.Stale++
					continue
				}
				return res, err
			}
			res.Applied++
		}
	}
	return res, Save(path, w)
}

// Import loads path and applies it to w.
func Import(path string, w *lease.Wallet) (ApplyResult, error) {
	f, err := Load(path)
	if err != nil {
		return ApplyResult{}, err
	}
	return Apply(f, w)
}
