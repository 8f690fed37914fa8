package lease

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/internal/clock"
	"pkt.systems/robotrpc/internal/svcfields"
	"pkt.systems/robotrpc/status"
)

// ErrInvalidLease is returned when a lease lacks a resource or a sequence.
var ErrInvalidLease = errors.New("lease: invalid lease")

// Entry is the wallet's record for one resource.
type Entry struct {
	Lease api.Lease
	// Generation is stamped from a wallet-wide counter each time the entry
	// is written, so a caller can tell whether the entry changed between
	// two reads.
	Generation uint64
	UpdatedAt  time.Time
}

// Wallet is the authoritative record of the leases held by one client. It is
// safe for concurrent use; every read and read-modify-write runs under a
// single mutex.
type Wallet struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	released   map[string]struct{}
	generation uint64
	closed     bool

	clientName string
	clock      clock.Clock
	logger     pslog.Base
	metrics    *walletMetrics
}

// WalletOption customises a Wallet.
type WalletOption func(*walletConfig)

type walletConfig struct {
	clientName    string
	clock         clock.Clock
	logger        pslog.Base
	meterProvider metric.MeterProvider
}

// WithClientName sets the name the wallet reports as its owner.
func WithClientName(name string) WalletOption {
	return func(c *walletConfig) {
		c.clientName = strings.TrimSpace(name)
	}
}

// WithWalletLogger supplies a logger for wallet diagnostics.
func WithWalletLogger(logger pslog.Base) WalletOption {
	return func(c *walletConfig) {
		c.logger = logger
	}
}

// WithClock overrides the clock used to stamp entries.
func WithClock(clk clock.Clock) WalletOption {
	return func(c *walletConfig) {
		c.clock = clk
	}
}

// WithWalletMeterProvider overrides the global meter provider.
func WithWalletMeterProvider(mp metric.MeterProvider) WalletOption {
	return func(c *walletConfig) {
		c.meterProvider = mp
	}
}

// DefaultClientName returns a unique client name with the given prefix.
func DefaultClientName(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "robotrpc"
	}
	return prefix + "-" + xid.New().String()
}

// NewWallet constructs an empty wallet.
func NewWallet(opts ...WalletOption) *Wallet {
	cfg := walletConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clientName == "" {
		cfg.clientName = DefaultClientName("")
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	w := &Wallet{
		entries:    make(map[string]*Entry),
		released:   make(map[string]struct{}),
		clientName: cfg.clientName,
		clock:      clock.Or(cfg.clock),
		logger:     svcfields.Ensure(cfg.logger, svcfields.LeaseWallet),
	}
	w.metrics = newWalletMetrics(cfg.meterProvider, w, w.logger)
	return w
}

// ClientName returns the name this wallet acts under.
func (w *Wallet) ClientName() string {
	return w.clientName
}

// Get returns a copy of the lease held for resource, or a
// status.LeaseUnavailable error when none is cached. It never contacts the
// server.
func (w *Wallet) Get(resource string) (api.Lease, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[resource]
	if !ok {
		return api.Lease{}, unavailable([]string{resource})
	}
	return e.Lease.Clone(), nil
}

// GetAll returns the leases for the de-duplicated, sorted set of resources
// under a single critical section. If any resource has no lease the error
// names every missing one and no leases are returned.
func (w *Wallet) GetAll(resources []string) ([]api.Lease, error) {
	names := normalizeResources(resources)
	if len(names) == 0 {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var missing []string
	out := make([]api.Lease, 0, len(names))
	for _, name := range names {
		e, ok := w.entries[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		out = append(out, e.Lease.Clone())
	}
	if len(missing) > 0 {
		return nil, unavailable(missing)
	}
	return out, nil
}

// Entry returns the full record for resource.
func (w *Wallet) Entry(resource string) (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[resource]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Lease = e.Lease.Clone()
	return out, true
}

// Add installs a lease obtained by an acquire or take call, replacing any
// previous lease for the resource unconditionally.
func (w *Wallet) Add(l api.Lease) error {
	if !l.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidLease, l)
	}
	w.mu.Lock()
	w.storeLocked(l)
	w.mu.Unlock()
	w.logger.Debug("lease.wallet.add", "resource", l.Resource, "sequence", l.Sequence)
	return nil
}

// Advance accepts a lease observed in a response. The stored lease is
// replaced unless l is strictly older than it, in which case a
// status.LeaseStale error is returned and the entry is left untouched.
func (w *Wallet) Advance(l api.Lease) error {
	if !l.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidLease, l)
	}
	w.mu.Lock()
	current, ok := w.entries[l.Resource]
	if ok && l.Compare(current.Lease) == api.Older {
		held := current.Lease.Clone()
		w.mu.Unlock()
		w.metrics.recordAdvance(l.Resource, false)
		w.logger.Warn("lease.wallet.stale",
			"resource", l.Resource,
			"observed", l.Sequence,
			"held", held.Sequence,
		)
		return &status.Error{
			Class:    status.LeaseStale,
			Resource: l.Resource,
			Detail:   fmt.Sprintf("observed %v older than held %v", l.Sequence, held.Sequence),
		}
	}
	w.storeLocked(l)
	w.mu.Unlock()
	w.metrics.recordAdvance(l.Resource, true)
	w.logger.Trace("lease.wallet.advance", "resource", l.Resource, "sequence", l.Sequence)
	return nil
}

// Release forgets the lease for resource. Releasing an unknown resource is a
// no-op. A released resource is reported by Released until a lease for it is
// stored again.
func (w *Wallet) Release(resource string) {
	w.mu.Lock()
	_, ok := w.entries[resource]
	delete(w.entries, resource)
	if ok {
		w.released[resource] = struct{}{}
	}
	w.mu.Unlock()
	if ok {
		w.logger.Debug("lease.wallet.release", "resource", resource)
	}
}

// Released returns the sorted names of resources released from this wallet
// and not stored since.
func (w *Wallet) Released() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.released))
	for name := range w.released {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Close detaches the wallet from its meter provider. The wallet stays usable
// but is no longer observed. Close is idempotent.
func (w *Wallet) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	return w.metrics.unregister()
}

// Resources returns the sorted names of all resources with a cached lease.
func (w *Wallet) Resources() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.entries))
	for name := range w.entries {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Snapshot returns copies of every entry sorted by resource.
func (w *Wallet) Snapshot() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Entry, 0, len(w.entries))
	for _, e := range w.entries {
		cp := *e
		cp.Lease = e.Lease.Clone()
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Lease.Resource, b.Lease.Resource)
	})
	return out
}

// Len returns the number of cached leases.
func (w *Wallet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Wallet) storeLocked(l api.Lease) {
	delete(w.released, l.Resource)
	w.generation++
	w.entries[l.Resource] = &Entry{
		Lease:      l.Clone(),
		Generation: w.generation,
		UpdatedAt:  w.clock.Now(),
	}
}

func unavailable(missing []string) error {
	return &status.Error{
		Class:    status.LeaseUnavailable,
		Resource: missing[0],
		Detail:   "no lease held for " + strings.Join(missing, ", "),
	}
}

func normalizeResources(resources []string) []string {
	if len(resources) == 0 {
		return nil
	}
	out := make([]string, 0, len(resources))
	for _, r := range resources {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
