package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc/chunk"
	"pkt.systems/robotrpc/internal/correlation"
	"pkt.systems/robotrpc/internal/svcfields"
	"pkt.systems/robotrpc/lease"
)

// DefaultCallTimeout bounds a call that sets no timeout of its own.
const DefaultCallTimeout = 30 * time.Second

// Client dispatches calls over one gRPC connection and keeps the lease wallet
// in step with the feedback carried by every response.
type Client struct {
	conn      grpc.ClientConnInterface
	wallet    *lease.Wallet
	ownWallet bool
	logger    pslog.Base
	tracer    trace.Tracer
	metrics   *clientMetrics
	chunkSize int
	timeout   time.Duration
	checksum  bool
	maxMsg    uint64
	callOpts  []grpc.CallOption
}

// Option customises a Client.
type Option func(*options)

type options struct {
	wallet         *lease.Wallet
	logger         pslog.Base
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	chunkSize      int
	timeout        time.Duration
	checksum       bool
	maxMsg         uint64
	callOpts       []grpc.CallOption
}

// WithWallet shares an existing wallet. By default each Client owns a fresh one.
func WithWallet(w *lease.Wallet) Option {
	return func(o *options) {
		o.wallet = w
	}
}

// WithLogger supplies a logger; nil disables logging.
func WithLogger(logger pslog.Base) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithChunkSize overrides chunk.DefaultChunkSize for chunked requests.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithCallTimeout overrides DefaultCallTimeout. A negative value disables
// the default timeout entirely.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithChunkChecksums stamps outgoing chunks with an xxhash64 of the message.
func WithChunkChecksums(enable bool) Option {
	return func(o *options) {
		o.checksum = enable
	}
}

// WithMaxMessageBytes bounds the size a chunked response may declare.
// Defaults to chunk.MaxMessageBytes.
func WithMaxMessageBytes(n uint64) Option {
	return func(o *options) {
		o.maxMsg = n
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithCallOptions appends gRPC call options to every call.
func WithCallOptions(opts ...grpc.CallOption) Option {
	return func(o *options) {
		o.callOpts = append(o.callOpts, opts...)
	}
}

// New returns a Client dispatching over conn.
func New(conn grpc.ClientConnInterface, opts ...Option) *Client {
	o := options{
		chunkSize: chunk.DefaultChunkSize,
		timeout:   DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	logger := svcfields.Ensure(o.logger, svcfields.ClientSDK)
	ownWallet := o.wallet == nil
	if ownWallet {
		o.wallet = lease.NewWallet(
			lease.WithWalletLogger(o.logger),
			lease.WithWalletMeterProvider(o.meterProvider),
		)
	}
	return &Client{
		conn:      conn,
		wallet:    o.wallet,
		ownWallet: ownWallet,
		logger:    logger,
		tracer:    o.tracerProvider.Tracer("pkt.systems/robotrpc/client"),
		metrics:   newClientMetrics(o.meterProvider, logger),
		chunkSize: o.chunkSize,
		timeout:   o.timeout,
		checksum:  o.checksum,
		maxMsg:    o.maxMsg,
		callOpts:  o.callOpts,
	}
}

// Wallet returns the lease wallet the client injects from and reconciles into.
func (c *Client) Wallet() *lease.Wallet {
	return c.wallet
}

// Close releases the resources the client owns. A wallet created by New is
// closed; a wallet passed with WithWallet belongs to the caller. The
// connection is never closed.
func (c *Client) Close() error {
	if c.ownWallet {
		return c.wallet.Close()
	}
	return nil
}

// ChunkSize returns the maximum payload carried by one outgoing chunk.
func (c *Client) ChunkSize() int {
	return c.chunkSize
}

func hasKey(keyvals []any, target string) bool {
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok && key == target {
			return true
		}
	}
	return false
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	cid := correlation.ID(ctx)
	if cid == "" || hasKey(keyvals, "cid") {
		return keyvals
	}
	enriched := append([]any(nil), keyvals...)
	return append(enriched, "cid", cid)
}

func (c *Client) logTraceCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Trace(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logDebugCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Debug(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logWarnCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Warn(msg, c.enrichKeyvals(ctx, keyvals)...)
}
