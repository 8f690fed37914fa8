package client

import (
	"context"
	"errors"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/chunk"
	"pkt.systems/robotrpc/internal/correlation"
	"pkt.systems/robotrpc/lease"
	"pkt.systems/robotrpc/status"
	"pkt.systems/robotrpc/wire"
)

// Call kinds, as reported in logs, spans and metrics.
const (
	KindUnary          = "unary"
	KindRequestStream  = "request_stream"
	KindResponseStream = "response_stream"
	KindBidiStream     = "bidi_stream"
)

// Call describes one RPC.
type Call struct {
	// Method is the full gRPC method name, e.g.
	// "/robotrpc.mission.MissionService/LoadMission".
	Method string
	// Resources lists the leased resources the request must carry.
	Resources []string
	// Timeout overrides the client's call timeout when positive.
	Timeout time.Duration
}

var (
	requestStreamDesc  = grpc.StreamDesc{StreamName: "RequestStream", ClientStreams: true}
	responseStreamDesc = grpc.StreamDesc{StreamName: "ResponseStream", ServerStreams: true}
	bidiStreamDesc     = grpc.StreamDesc{StreamName: "BidiStream", ClientStreams: true, ServerStreams: true}
)

// exchange moves one request and its response over the transport, decoding
// the response into resp.
type exchange func(ctx context.Context, resp any) error

// Unary issues a single-message request and waits for a single-message
// response. *T must be a wire.Message or a proto.Message. code extracts the
// service's own result code from the response; a nil code treats every
// delivered response as successful.
func Unary[T any](ctx context.Context, c *Client, call Call, req any, code func(*T) status.Code) *Future[*T] {
	return dispatch(ctx, c, KindUnary, call, req, code, func(ctx context.Context, resp any) error {
		return c.conn.Invoke(ctx, call.Method, req, resp, c.callOptions()...)
	})
}

// RequestStream sends req as a stream of chunks and waits for a single
// response message.
func RequestStream[T any](ctx context.Context, c *Client, call Call, req any, code func(*T) status.Code) *Future[*T] {
	return dispatch(ctx, c, KindRequestStream, call, req, code, func(ctx context.Context, resp any) error {
		chunks, err := c.encode(req)
		if err != nil {
			return err
		}
		cs, err := c.conn.NewStream(ctx, &requestStreamDesc, call.Method, c.callOptions()...)
		if err != nil {
			return err
		}
		if err := c.sendChunks(ctx, cs, chunks); err != nil {
			return err
		}
		return cs.RecvMsg(resp)
	})
}

// ResponseStream sends req as a single message and reassembles the response
// from a stream of chunks.
func ResponseStream[T any](ctx context.Context, c *Client, call Call, req any, code func(*T) status.Code) *Future[*T] {
	return dispatch(ctx, c, KindResponseStream, call, req, code, func(ctx context.Context, resp any) error {
		cs, err := c.conn.NewStream(ctx, &responseStreamDesc, call.Method, c.callOptions()...)
		if err != nil {
			return err
		}
		if err := cs.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if err := cs.CloseSend(); err != nil {
			return err
		}
		stream := chunk.NewStream(chunk.WithMaxMessageBytes(c.maxMsg))
		if err := c.receiveChunks(ctx, cs, stream); err != nil {
			return err
		}
		return stream.Reassembler().Unmarshal(resp)
	})
}

// BidiStream sends req as a stream of chunks while concurrently receiving the
// response as a stream of chunks, then decodes the reassembled response.
func BidiStream[T any](ctx context.Context, c *Client, call Call, req any, code func(*T) status.Code) *Future[*T] {
	return dispatch(ctx, c, KindBidiStream, call, req, code, func(ctx context.Context, resp any) error {
		chunks, err := c.encode(req)
		if err != nil {
			return err
		}
		g, gctx := errgroup.WithContext(ctx)
		cs, err := c.conn.NewStream(gctx, &bidiStreamDesc, call.Method, c.callOptions()...)
		if err != nil {
			return err
		}
		stream := chunk.NewStream(chunk.WithMaxMessageBytes(c.maxMsg))
		g.Go(func() error {
			return c.sendChunks(gctx, cs, chunks)
		})
		g.Go(func() error {
			return c.receiveChunks(gctx, cs, stream)
		})
		if err := g.Wait(); err != nil {
			return err
		}
		return stream.Reassembler().Unmarshal(resp)
	})
}

func dispatch[T any](ctx context.Context, c *Client, kind string, call Call, req any, code func(*T) status.Code, run exchange) *Future[*T] {
	f := newFuture[*T]()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, _ = correlation.Ensure(ctx)
	if err := lease.InjectAny(req, c.wallet, call.Resources); err != nil {
		err = injectFailure(err)
		c.metrics.recordCall(ctx, call.Method, kind, status.ClassOf(err), 0)
		c.logDebugCtx(ctx, "client.call.inject_failed", "method", call.Method, "resources", call.Resources, "error", err)
		f.resolve(nil, err)
		return f
	}
	go func() {
		f.resolve(execute(ctx, c, kind, call, code, run))
	}()
	return f
}

func execute[T any](ctx context.Context, c *Client, kind string, call Call, code func(*T) status.Code, run exchange) (*T, error) {
	ctx, cancel := c.callContext(ctx, call)
	defer cancel()
	ctx, _ = correlation.Outgoing(ctx)
	ctx, span, finish := c.start(ctx, kind, call)
	defer span.End()

	resp := new(T)
	transportErr := run(ctx, resp)
	var leaseErr error
	var rc status.Code
	if transportErr == nil {
		leaseErr = lease.ReconcileAll(c.wallet, lease.Results(resp))
		if code != nil {
			rc = code(resp)
		}
	}
	err := status.Final(transportErr, leaseErr, rc)
	finish(err)
	switch status.ClassOf(err) {
	case status.OK, status.DomainStatusFailure:
		return resp, err
	default:
		return nil, err
	}
}

func injectFailure(err error) error {
	if errors.Is(err, lease.ErrNoLeaseField) || errors.Is(err, lease.ErrSingleLeaseRequest) {
		return status.Wrap(status.LeaseUnavailable, err, "request cannot carry the required leases")
	}
	return err
}

func (c *Client) callContext(ctx context.Context, call Call) (context.Context, context.CancelFunc) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) callOptions() []grpc.CallOption {
	opts := make([]grpc.CallOption, 0, len(c.callOpts)+1)
	opts = append(opts, grpc.CallContentSubtype(wire.Name))
	return append(opts, c.callOpts...)
}

func (c *Client) encode(req any) ([]chunk.Chunk, error) {
	var opts []chunk.EncodeOption
	if c.checksum {
		opts = append(opts, chunk.WithChecksum())
	}
	chunks, err := chunk.Encode(req, c.chunkSize, opts...)
	if err != nil {
		return nil, status.Wrap(status.ChunkMalformed, err, "encode request")
	}
	return chunks, nil
}

func (c *Client) sendChunks(ctx context.Context, cs grpc.ClientStream, chunks []chunk.Chunk) error {
	for _, ch := range chunks {
		if err := cs.SendMsg(ch.Wire()); err != nil {
			// io.EOF means the server ended the stream; its status is
			// reported by RecvMsg.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		c.metrics.recordChunk(ctx, "sent", len(ch.Data))
	}
	c.logTraceCtx(ctx, "client.chunks.sent", "count", len(chunks))
	return cs.CloseSend()
}

func (c *Client) receiveChunks(ctx context.Context, cs grpc.ClientStream, stream *chunk.Stream) error {
	for {
		dc := new(api.DataChunk)
		if err := cs.RecvMsg(dc); err != nil {
			if errors.Is(err, io.EOF) {
				return stream.Reassembler().Close()
			}
			return err
		}
		c.metrics.recordChunk(ctx, "received", len(dc.Data))
		if _, err := stream.Push(dc); err != nil {
			c.logDebugCtx(ctx, "client.chunks.rejected", "received", stream.Reassembler().Received(), "error", err)
			return err
		}
	}
}

func (c *Client) start(ctx context.Context, kind string, call Call) (context.Context, trace.Span, func(error)) {
	begin := time.Now()
	ctx, span := c.tracer.Start(ctx, "robotrpc.client."+kind, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.method", call.Method),
		attribute.StringSlice("robotrpc.lease.resources", call.Resources),
	)
	if cid := correlation.ID(ctx); cid != "" {
		span.SetAttributes(attribute.String("robotrpc.correlation_id", cid))
	}
	c.metrics.addInflight(ctx, 1)
	c.logTraceCtx(ctx, "client.call.start", "method", call.Method, "kind", kind, "resources", call.Resources)

	return ctx, span, func(err error) {
		elapsed := time.Since(begin)
		class := status.ClassOf(err)
		c.metrics.addInflight(ctx, -1)
		c.metrics.recordCall(ctx, call.Method, kind, class, elapsed)
		span.SetAttributes(attribute.String("robotrpc.status.class", class.String()))
		if err == nil {
			span.SetStatus(codes.Ok, "")
			c.logDebugCtx(ctx, "client.call.success", "method", call.Method, "kind", kind, "elapsed", elapsed)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, class.String())
		if class.IsLease() || class.IsChunk() {
			c.logWarnCtx(ctx, "client.call.failed", "method", call.Method, "kind", kind, "class", class.String(), "elapsed", elapsed, "error", err)
			return
		}
		c.logDebugCtx(ctx, "client.call.failed", "method", call.Method, "kind", kind, "class", class.String(), "elapsed", elapsed, "error", err)
	}
}
