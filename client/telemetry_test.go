package client_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"pkt.systems/robotrpc/api"
	"pkt.systems/robotrpc/client"
	"pkt.systems/robotrpc/internal/correlation"
	"pkt.systems/robotrpc/lease"
)

func TestCallRecordsSpanAndMetrics(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	cli, srv := newEnv(t, client.WithTracerProvider(tp), client.WithMeterProvider(mp))
	seed(t, cli.Wallet(), "arm", 4)
	srv.handle(methodUnary, unaryHandler(api.LeaseUseOlder, 0, echoOK, nil))

	ctx := correlation.With(context.Background(), "cid-telemetry")
	if _, err := client.Unary(ctx, cli, client.Call{Method: methodUnary, Resources: []string{"arm"}}, &echoRequest{}, codeOf).Wait(context.Background()); err == nil {
		t.Fatal("expected stale lease failure")
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "robotrpc.client.unary" {
		t.Fatalf("unexpected span name %q", span.Name())
	}
	if span.Status().Code != otelcodes.Error {
		t.Fatalf("expected error status, got %v", span.Status())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["rpc.method"].AsString() != methodUnary {
		t.Fatalf("unexpected rpc.method %q", attrs["rpc.method"].AsString())
	}
	if attrs["robotrpc.status.class"].AsString() != "lease_stale" {
		t.Fatalf("unexpected class %q", attrs["robotrpc.status.class"].AsString())
	}
	if attrs["robotrpc.correlation_id"].AsString() != "cid-telemetry" {
		t.Fatalf("unexpected correlation id %q", attrs["robotrpc.correlation_id"].AsString())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	calls := findSum(t, rm, "robotrpc.client.calls")
	if len(calls.DataPoints) != 1 || calls.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected call datapoints %+v", calls.DataPoints)
	}
	class, _ := calls.DataPoints[0].Attributes.Value("robotrpc.status.class")
	if class.AsString() != "lease_stale" {
		t.Fatalf("unexpected class attribute %q", class.AsString())
	}
	rejected := findSum(t, rm, "robotrpc.lease.rejected")
	if len(rejected.DataPoints) != 1 || rejected.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected rejected datapoints %+v", rejected.DataPoints)
	}
}

func findSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has type %T", name, m.Data)
			}
			return sum
		}
	}
	t.Fatalf("metric %s not found", name)
	return metricdata.Sum[int64]{}
}

func heldObservations(t *testing.T, reader *sdkmetric.ManualReader) int {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	n := 0
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if g, ok := m.Data.(metricdata.Gauge[int64]); ok && m.Name == "robotrpc.lease.held" {
				n += len(g.DataPoints)
			}
		}
	}
	return n
}

func TestCloseDetachesOwnedWalletOnly(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	owned, _ := newEnv(t, client.WithMeterProvider(mp))
	shared := lease.NewWallet(lease.WithWalletMeterProvider(mp))
	borrowed, _ := newEnv(t, client.WithMeterProvider(mp), client.WithWallet(shared))
	if n := heldObservations(t, reader); n != 2 {
		t.Fatalf("expected 2 observed wallets, got %d", n)
	}
	if err := owned.Close(); err != nil {
		t.Fatalf("close owned: %v", err)
	}
	if err := borrowed.Close(); err != nil {
		t.Fatalf("close borrowed: %v", err)
	}
	if n := heldObservations(t, reader); n != 1 {
		t.Fatalf("expected the shared wallet to stay observed, got %d", n)
	}
	if err := shared.Close(); err != nil {
		t.Fatalf("close shared: %v", err)
	}
	if n := heldObservations(t, reader); n != 0 {
		t.Fatalf("expected no observed wallets, got %d", n)
	}
}
