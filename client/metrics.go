package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc/status"
)

type clientMetrics struct {
	callCount    metric.Int64Counter
	callDuration metric.Float64Histogram
	inflight     metric.Int64UpDownCounter
	chunkCount   metric.Int64Counter
	chunkBytes   metric.Int64Counter
}

func newClientMetrics(mp metric.MeterProvider, logger pslog.Base) *clientMetrics {
	meter := mp.Meter("pkt.systems/robotrpc/client")
	m := &clientMetrics{}
	var err error

	m.callCount, err = meter.Int64Counter(
		"robotrpc.client.calls",
		metric.WithDescription("Calls resolved by the dispatch layer"),
	)
	logMetricInitError(logger, "robotrpc.client.calls", err)

	m.callDuration, err = meter.Float64Histogram(
		"robotrpc.client.call.duration",
		metric.WithDescription("Call latency from dispatch to resolution"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "robotrpc.client.call.duration", err)

	m.inflight, err = meter.Int64UpDownCounter(
		"robotrpc.client.calls.inflight",
		metric.WithDescription("Calls currently on the wire"),
	)
	logMetricInitError(logger, "robotrpc.client.calls.inflight", err)

	m.chunkCount, err = meter.Int64Counter(
		"robotrpc.client.chunks",
		metric.WithDescription("Transport chunks sent and received"),
	)
	logMetricInitError(logger, "robotrpc.client.chunks", err)

	m.chunkBytes, err = meter.Int64Counter(
		"robotrpc.client.chunk.bytes",
		metric.WithDescription("Payload bytes carried by transport chunks"),
		metric.WithUnit("By"),
	)
	logMetricInitError(logger, "robotrpc.client.chunk.bytes", err)
	return m
}

func (m *clientMetrics) recordCall(ctx context.Context, method, kind string, class status.Class, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("robotrpc.call.kind", kind),
		attribute.String("robotrpc.status.class", class.String()),
	)
	if m.callCount != nil {
		m.callCount.Add(ctx, 1, attrs)
	}
	if m.callDuration != nil {
		m.callDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
	}
}

func (m *clientMetrics) addInflight(ctx context.Context, delta int64) {
	if m == nil || m.inflight == nil {
		return
	}
	m.inflight.Add(ctx, delta)
}

func (m *clientMetrics) recordChunk(ctx context.Context, direction string, size int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("robotrpc.chunk.direction", direction))
	if m.chunkCount != nil {
		m.chunkCount.Add(ctx, 1, attrs)
	}
	if m.chunkBytes != nil {
		m.chunkBytes.Add(ctx, int64(size), attrs)
	}
}

func logMetricInitError(logger pslog.Base, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
