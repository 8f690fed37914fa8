package lease

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"

	"pkt.systems/robotrpc/api"
)

type walletMetrics struct {
	advanceCount  metric.Int64Counter
	rejectedCount metric.Int64Counter
	heldGauge     metric.Int64ObservableGauge
	registration  metric.Registration
	logger        pslog.Base
}

func newWalletMetrics(mp metric.MeterProvider, w *Wallet, logger pslog.Base) *walletMetrics {
	meter := mp.Meter("pkt.systems/robotrpc/lease")
	m := &walletMetrics{logger: logger}
	var err error

	m.advanceCount, err = meter.Int64Counter(
		"robotrpc.lease.advance",
		metric.WithDescription("Lease advances observed in responses"),
	)
	logMetricInitError(logger, "robotrpc.lease.advance", err)

	m.rejectedCount, err = meter.Int64Counter(
		"robotrpc.lease.rejected",
		metric.WithDescription("Lease use results the server did not accept"),
	)
	logMetricInitError(logger, "robotrpc.lease.rejected", err)

	m.heldGauge, err = meter.Int64ObservableGauge(
		"robotrpc.lease.held",
		metric.WithDescription("Leases cached in the wallet"),
	)
	logMetricInitError(logger, "robotrpc.lease.held", err)

	if m.heldGauge != nil {
		reg, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(m.heldGauge, int64(w.Len()),
				metric.WithAttributes(attribute.String("robotrpc.client", w.ClientName())))
			return nil
		}, m.heldGauge)
		if err != nil {
			logger.Warn("telemetry.metric.callback_failed", "name", "robotrpc.lease.held", "error", err)
		}
		m.registration = reg
	}
	return m
}

// unregister detaches the held gauge callback from the meter provider.
func (m *walletMetrics) unregister() error {
	if m == nil || m.registration == nil {
		return nil
	}
	reg := m.registration
	m.registration = nil
	return reg.Unregister()
}

func (m *walletMetrics) recordAdvance(resource string, accepted bool) {
	if m == nil || m.advanceCount == nil {
		return
	}
	result := "ok"
	if !accepted {
		result = "stale"
	}
	m.advanceCount.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("robotrpc.lease.resource", resource),
		attribute.String("robotrpc.lease.result", result),
	))
}

func (m *walletMetrics) recordRejected(resource string, st api.LeaseUseStatus) {
	if m == nil || m.rejectedCount == nil {
		return
	}
	m.rejectedCount.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("robotrpc.lease.resource", resource),
		attribute.String("robotrpc.lease.status", st.String()),
	))
}

func logMetricInitError(logger pslog.Base, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
