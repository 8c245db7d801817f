package service

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/yola1107/blackjack/internal/conf"
)

const (
	metricRequests = "blackjack_dispatch_total"
	metricLatency  = "blackjack_dispatch_duration_ms"
)

// Metrics counts dispatched client messages. The totals are kept in an
// in-process reader and surfaced by the periodic stats log.
type Metrics struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewMetrics() (*Metrics, func(), error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter(conf.Name)

	requests, err := meter.Int64Counter(metricRequests,
		metric.WithDescription("Client messages dispatched, by type and result."))
	if err != nil {
		return nil, nil, err
	}
	latency, err := meter.Float64Histogram(metricLatency,
		metric.WithDescription("Time spent dispatching one client message."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, nil, err
	}

	m := &Metrics{reader: reader, provider: provider, requests: requests, latency: latency}
	cleanup := func() {
		_ = provider.Shutdown(context.Background())
	}
	return m, cleanup, nil
}

// Provider exposes the meter provider so main can install it globally.
func (m *Metrics) Provider() metric.MeterProvider { return m.provider }

func (m *Metrics) observe(ctx context.Context, typ string, err error, d time.Duration) {
	result := "OK"
	if err != nil {
		result = errors.FromError(err).Reason
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", typ),
		attribute.String("result", result),
	))
	m.latency.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(
		attribute.String("type", typ),
	))
}

// Counts returns the dispatch totals keyed by "TYPE/RESULT".
func (m *Metrics) Counts(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != metricRequests {
				continue
			}
			sum, ok := mt.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				typ, _ := dp.Attributes.Value("type")
				res, _ := dp.Attributes.Value("result")
				out[typ.AsString()+"/"+res.AsString()] += dp.Value
			}
		}
	}
	return out, nil
}
