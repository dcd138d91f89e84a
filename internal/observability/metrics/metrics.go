package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes ledger-level instruments.
type Metrics struct {
	ledgerEntries   metric.Int64Counter
	payments        metric.Int64Counter
	allocations     metric.Int64Counter
	allocatedAmount metric.Int64Counter
	unappliedAmount metric.Int64Counter
	charges         metric.Int64Counter
	notifications   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "rentledger"
	}
	meter := provider.Meter(name)

	ledgerEntries, err := meter.Int64Counter("rentledger_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	payments, err := meter.Int64Counter("rentledger_payments_total")
	if err != nil {
		return nil, err
	}
	allocations, err := meter.Int64Counter("rentledger_allocations_total")
	if err != nil {
		return nil, err
	}
	allocatedAmount, err := meter.Int64Counter("rentledger_allocated_amount_total")
	if err != nil {
		return nil, err
	}
	unappliedAmount, err := meter.Int64Counter("rentledger_unapplied_amount_total")
	if err != nil {
		return nil, err
	}
	charges, err := meter.Int64Counter("rentledger_charges_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("rentledger_notifications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ledgerEntries:   ledgerEntries,
		payments:        payments,
		allocations:     allocations,
		allocatedAmount: allocatedAmount,
		unappliedAmount: unappliedAmount,
		charges:         charges,
		notifications:   notifications,
	}, nil
}

// NewNop returns instruments backed by the noop provider.
func NewNop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, entryType, direction string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entry_type", strings.TrimSpace(entryType)),
		attribute.String("direction", strings.TrimSpace(direction)),
	)
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayment counts recorded payments by outcome (recorded, duplicate).
func (m *Metrics) RecordPayment(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.payments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAllocation counts allocation runs and the money they moved.
func (m *Metrics) RecordAllocation(ctx context.Context, allocated, unapplied int64) {
	if m == nil {
		return
	}
	m.allocations.Add(ctx, 1)
	if allocated > 0 {
		m.allocatedAmount.Add(ctx, allocated)
	}
	if unapplied > 0 {
		m.unappliedAmount.Add(ctx, unapplied)
	}
}

// RecordCharge counts charge generation outcomes (created, skipped, failed).
func (m *Metrics) RecordCharge(ctx context.Context, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.charges.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordNotification counts notification deliveries by event type and outcome.
func (m *Metrics) RecordNotification(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Tenant and payment ids never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"entry_type": {},
	"direction":  {},
	"source":     {},
	"outcome":    {},
	"event_type": {},
	"strategy":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
