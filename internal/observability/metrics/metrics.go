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

// Metrics exposes billing instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	numbersAllocated    metric.Int64Counter
	invoicesCreated     metric.Int64Counter
	reconcileOutcomes   metric.Int64Counter
	webhookRejections   metric.Int64Counter
	remoteMirrorResults metric.Int64Counter
	batchResults        metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the billing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "worksuite"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
	}{
		{&m.numbersAllocated, "worksuite_invoice_numbers_allocated_total"},
		{&m.invoicesCreated, "worksuite_invoices_created_total"},
		{&m.reconcileOutcomes, "worksuite_reconciliation_outcomes_total"},
		{&m.webhookRejections, "worksuite_webhook_rejections_total"},
		{&m.remoteMirrorResults, "worksuite_remote_mirror_results_total"},
		{&m.batchResults, "worksuite_batch_results_total"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}
	return m, nil
}

// RecordNumberAllocated counts sequence numbers handed out per billing account.
func (m *Metrics) RecordNumberAllocated(ctx context.Context, account string) {
	if m == nil {
		return
	}
	m.numbersAllocated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("account", strings.TrimSpace(account)),
	)...))
}

// RecordInvoiceCreated counts invoices by the path that produced them.
func (m *Metrics) RecordInvoiceCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
	)...))
}

// RecordReconcileOutcome counts reconciliation results (created, skipped, updated).
func (m *Metrics) RecordReconcileOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconcileOutcomes.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

// RecordWebhookRejection counts webhook deliveries refused before reconciliation.
func (m *Metrics) RecordWebhookRejection(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.webhookRejections.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

// RecordRemoteMirror counts remote invoice mirroring attempts per provider and outcome.
func (m *Metrics) RecordRemoteMirror(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.remoteMirrorResults.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
}

// RecordBatchResult counts per-tenant batch results per sweep.
func (m *Metrics) RecordBatchResult(ctx context.Context, sweep, outcome string) {
	if m == nil {
		return
	}
	m.batchResults.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("sweep", strings.TrimSpace(sweep)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)...))
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

var allowedLabelKeys = map[attribute.Key]struct{}{
	"account":     {},
	"source":      {},
	"outcome":     {},
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"reason":      {},
	"sweep":       {},
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
