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

// Metrics exposes billing instruments.
type Metrics struct {
	ledgerPostings      metric.Int64Counter
	insufficientCredits metric.Int64Counter
	usageRecords        metric.Int64Counter
	pricingAnomalies    metric.Int64Counter
	pricingFallbacks    metric.Int64Counter
	txRetries           metric.Int64Counter
	rateLimitAllowed    metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
	accountsReconciled  metric.Int64Counter
	reconcileDrift      metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "creditledger"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ledgerPostings, "creditledger_ledger_postings_total", "Ledger transactions appended, by kind."},
		{&m.insufficientCredits, "creditledger_insufficient_credits_total", "Debits refused by the overdraft policy."},
		{&m.usageRecords, "creditledger_usage_records_total", "Usage records written, by status."},
		{&m.pricingAnomalies, "pricing_anomalies_total", "Resolutions that found more than one active rule."},
		{&m.pricingFallbacks, "creditledger_pricing_fallbacks_total", "Usage priced by the fallback policy."},
		{&m.txRetries, "creditledger_tx_retries_total", "Ledger transactions retried after a conflict."},
		{&m.rateLimitAllowed, "creditledger_rate_limit_allowed_total", "Requests admitted by the rate limiter."},
		{&m.rateLimitDenied, "creditledger_rate_limit_denied_total", "Requests rejected by the rate limiter."},
		{&m.accountsReconciled, "creditledger_accounts_reconciled_total", "Accounts checked by the reconciliation sweep."},
		{&m.reconcileDrift, "creditledger_reconcile_drift_total", "Accounts whose balance differs from their transaction sum."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	return m, nil
}

// RecordLedgerPosting counts one appended ledger transaction.
func (m *Metrics) RecordLedgerPosting(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.ledgerPostings.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))...))
}

func (m *Metrics) RecordInsufficientCredits(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.insufficientCredits.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", strings.TrimSpace(kind)))...))
}

func (m *Metrics) RecordUsage(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.usageRecords.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPricingAnomaly counts a key that had several active rules at once.
func (m *Metrics) RecordPricingAnomaly(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.pricingAnomalies.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))...))
}

func (m *Metrics) RecordPricingFallback(ctx context.Context, policy string) {
	if m == nil {
		return
	}
	m.pricingFallbacks.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("reason", strings.TrimSpace(policy)))...))
}

func (m *Metrics) RecordTxRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.txRetries.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))...))
}

// RecordReconciliation counts one checked account and whether it drifted.
func (m *Metrics) RecordReconciliation(ctx context.Context, consistent bool) {
	if m == nil {
		return
	}
	m.accountsReconciled.Add(ctx, 1)
	if !consistent {
		m.reconcileDrift.Add(ctx, 1)
	}
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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

// user_id is deliberately absent: one series per user is unbounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"kind":      {},
	"status":    {},
	"provider":  {},
	"endpoint":  {},
	"reason":    {},
	"operation": {},
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
