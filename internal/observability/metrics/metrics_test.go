package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("user_id", "u-1"),
		attribute.String("kind", "purchase"),
		attribute.String("provider", "openai"),
	)
	require.Len(t, attrs, 2)
	for _, attr := range attrs {
		assert.NotEqual(t, attribute.Key("user_id"), attr.Key)
	}
}

func TestPricingAnomalyCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPricingAnomaly(ctx, "openai")
	m.RecordPricingAnomaly(ctx, "openai")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	total := int64(-1)
	for _, scope := range rm.ScopeMetrics {
		for _, data := range scope.Metrics {
			if data.Name != "pricing_anomalies_total" {
				continue
			}
			sum, ok := data.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			total = 0
			for _, point := range sum.DataPoints {
				total += point.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLedgerPosting(context.Background(), "purchase")
		m.RecordTxRetry(context.Background(), "debit")
	})
}
