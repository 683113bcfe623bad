package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           false,
		CollectorEndpoint: "localhost:4317",
		ServiceName:       "test-service",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewIngestMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewIngestMetrics(nil)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
}

func TestIngestMetrics_NoopMeter(t *testing.T) {
	m, err := telemetry.NewIngestMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	// Should not panic
	m.RecordRun(context.Background(), telemetry.RunObservation{Source: "LEDGER", Status: "SUCCESS", Created: 3})
}

func TestIngestMetrics_NilReceiver(t *testing.T) {
	var m *telemetry.IngestMetrics
	m.RecordRun(context.Background(), telemetry.RunObservation{Source: "AGENT", Status: "FAILED"})
}

func TestIngestMetrics_RecordRun(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	m, err := telemetry.NewIngestMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	m.RecordRun(ctx, telemetry.RunObservation{
		Source:        "SNAPSHOT",
		Status:        "PARTIAL",
		Duration:      1500 * time.Millisecond,
		Created:       4,
		Updated:       2,
		Errors:        1,
		Superseded:    3,
		WatchdogFired: true,
		LinksByTier:   map[string]int{"EXACT_NUMBER": 2, "HEURISTIC": 1},
	})
	m.RecordRun(ctx, telemetry.RunObservation{Source: "SNAPSHOT", Status: "SUCCESS", Created: 1})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	got := collectSums(rm)

	assert.Equal(t, int64(2), got["notaria_billing_runs_total"])
	assert.Equal(t, int64(5+2+1), got["notaria_billing_records_total"])
	assert.Equal(t, int64(3), got["notaria_billing_documents_linked_total"])
	assert.Equal(t, int64(3), got["notaria_billing_superseded_total"])
	assert.Equal(t, int64(1), got["notaria_billing_watchdog_fired_total"])

	hist := findHistogram(t, rm, "notaria_billing_run_duration_seconds")
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func collectSums(rm metricdata.ResourceMetrics) map[string]int64 {
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func findHistogram(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Histogram[float64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				h, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				return h
			}
		}
	}
	t.Fatalf("histogram %s not collected", name)
	return metricdata.Histogram[float64]{}
}
