package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memoryLogExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memoryLogExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memoryLogExporter) Shutdown(context.Context) error   { return nil }
func (e *memoryLogExporter) ForceFlush(context.Context) error { return nil }

func (e *memoryLogExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func newMemoryLoggerProvider(t *testing.T) (*LoggerProvider, *memoryLogExporter) {
	t.Helper()
	exp := &memoryLogExporter{}
	lp := &LoggerProvider{
		provider: sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp))),
		logger:   zap.NewNop(),
	}
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })
	return lp, exp
}

func TestNewLoggerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	lp, err := NewLoggerProvider(ctx, LogsConfig{Enabled: false, CollectorEndpoint: "localhost:4317"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.ForceFlush(ctx))
	assert.NoError(t, lp.Shutdown(ctx))

	core := NewZapCore(lp, "test-service", zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))

	base := zap.NewNop()
	assert.Same(t, base, Bridge(base, lp, "test-service"))
}

func TestNewZapCore_FiltersBelowLevel(t *testing.T) {
	lp, exp := newMemoryLoggerProvider(t)
	log := zap.New(NewZapCore(lp, "test-service", zapcore.WarnLevel))

	log.Info("sync started")
	log.Warn("slow snapshot", zap.String("file", "cxc.xml"))
	log.Error("sync log not saved")

	assert.Equal(t, []string{"slow snapshot", "sync log not saved"}, exp.bodies())
}

func TestBridge_KeepsLocalOutput(t *testing.T) {
	lp, exp := newMemoryLoggerProvider(t)
	local, observed := observer.New(zapcore.InfoLevel)

	log := Bridge(zap.New(local), lp, "test-service")
	log.Debug("dropped everywhere")
	log.Info("feed file reconciled", zap.Int("created", 3))

	require.Equal(t, 1, observed.Len())
	assert.Equal(t, "feed file reconciled", observed.All()[0].Message)
	assert.Equal(t, []string{"feed file reconciled"}, exp.bodies())
}
