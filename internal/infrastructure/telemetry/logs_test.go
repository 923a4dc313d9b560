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

type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{}, zap.NewNop())
	require.NoError(t, err)

	base := zap.NewNop()
	assert.False(t, lp.IsEnabled())
	assert.Same(t, base, lp.Bridge(base))
	assert.NoError(t, lp.ForceFlush(context.Background()))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestLoggerProvider_Bridge(t *testing.T) {
	exporter := &recordingExporter{}
	lp, err := NewLoggerProviderWithProcessor(LogsConfig{
		ServiceName: "meterly-test",
		Level:       zapcore.InfoLevel,
	}, sdklog.NewSimpleProcessor(exporter), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.DebugLevel)
	log := lp.Bridge(zap.New(core)).With(zap.String("principal", "anonymous:1"))

	log.Debug("cache miss")
	log.Info("credits charged", zap.Int64("amount", 1))
	log.Warn("balance low")

	assert.True(t, lp.IsEnabled())
	assert.Equal(t, 3, logs.Len(), "base core still receives every entry")
	assert.Equal(t, []string{"credits charged", "balance low"}, exporter.bodies())
}
