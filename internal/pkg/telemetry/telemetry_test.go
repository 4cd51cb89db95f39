package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

func TestNewResource(t *testing.T) {
	t.Run("should carry the service name attribute", func(t *testing.T) {
		res, err := newResource("test-service")
		require.NoError(t, err)
		require.NotNil(t, res)

		found := false
		for _, attr := range res.Attributes() {
			if attr.Key == semconv.ServiceNameKey {
				assert.Equal(t, "test-service", attr.Value.AsString())
				found = true
				break
			}
		}
		assert.True(t, found, "service name attribute not found in resource")
	})

	t.Run("should accept an empty service name", func(t *testing.T) {
		res, err := newResource("")
		require.NoError(t, err)
		assert.NotNil(t, res)
	})
}

func TestInit(t *testing.T) {
	// Restore the global providers mutated by Init.
	originalMeterProvider := otel.GetMeterProvider()
	originalTracerProvider := otel.GetTracerProvider()
	defer func() {
		otel.SetMeterProvider(originalMeterProvider)
		otel.SetTracerProvider(originalTracerProvider)
		loggerProvider = nil
	}()

	t.Run("should initialize every provider and shut down cleanly", func(t *testing.T) {
		ctx := context.Background()

		shutdown, err := Init(ctx, "test-service")
		if err != nil {
			// Initialization may fail without an OTLP endpoint configured.
			t.Logf("Init() failed as expected without a collector: %v", err)
			return
		}
		require.NotNil(t, shutdown)
		assert.NotNil(t, LoggerProvider())

		// Shutdown may report export failures without a collector; it must
		// still return.
		_ = shutdown(ctx)
	})
}

func TestLoggerProvider(t *testing.T) {
	t.Run("should be nil before initialization", func(t *testing.T) {
		saved := loggerProvider
		loggerProvider = nil
		defer func() { loggerProvider = saved }()

		assert.Nil(t, LoggerProvider())
	})
}
