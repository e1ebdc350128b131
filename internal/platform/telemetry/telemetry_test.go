package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"whisper/internal/config"
)

func TestInitTelemetryWithoutExporterIsNoop(t *testing.T) {
	shutdown, err := InitTelemetry(context.Background(), config.Config{
		Service: &config.ServiceConfig{Name: "whisper", Env: "test"},
		Tracer:  &config.TracerConfig{},
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, otel.GetTextMapPropagator())
}
