package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"personad/internal/config"
)

func restoreGlobalProvider(t *testing.T) {
	t.Helper()
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
}

func TestInitDisabled(t *testing.T) {
	restoreGlobalProvider(t)
	p, err := Init(context.Background(), config.Telemetry{}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitEnabled(t *testing.T) {
	restoreGlobalProvider(t)
	cfg := config.Telemetry{Enabled: true, OTLPEndpoint: "localhost:4317", ServiceName: "personad-test", SampleRate: 1}
	// the gRPC exporter connects lazily, so no collector is needed
	p, err := Init(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}

func TestShutdownNil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
}
