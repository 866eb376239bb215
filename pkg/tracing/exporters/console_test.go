package exporters

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestConsoleExporter(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	exporter := &ConsoleExporter{Logger: logger}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	_, span := provider.Tracer("test").Start(context.Background(), "resolve")
	span.End()

	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestConsoleExporter_NilLogger(t *testing.T) {
	exporter := &ConsoleExporter{}
	assert.NoError(t, exporter.ExportSpans(context.Background(), nil))
}

func TestNewOTLPExporter_UnknownProtocol(t *testing.T) {
	_, err := NewOTLPExporter(context.Background(), OTLPConfig{Protocol: "udp"})
	assert.Error(t, err)
}
