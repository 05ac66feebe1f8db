// Package telemetry wires OpenTelemetry tracing into CLIP's three
// suspension points (spec.md §4.K / §5): the upstream tool call, the
// summarizer's HTTP call, and the masker's LLM-fallback call. The teacher's
// go.mod already lists the full otel stack (otel, otel/sdk, exporters/
// stdout/stdouttrace) without ever importing it — CLIP is where it actually
// gets used, exported to stderr for local inspection (stdout carries the MCP
// stdio stream) since there is no tracing backend in scope for a
// single-binary proxy.
package telemetry

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/clip-mcp/clip"

// Setup builds a TracerProvider that writes spans to stderr, registers it as
// the global provider, and returns a shutdown func to flush and stop it. Call
// once at startup; pass the returned shutdown to a deferred call in cmd/clip.
func Setup(serviceVersion string) (shutdown func(context.Context) error, err error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", "clip"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartSpan opens a span named name under CLIP's tracer. Callers must defer
// the returned span's End.
func StartSpan(ctx context.Context, name string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, attrs...)
}
