// Package tracing wires OpenTelemetry for REST calls and draft saves.
// When tracing is disabled the global no-op provider is left in place.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope for every rxflow span
const ScopeName = "github.com/robertguss/rxflow-go"

// Common attribute keys
const (
	PrescriptionIDKey = "rxflow.prescription.id"
	SessionIDKey      = "rxflow.session.id"
	TriggerKey        = "rxflow.save.trigger"
	HTTPMethodKey     = "http.request.method"
	HTTPPathKey       = "url.path"
	HTTPStatusKey     = "http.response.status_code"
)

// Setup installs a tracer provider that writes spans as JSON to w and
// returns its shutdown function.
func Setup(serviceName string, w io.Writer) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the rxflow tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(ScopeName)
}

// SetError marks span as failed
func SetError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End records err (if any) on span and ends it
func End(span trace.Span, err error) {
	if err != nil {
		SetError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
