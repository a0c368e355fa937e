package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/meshworks/radio-orchestrator/orchestrator"

// startPhaseSpan opens a span for one manager lifecycle phase.
func startPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "Manager/"+phase)
}

// endPhaseSpan records the phase outcome and closes the span.
func endPhaseSpan(span trace.Span, status Status, err error) {
	span.SetAttributes(attribute.String("phase.status", status.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
