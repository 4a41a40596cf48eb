package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates the root span for one CLI command.
//
//	ctx, span := telemetry.StartCommandSpan(ctx, "users list")
//	defer span.End()
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	ctx, span := TracerProvider().Tracer("github.com/felixgeelhaar/hradmin/internal/cmd").Start(ctx, "command "+cmdName)
	span.SetAttributes(attribute.String("hradmin.command", cmdName))
	return ctx, span
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
