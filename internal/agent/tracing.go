package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this package's spans in an OTel backend: one span
// per turn, one child span per tool call.
const tracerName = "github.com/captainphantasy/floyd-core/internal/agent"

func tracer() trace.Tracer { return otel.Tracer(tracerName) }

// startTurnSpan opens a span covering one full turn (stream phase plus
// sequential tool execution).
func startTurnSpan(ctx context.Context, sessionID string, turn int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "engine.turn", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("turn.index", turn),
	))
}

// startToolSpan opens a child span for one sequential tool call within a
// turn.
func startToolSpan(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "engine.tool_call", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", toolCallID),
	))
}

func endSpanErr(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
