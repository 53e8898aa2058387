package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpdagents/mpdchat/internal/workflow"
)

const instrumentation = "github.com/mpdagents/mpdchat/internal/workflow"

// SpanObserver opens one span per node execution. Spans are named
// "workflow.<node>" and carry the thread key, turn id, step and mode.
type SpanObserver struct {
	tracer trace.Tracer
}

var _ workflow.Observer = (*SpanObserver)(nil)

// NewSpanObserver returns an observer tracing with tp.
func NewSpanObserver(tp trace.TracerProvider) *SpanObserver {
	return &SpanObserver{tracer: tp.Tracer(instrumentation)}
}

// NodeStart implements workflow.Observer.
func (o *SpanObserver) NodeStart(ctx context.Context, ev workflow.NodeEvent) context.Context {
	ctx, _ = o.tracer.Start(ctx, "workflow."+ev.Node,
		trace.WithTimestamp(ev.Start),
		trace.WithAttributes(
			attribute.String("mpdchat.thread_key", ev.Key),
			attribute.String("mpdchat.turn", ev.Turn),
			attribute.Int("mpdchat.step", ev.Step),
			attribute.String("mpdchat.mode", string(ev.Mode)),
		),
	)
	return ctx
}

// NodeEnd implements workflow.Observer. Cancellation is not an error.
func (o *SpanObserver) NodeEnd(ctx context.Context, _ workflow.NodeEvent, err error) {
	span := trace.SpanFromContext(ctx)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.Canceled):
		span.SetAttributes(attribute.Bool("mpdchat.cancelled", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
