package graph

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/smallnest/stategraph/graph"

// TracingListener emits one OpenTelemetry span per node execution.
type TracingListener struct {
	tracer trace.Tracer
	spans  sync.Map // *RunInfo -> trace.Span
}

// NewTracingListener creates a listener using tracer. A nil tracer uses the
// global tracer provider.
func NewTracingListener(tracer trace.Tracer) *TracingListener {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &TracingListener{tracer: tracer}
}

var _ NodeContextListener = (*TracingListener)(nil)

// StartNode opens the node span and returns ctx carrying it, so spans the node
// starts become its children.
func (t *TracingListener) StartNode(ctx context.Context, nodeName string, _ State) context.Context {
	info, ok := RunInfoFromContext(ctx)
	if !ok {
		return ctx
	}

	ctx, span := t.tracer.Start(ctx, "node "+nodeName,
		trace.WithTimestamp(info.Started),
		trace.WithAttributes(
			attribute.String("stategraph.thread_id", info.ThreadID),
			attribute.String("stategraph.node", nodeName),
			attribute.Int("stategraph.step", info.Step),
		),
	)
	t.spans.Store(info, span)
	return ctx
}

// OnNodeEvent implements the NodeListener interface
func (t *TracingListener) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state State, err error) {
	if event == NodeEventStart {
		t.StartNode(ctx, nodeName, state)
		return
	}

	info, ok := RunInfoFromContext(ctx)
	if !ok {
		return
	}
	v, ok := t.spans.LoadAndDelete(info)
	if !ok {
		return
	}
	span := v.(trace.Span)

	switch event {
	case NodeEventInterrupt:
		span.SetAttributes(attribute.Bool("stategraph.interrupted", true))
	case NodeEventError:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
