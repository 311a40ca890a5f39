package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/smartsearch/corporate-agent/internal/agent/graph"

// startSpan opens a span for one component run. The returned context is
// handed back to the matching OnEnd/OnError callback.
func startSpan(ctx context.Context, kind string, info *einocb.RunInfo) context.Context {
	name := kind
	if info != nil && info.Name != "" {
		name = kind + " " + info.Name
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if info != nil {
		span.SetAttributes(
			attribute.String("eino.component", string(info.Component)),
			attribute.String("eino.type", info.Type),
			attribute.String("eino.name", info.Name),
		)
	}
	return ctx
}

func endSpan(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
	span.End()
}

func failSpan(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

func runName(info *einocb.RunInfo) string {
	if info == nil {
		return ""
	}
	return info.Name
}
