package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/attribute"

	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// newToolHandler builds a typed ToolCallbackHandler (not yet wrapped).
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			ctx = startSpan(ctx, "operation", info)
			if input != nil {
				logx.Debug().
					Str("operation", runName(info)).
					Str("arguments", truncate(input.ArgumentsInJSON, 500)).
					Msg("Operation started")
			}
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			size := 0
			if output != nil {
				size = len(output.Response)
			}
			logx.Debug().
				Str("operation", runName(info)).
				Int("bytes", size).
				Msg("Operation finished")
			endSpan(ctx, attribute.Int("operation.response_bytes", size))
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("operation", runName(info)).Msg("Operation execution failed")
			failSpan(ctx, err)
			return ctx
		},
	}
}
