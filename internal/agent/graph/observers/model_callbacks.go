package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel/attribute"

	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// newModelHandler builds a typed ModelCallbackHandler that traces model calls
// and logs the exchanged messages at debug level.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = startSpan(ctx, "model", info)
			if input == nil {
				return ctx
			}
			ev := logx.Debug().
				Str("node", runName(info)).
				Int("messages", len(input.Messages)).
				Int("tools", len(input.Tools))
			if um := lastUserContent(input.Messages); um != "" {
				ev = ev.Str("user", truncate(um, 200))
			}
			ev.Msg("Model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			var attrs []attribute.KeyValue
			ev := logx.Debug().Str("node", runName(info))
			if output != nil && output.Message != nil {
				msg := output.Message
				ev = ev.Int("tool_calls", len(msg.ToolCalls))
				if content := strings.TrimSpace(msg.Content); content != "" {
					ev = ev.Str("assistant", truncate(content, 300))
				}
				attrs = append(attrs, attribute.Int("eino.tool_calls", len(msg.ToolCalls)))
			}
			if output != nil && output.TokenUsage != nil {
				ev = ev.Int("total_tokens", output.TokenUsage.TotalTokens)
				attrs = append(attrs,
					attribute.Int("llm.prompt_tokens", output.TokenUsage.PromptTokens),
					attribute.Int("llm.completion_tokens", output.TokenUsage.CompletionTokens),
				)
			}
			ev.Msg("Model call finished")
			endSpan(ctx, attrs...)
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("node", runName(info)).Msg("Model call failed")
			failSpan(ctx, err)
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
