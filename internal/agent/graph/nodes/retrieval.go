package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/prompts"
	"github.com/smartsearch/corporate-agent/internal/agent/graph/tools"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// DiscoveryCallID is the tool_call_id of the discovery call made before the
// first model turn.
const DiscoveryCallID = "call_discovery"

// Discovery is the schema-discovery call run ahead of the retriever model.
type Discovery struct {
	Tool *tools.OperationTool
	Name string
	Args map[string]any
}

// NewQueryConverterPreHandler creates the pre-handler for the QueryConverter node
func NewQueryConverterPreHandler() func(context.Context, model.QueryInput, *model.RetrievalState) (model.QueryInput, error) {
	return func(ctx context.Context, in model.QueryInput, s *model.RetrievalState) (model.QueryInput, error) {
		s.SessionID = in.SessionID
		s.History = nil
		s.ToolCallCount = 0
		s.ToolCallLimitReached = false
		s.ToolCallIDSeq = 0
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewQueryConverterNode builds the retriever's opening messages. When the
// toolset has a discovery operation it is invoked here and its result is
// placed in the conversation as an answered tool call, so the model always
// starts from the current schema.
func NewQueryConverterNode(promptCfg model.PromptConfig, discovery *Discovery, recorder *tools.Recorder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) ([]*schema.Message, error) {
		vars := prompts.RetrieverVars{History: in.History, Now: time.Now()}
		if discovery != nil {
			vars.DiscoveryTool = discovery.Name
		}
		systemPrompt, err := prompts.RenderRetrieverSystem(ctx, promptCfg, vars)
		if err != nil {
			return nil, fmt.Errorf("render retriever system prompt: %w", err)
		}

		messages := []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(in.Question),
		}
		if discovery == nil {
			return messages, nil
		}

		args, err := json.Marshal(discovery.Args)
		if err != nil {
			return nil, fmt.Errorf("marshal discovery arguments: %w", err)
		}
		call, out := discovery.Tool.Run(ctx, string(args))
		recorder.Record(call)
		if !call.Succeeded() {
			logx.Warn().
				Str("session_id", in.SessionID).
				Str("operation", discovery.Name).
				Str("error", call.Error).
				Msg("Schema discovery failed")
		}

		messages = append(messages,
			schema.AssistantMessage("", []schema.ToolCall{{
				ID:   DiscoveryCallID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      discovery.Name,
					Arguments: string(args),
				},
			}}),
			schema.ToolMessage(out, DiscoveryCallID, schema.WithToolName(discovery.Name)),
		)
		return messages, nil
	})
}

// NewRetrieverChatModelPreHandler creates the pre-handler for the RetrieverChatModel node
func NewRetrieverChatModelPreHandler(maxToolCalls int) func(context.Context, []*schema.Message, *model.RetrievalState) ([]*schema.Message, error) {
	return func(ctx context.Context, in []*schema.Message, state *model.RetrievalState) ([]*schema.Message, error) {
		// Tool results must carry the id of the call they answer
		for _, msg := range in {
			if msg == nil || msg.Role != schema.Tool || strings.TrimSpace(msg.ToolCallID) != "" {
				continue
			}
			if id := lastToolCallID(state.History, msg.ToolName); id != "" {
				msg.ToolCallID = id
			}
		}

		state.History = append(state.History, in...)

		checkAndMarkToolLimit(state, maxToolCalls)
		if state.ToolCallLimitReached {
			wrapUp := &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum number of operation calls (%d). "+
						"Do not call any more operations. Reply with a one-line note of the data already fetched, "+
						`or with {"status":"irrelevant"} if nothing relevant was found.`,
					normalizeMaxToolCalls(maxToolCalls),
				),
			}
			state.History = append(state.History, wrapUp)
		}

		logx.Debug().Str("session_id", state.SessionID).Msg("Retriever thinking...")
		return state.History, nil
	}
}

func lastToolCallID(history []*schema.Message, toolName string) string {
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil || msg.Role != schema.Assistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if toolName == "" || tc.Function.Name == toolName {
				return tc.ID
			}
		}
		return msg.ToolCalls[0].ID
	}
	return ""
}

// NewRetrieverChatModelPostHandler creates the post-handler for RetrieverChatModel node
func NewRetrieverChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.RetrievalState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.RetrievalState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("retriever model returned no message")
		}
		recordUsage(state.SessionID, NodeRetrieverChatModel, modelName, out, &state.TotalCostUSD)

		// Some providers omit tool call ids
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("call_%d", state.ToolCallIDSeq)
			}
		}

		state.History = append(state.History, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Str("session_id", state.SessionID).Int("tool_count", len(out.ToolCalls)).Msg("Calling operations")
		} else {
			logx.Debug().Str("session_id", state.SessionID).Msg("Retriever finished")
		}
		return out, nil
	}
}

// NewToolExecutorCondition routes the model's turn to the ToolExecutor or,
// when it called nothing or the call limit is reached, to the QueryCollector.
func NewToolExecutorCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, input *schema.Message) (string, error) {
		var limitReached bool
		_ = compose.ProcessState(ctx, func(_ context.Context, state *model.RetrievalState) error {
			limitReached = state.ToolCallLimitReached
			return nil
		})

		if limitReached {
			logx.Debug().Msg("Tool limit reached - routing to collector")
			return NodeQueryCollector, nil
		}
		if input != nil && len(input.ToolCalls) > 0 {
			logx.Debug().Int("tool_count", len(input.ToolCalls)).Msg("Routing to ToolExecutor")
			return NodeToolExecutor, nil
		}
		return NodeQueryCollector, nil
	}
}

// NewToolExecutorPreHandler creates the pre-handler for ToolExecutor node
func NewToolExecutorPreHandler(maxToolCalls int) func(context.Context, *schema.Message, *model.RetrievalState) (*schema.Message, error) {
	return func(ctx context.Context, in *schema.Message, state *model.RetrievalState) (*schema.Message, error) {
		exceeded := incrementToolCallAndCheck(state, len(in.ToolCalls), maxToolCalls)

		logx.Debug().
			Int("tool_call_count", state.ToolCallCount).
			Str("session_id", state.SessionID).
			Msg("Tool execution attempt")

		if exceeded {
			logx.Warn().
				Int("tool_call_count", state.ToolCallCount).
				Int("max_tool_calls", normalizeMaxToolCalls(maxToolCalls)).
				Str("session_id", state.SessionID).
				Msg("Tool call limit exceeded - flagging and continuing")
		}
		return in, nil
	}
}

// NewToolsNodeConfig configures the ToolExecutor over the session's operations.
func NewToolsNodeConfig(ops []toolbox.Operation, ts []tool.BaseTool, recorder *tools.Recorder) *compose.ToolsNodeConfig {
	byName := make(map[string]toolbox.Operation, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}
	return &compose.ToolsNodeConfig{
		Tools:               ts,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			recorder.Record(model.OperationCall{
				Name:      name,
				Arguments: rawArguments(input),
				Error:     "operation is not available",
			})
			return tools.UnknownToolResult(name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			op, ok := byName[name]
			if !ok {
				return arguments, nil
			}
			return tools.NormalizeArguments(op, arguments), nil
		},
	}
}

func rawArguments(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

// NewQueryCollectorNode turns the recorded operation outcomes and the model's
// final turn into the stage result.
func NewQueryCollectorNode(recorder *tools.Recorder) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, final *schema.Message) (model.QueryResult, error) {
		return CollectResult(final, recorder.Calls()), nil
	})
}
