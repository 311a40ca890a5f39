package nodes

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/tools"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
)

func TestToolLimitHelpers(t *testing.T) {
	assert.Equal(t, DefaultMaxToolCalls, normalizeMaxToolCalls(0))
	assert.Equal(t, 3, normalizeMaxToolCalls(3))

	s := &model.RetrievalState{}
	assert.False(t, incrementToolCallAndCheck(s, 2, 3))
	assert.False(t, checkAndMarkToolLimit(s, 3))
	assert.False(t, incrementToolCallAndCheck(s, 1, 3))
	assert.True(t, checkAndMarkToolLimit(s, 3))
	assert.True(t, s.ToolCallLimitReached)
	assert.False(t, checkAndMarkToolLimit(s, 3), "marked only once")

	s = &model.RetrievalState{}
	assert.True(t, incrementToolCallAndCheck(s, 4, 3))
	assert.True(t, s.ToolCallLimitReached)

	assert.Equal(t, 26, MaxRunSteps(8))
	assert.Equal(t, 20, MaxRunSteps(1))
}

func TestCollectResult(t *testing.T) {
	discovery := model.OperationCall{Name: "list-tables", Result: json.RawMessage(`[{"table_name":"orders"}]`), Discovery: true}
	revenue := model.OperationCall{Name: "monthly-revenue", Result: json.RawMessage(`[{"month":"Jan","revenue":29230.95}]`)}
	top := model.OperationCall{Name: "top-customers", Result: json.RawMessage(`{"customer":"Cyberdyne Systems","revenue":847329}`)}
	failed := model.OperationCall{Name: "monthly-revenue", Error: "operation failed: invalid date"}

	note := schema.AssistantMessage("Fetched monthly revenue.", nil)

	t.Run("marker wins", func(t *testing.T) {
		res := CollectResult(schema.AssistantMessage(`{"status":"irrelevant"}`, nil), []model.OperationCall{discovery})
		assert.True(t, res.IsIrrelevant())
	})
	t.Run("single call passes through", func(t *testing.T) {
		res := CollectResult(note, []model.OperationCall{discovery, revenue})
		require.True(t, res.IsData())
		assert.JSONEq(t, string(revenue.Result), string(res.Payload()))
	})
	t.Run("several calls keyed by name", func(t *testing.T) {
		res := CollectResult(note, []model.OperationCall{discovery, revenue, top, revenue})
		require.True(t, res.IsData())
		assert.JSONEq(t, `{
			"monthly-revenue": [{"month":"Jan","revenue":29230.95}],
			"top-customers": {"customer":"Cyberdyne Systems","revenue":847329},
			"monthly-revenue#2": [{"month":"Jan","revenue":29230.95}]
		}`, string(res.Payload()))
	})
	t.Run("partial failure keeps data", func(t *testing.T) {
		res := CollectResult(note, []model.OperationCall{failed, top})
		assert.True(t, res.IsData())
	})
	t.Run("only failures", func(t *testing.T) {
		res := CollectResult(note, []model.OperationCall{discovery, failed})
		require.True(t, res.IsError())
		assert.Equal(t, "monthly-revenue: operation failed: invalid date", res.Reason())
	})
	t.Run("discovery only", func(t *testing.T) {
		assert.True(t, CollectResult(note, []model.OperationCall{discovery}).IsIrrelevant())
		assert.True(t, CollectResult(nil, nil).IsIrrelevant())
	})
	t.Run("model-called discovery is data", func(t *testing.T) {
		called := discovery
		called.Discovery = false
		assert.True(t, CollectResult(note, []model.OperationCall{called}).IsData())
	})
	t.Run("empty rows stay data", func(t *testing.T) {
		res := CollectResult(note, []model.OperationCall{{Name: "monthly-revenue", Result: json.RawMessage(`[]`)}})
		require.True(t, res.IsData())
		assert.Equal(t, "[]", string(res.Payload()))
	})
}

func TestIsIrrelevanceMarker(t *testing.T) {
	for content, want := range map[string]bool{
		`{"status":"irrelevant"}`:                 true,
		"```json\n{\"status\": \"irrelevant\"}\n```": true,
		"irrelevant":                              true,
		`{"status":"ok"}`:                         false,
		"Fetched revenue for Q1.":                 false,
		"":                                        false,
	} {
		assert.Equal(t, want, IsIrrelevanceMarker(content), content)
	}
}

func TestRetrieverChatModelHandlers(t *testing.T) {
	ctx := context.Background()
	state := &model.RetrievalState{SessionID: "s-1"}
	pre := NewRetrieverChatModelPreHandler(2)
	post := NewRetrieverChatModelPostHandler("gemini-2.5-pro")

	msgs, err := pre(ctx, []*schema.Message{schema.SystemMessage("sys"), schema.UserMessage("q")}, state)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	out := schema.AssistantMessage("", []schema.ToolCall{
		{Function: schema.FunctionCall{Name: "monthly-revenue", Arguments: `{}`}},
		{ID: "given", Function: schema.FunctionCall{Name: "top-customers", Arguments: `{}`}},
	})
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1_000_000, CompletionTokens: 100_000, TotalTokens: 1_100_000}}
	out, err = post(ctx, out, state)
	require.NoError(t, err)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "given", out.ToolCalls[1].ID)
	assert.InDelta(t, 2.25, state.TotalCostUSD, 1e-9)
	assert.NotNil(t, out.Extra["usage_cost"])

	// tool result without id gets the id of the call it answers
	toolMsg := &schema.Message{Role: schema.Tool, Content: "[]", ToolName: "top-customers"}
	_, err = NewToolExecutorPreHandler(2)(ctx, out, state)
	require.NoError(t, err)
	msgs, err = pre(ctx, []*schema.Message{toolMsg}, state)
	require.NoError(t, err)
	assert.Equal(t, "given", toolMsg.ToolCallID)

	// two calls reach the limit of two: the model is told to wrap up
	assert.True(t, state.ToolCallLimitReached)
	last := msgs[len(msgs)-1]
	assert.Equal(t, schema.System, last.Role)
	assert.Contains(t, last.Content, "maximum number of operation calls (2)")
}

func TestToolsNodeConfig(t *testing.T) {
	ops := []toolbox.Operation{{
		Name:       "monthly-revenue",
		Parameters: []toolbox.Parameter{{Name: "start_date", Type: "string"}},
	}}
	rec := tools.NewRecorder()
	cfg := NewToolsNodeConfig(ops, nil, rec)
	ctx := context.Background()

	args, err := cfg.ToolArgumentsHandler(ctx, "monthly-revenue", `{"start_date":"2024/01/31","bogus":1}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_date":"2024-01-31"}`, args)

	args, err = cfg.ToolArgumentsHandler(ctx, "other", `{"x":1}`)
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, args)

	out, err := cfg.UnknownToolsHandler(ctx, "drop_tables", `{"all":true}`)
	require.NoError(t, err)
	assert.Contains(t, out, "unknown_tool")
	calls := rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "drop_tables", calls[0].Name)
	assert.False(t, calls[0].Succeeded())
	assert.JSONEq(t, `{"all":true}`, string(calls[0].Arguments))
}
