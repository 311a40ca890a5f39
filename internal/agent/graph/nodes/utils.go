package nodes

import (
	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/metrics"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

const DefaultMaxToolCalls = 8

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// checkAndMarkToolLimit evaluates whether another tool call would exceed the
// limit and, if so, marks the state accordingly. Returns true when marked now.
func checkAndMarkToolLimit(state *model.RetrievalState, max int) bool {
	max = normalizeMaxToolCalls(max)
	if !state.ToolCallLimitReached && state.ToolCallCount >= max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// incrementToolCallAndCheck adds the calls of one model turn to the count and
// marks the state if it exceeds the limit. Returns true when exceeded.
func incrementToolCallAndCheck(state *model.RetrievalState, calls, max int) bool {
	max = normalizeMaxToolCalls(max)
	state.ToolCallCount += calls
	if state.ToolCallCount > max {
		state.ToolCallLimitReached = true
		return true
	}
	return false
}

// MaxRunSteps bounds a retrieval graph run: converter, collector and one
// model/tools round trip per allowed call, plus the final model turn.
func MaxRunSteps(maxToolCalls int) int {
	steps := 10 + normalizeMaxToolCalls(maxToolCalls)*2
	if steps < 20 {
		steps = 20
	}
	return steps
}

// recordUsage attaches the usage cost to out, logs it and adds it to total.
func recordUsage(sessionID, node, modelName string, out *schema.Message, total *float64) {
	usage := model.UsageOf(modelName, out)
	if usage == nil {
		return
	}
	*total += usage.TotalCost
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = usage
	out.Extra["usage_cost_total_usd"] = *total

	metrics.ObserveLLMCost(modelName, usage.TotalCost)
	logx.Debug().
		Str("session_id", sessionID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", usage.InputCost).
		Float64("output_cost_usd", usage.OutputCost).
		Float64("total_cost_usd", usage.TotalCost).
		Msg("LLM usage")
}
