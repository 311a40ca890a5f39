package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
)

//go:embed template/retriever_prompt.txt
var retrieverSystemPrompt string

// RetrieverVars are the dynamic parts of the retriever system prompt.
type RetrieverVars struct {
	DiscoveryTool string
	History       []string
	Now           time.Time
}

// RenderRetrieverSystem renders the retriever system prompt via the Eino
// prompt component, which also emits prompt callbacks.
func RenderRetrieverSystem(ctx context.Context, config model.PromptConfig, v RetrieverVars) (string, error) {
	now := v.Now
	if now.IsZero() {
		now = time.Now()
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(retrieverSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"CompanyName":   config.CompanyName,
		"Today":         now.Format("2006-01-02 (Monday)"),
		"DiscoveryTool": v.DiscoveryTool,
		"History":       v.History,
	})
	if err != nil {
		return "", fmt.Errorf("retriever prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("retriever prompt render: empty result")
	}
	return msgs[0].Content, nil
}
