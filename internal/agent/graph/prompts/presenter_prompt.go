package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/chart"
)

var (
	//go:embed template/presenter_prompt.txt
	presenterSystemPrompt string

	//go:embed template/presenter_user_prompt.txt
	presenterUserPrompt string
)

// maxResultBytes bounds the retrieved result shown to the presenter.
const maxResultBytes = 60_000

// RenderPresenterMessages renders the system and user messages of one
// presentation attempt.
func RenderPresenterMessages(ctx context.Context, config model.PromptConfig, in model.PresentationInput) ([]*schema.Message, error) {
	result, err := json.Marshal(in.Result)
	if err != nil {
		return nil, fmt.Errorf("presenter prompt: marshal result: %w", err)
	}
	if len(result) > maxResultBytes {
		result = append(result[:maxResultBytes:maxResultBytes], []byte("... (truncated)")...)
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(presenterSystemPrompt),
		schema.UserMessage(presenterUserPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"CompanyName": config.CompanyName,
		"SchemaURL":   chart.SchemaURL,
		"Question":    in.Question,
		"Result":      string(result),
		"Feedback":    in.Feedback,
	})
	if err != nil {
		return nil, fmt.Errorf("presenter prompt render: %w", err)
	}
	if len(msgs) != 2 {
		return nil, fmt.Errorf("presenter prompt render: expected 2 messages, got %d", len(msgs))
	}
	return msgs, nil
}
