package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/parsers"
	"github.com/smartsearch/corporate-agent/internal/agent/graph/prompts"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/metrics"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// NewPresentationAssemblerPreHandler creates the pre-handler for the PresentationAssembler node
func NewPresentationAssemblerPreHandler() func(context.Context, model.PresentationInput, *model.PresentationState) (model.PresentationInput, error) {
	return func(ctx context.Context, in model.PresentationInput, s *model.PresentationState) (model.PresentationInput, error) {
		s.SessionID = in.SessionID
		s.Question = in.Question
		s.Result = in.Result
		s.Attempt = in.Attempt
		s.Feedback = in.Feedback
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewPresentationAssemblerNode renders the presenter prompt for one attempt.
func NewPresentationAssemblerNode(promptCfg model.PromptConfig) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.PresentationInput) ([]*schema.Message, error) {
		msgs, err := prompts.RenderPresenterMessages(ctx, promptCfg, in)
		if err != nil {
			return nil, fmt.Errorf("render presenter prompt: %w", err)
		}
		return msgs, nil
	})
}

// NewPresenterChatModelPostHandler computes and logs usage cost for the presenter model.
func NewPresenterChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.PresentationState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.PresentationState) (*schema.Message, error) {
		if out == nil {
			return nil, fmt.Errorf("presenter model returned no message")
		}
		recordUsage(state.SessionID, NodePresenterChatModel, modelName, out, &state.TotalCostUSD)
		return out, nil
	}
}

// NewPresentationParserNode validates the presenter's reply and repairs what
// can be repaired against the retrieval result held in state.
func NewPresentationParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (*model.FinalPresentation, error) {
		var (
			sessionID string
			attempt   int
			result    model.QueryResult
		)
		err := compose.ProcessState(ctx, func(_ context.Context, state *model.PresentationState) error {
			sessionID = state.SessionID
			attempt = state.Attempt
			result = state.Result
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		wire, err := parsers.ParsePresentation(resp.Content)
		if err != nil {
			logx.Warn().
				Err(err).
				Str("session_id", sessionID).
				Int("attempt", attempt).
				Msg("Presenter output rejected")
			return nil, err
		}

		p, repairs, err := parsers.Finalize(wire, result)
		for _, action := range repairs {
			metrics.ObservePresentationRepair(action)
			logx.Warn().
				Str("session_id", sessionID).
				Int("attempt", attempt).
				Str("repair", action).
				Str("declared_type", string(wire.ResponseType)).
				Str("result_kind", result.Kind().String()).
				Msg("Presenter output repaired")
		}
		if err != nil {
			logx.Warn().
				Err(err).
				Str("session_id", sessionID).
				Int("attempt", attempt).
				Msg("Presenter output rejected")
			return nil, err
		}
		return p, nil
	})
}
