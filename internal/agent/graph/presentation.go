package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/nodes"
	"github.com/smartsearch/corporate-agent/internal/agent/graph/observers"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	"github.com/smartsearch/corporate-agent/internal/metrics"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// Repair actions recorded by the presenter itself.
const (
	RepairRetried  = "retried"
	RepairFallback = "fallback"
)

const maxFeedbackLen = 500

// PresenterConfig holds everything the presentation stage needs.
type PresenterConfig struct {
	Model       einomodel.BaseChatModel
	ModelName   string
	Prompt      model.PromptConfig
	MaxAttempts int
	Timeout     time.Duration
}

// Presenter is the presentation stage. Its graph does not depend on the
// request and is compiled once.
type Presenter struct {
	cfg      PresenterConfig
	runnable compose.Runnable[model.PresentationInput, *model.FinalPresentation]
}

// NewPresenter compiles PresentationAssembler -> PresenterChatModel -> PresentationParser.
func NewPresenter(ctx context.Context, cfg PresenterConfig) (*Presenter, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("presenter model is nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	g := compose.NewGraph[model.PresentationInput, *model.FinalPresentation](
		compose.WithGenLocalState(func(ctx context.Context) *model.PresentationState {
			return &model.PresentationState{}
		}),
	)

	if err := g.AddLambdaNode(nodes.NodePresentationAssembler,
		nodes.NewPresentationAssemblerNode(cfg.Prompt),
		compose.WithStatePreHandler(nodes.NewPresentationAssemblerPreHandler()),
	); err != nil {
		return nil, err
	}
	if err := g.AddChatModelNode(nodes.NodePresenterChatModel, cfg.Model,
		compose.WithStatePostHandler(nodes.NewPresenterChatModelPostHandler(cfg.ModelName)),
	); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode(nodes.NodePresentationParser, nodes.NewPresentationParserNode()); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{compose.START, nodes.NodePresentationAssembler},
		{nodes.NodePresentationAssembler, nodes.NodePresenterChatModel},
		{nodes.NodePresenterChatModel, nodes.NodePresentationParser},
		{nodes.NodePresentationParser, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}

	runnable, err := g.Compile(ctx, compose.WithGraphName("presentation"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling presentation graph")
		return nil, fmt.Errorf("error compiling presentation graph: %w", err)
	}
	logx.Debug().Msg("Presentation graph compiled successfully")
	return &Presenter{cfg: cfg, runnable: runnable}, nil
}

// Present renders the retrieval result. Output that fails validation is
// retried with the rejection fed back to the model; once attempts are
// exhausted a generic unable_to_answer is returned instead of an error.
// Failures of the model service other than timeouts are returned.
func (p *Presenter) Present(ctx context.Context, h model.StageHandoff) (*model.FinalPresentation, error) {
	var (
		feedback string
		lastErr  error
	)
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		out, err := p.attempt(ctx, model.PresentationInput{
			SessionID: h.SessionID,
			Question:  h.Question,
			Result:    h.Result,
			Attempt:   attempt,
			Feedback:  feedback,
		})
		if err == nil {
			metrics.ObservePresentation(string(out.ResponseType))
			logx.Info().
				Str("session_id", h.SessionID).
				Str("response_type", string(out.ResponseType)).
				Int("attempt", attempt).
				Msg("Presentation ready")
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		feedback = ""
		if errors.Is(err, errx.ErrStageOutputInvalid) {
			feedback = truncateFeedback(err.Error())
		}
		if attempt < p.cfg.MaxAttempts {
			metrics.ObservePresentationRepair(RepairRetried)
			logx.Warn().
				Err(err).
				Str("session_id", h.SessionID).
				Int("attempt", attempt).
				Msg("Presentation attempt failed; retrying")
		}
	}

	if !errors.Is(lastErr, errx.ErrStageOutputInvalid) && !errors.Is(lastErr, context.DeadlineExceeded) {
		logx.Error().Err(lastErr).Str("session_id", h.SessionID).Msg("Presentation stage failed")
		return nil, errx.WrapModel(lastErr)
	}

	metrics.ObservePresentationRepair(RepairFallback)
	metrics.ObservePresentation(string(model.ResponseUnableToAnswer))
	logx.Warn().
		Err(lastErr).
		Str("session_id", h.SessionID).
		Int("attempts", p.cfg.MaxAttempts).
		Msg("No valid presentation produced; returning fallback")
	return model.UnableToAnswer(model.FallbackSummary), nil
}

func (p *Presenter) attempt(ctx context.Context, in model.PresentationInput) (*model.FinalPresentation, error) {
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}
	out, err := p.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("%w: empty presentation", errx.ErrStageOutputInvalid)
	}
	return out, nil
}

func truncateFeedback(s string) string {
	if len(s) <= maxFeedbackLen {
		return s
	}
	return s[:maxFeedbackLen] + "..."
}
