package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/nodes"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/metrics"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// Stage names used in metrics and logs.
const (
	StageRetrieval    = "retrieval"
	StagePresentation = "presentation"
)

// RetrievalStage produces the intermediate result for a question.
type RetrievalStage interface {
	Retrieve(ctx context.Context, in model.QueryInput) (*model.StageHandoff, error)
}

// PresentationStage turns the intermediate result into the final answer.
type PresentationStage interface {
	Present(ctx context.Context, h model.StageHandoff) (*model.FinalPresentation, error)
}

// Runner executes the pipeline for one question.
type Runner interface {
	Run(ctx context.Context, in model.QueryInput) (*model.PipelineOutput, error)
}

// Config holds everything needed to compose the full pipeline end-to-end.
type Config struct {
	Models    *nodes.ChatModels
	Registry  OperationRegistry
	Prompt    model.PromptConfig
	Retriever model.RetrieverModelConfig
	Presenter model.PresenterModelConfig
}

// Pipeline runs retrieval then presentation, each exactly once per question.
type Pipeline struct {
	runnable compose.Runnable[model.QueryInput, *model.PipelineOutput]
}

// BuildPipeline composes both stages from cfg and returns a Runner.
func BuildPipeline(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Models == nil || cfg.Models.Retriever == nil || cfg.Models.Presenter == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}

	retriever, err := NewRetriever(RetrieverConfig{
		Model:        cfg.Models.Retriever,
		ModelName:    cfg.Models.RetrieverModelName,
		Registry:     cfg.Registry,
		Prompt:       cfg.Prompt,
		MaxToolCalls: cfg.Retriever.MaxToolCalls,
		Timeout:      cfg.Retriever.Timeout,
	})
	if err != nil {
		return nil, err
	}
	presenter, err := NewPresenter(ctx, PresenterConfig{
		Model:       cfg.Models.Presenter,
		ModelName:   cfg.Models.PresenterModelName,
		Prompt:      cfg.Prompt,
		MaxAttempts: cfg.Presenter.MaxAttempts,
		Timeout:     cfg.Presenter.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewPipeline(ctx, retriever, presenter)
}

// NewPipeline chains the two stages.
func NewPipeline(ctx context.Context, retriever RetrievalStage, presenter PresentationStage) (*Pipeline, error) {
	if retriever == nil || presenter == nil {
		return nil, fmt.Errorf("pipeline stages are nil")
	}

	chain := compose.NewChain[model.QueryInput, *model.PipelineOutput]()
	chain.
		AppendLambda(compose.InvokableLambda(func(ctx context.Context, in model.QueryInput) (*model.StageHandoff, error) {
			start := time.Now()
			h, err := retriever.Retrieve(ctx, in)
			metrics.ObserveStage(StageRetrieval, time.Since(start), err)
			if err != nil {
				return nil, err
			}
			if h == nil {
				return nil, fmt.Errorf("retrieval returned no result")
			}
			return h, nil
		}), compose.WithNodeName(StageRetrieval)).
		AppendLambda(compose.InvokableLambda(func(ctx context.Context, h *model.StageHandoff) (*model.PipelineOutput, error) {
			start := time.Now()
			p, err := presenter.Present(ctx, *h)
			metrics.ObserveStage(StagePresentation, time.Since(start), err)
			if err != nil {
				return nil, err
			}
			return &model.PipelineOutput{Presentation: p, Result: h.Result, Operations: h.Operations}, nil
		}), compose.WithNodeName(StagePresentation))

	runnable, err := chain.Compile(ctx, compose.WithGraphName("pipeline"))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling pipeline")
		return nil, fmt.Errorf("error compiling pipeline: %w", err)
	}
	logx.Debug().Msg("Pipeline built successfully")
	return &Pipeline{runnable: runnable}, nil
}

// Run answers one question.
func (p *Pipeline) Run(ctx context.Context, in model.QueryInput) (*model.PipelineOutput, error) {
	return p.runnable.Invoke(ctx, in)
}
