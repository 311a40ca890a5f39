package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/parsers"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	LLM       model.LLMConfig
	Retriever *model.RetrieverModelConfig
	Presenter *model.PresenterModelConfig
}

// ChatModels holds the models of both pipeline stages.
type ChatModels struct {
	// Retriever is bound to the per-request operation set with WithTools,
	// which returns a new instance and leaves this one untouched.
	Retriever          einomodel.ToolCallingChatModel
	Presenter          einomodel.BaseChatModel
	RetrieverModelName string
	PresenterModelName string
}

// NewGenAIClient creates the Gemini client shared by both chat models.
func NewGenAIClient(ctx context.Context, cfg model.LLMConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.UseVertex() {
		clientCfg = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the retriever and presenter chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Retriever == nil || config.Presenter == nil {
		return nil, fmt.Errorf("chat model configs are nil")
	}

	client, err := NewGenAIClient(ctx, config.LLM)
	if err != nil {
		return nil, err
	}

	// Retriever: low temperature, its choices gate everything downstream
	retriever, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.Retriever.Model,
		Temperature: &config.Retriever.Temperature,
		MaxTokens:   &config.Retriever.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.Retriever.ThinkingBudget),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating retriever model")
		return nil, fmt.Errorf("error creating retriever model: %w", err)
	}

	// Presenter: constrained to the presentation shape, checked again by the parser
	presenter, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:         client,
		Model:          config.Presenter.Model,
		Temperature:    &config.Presenter.Temperature,
		MaxTokens:      &config.Presenter.MaxTokens,
		ResponseSchema: parsers.PresentationResponseSchema(),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.Presenter.ThinkingBudget),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating presenter model")
		return nil, fmt.Errorf("error creating presenter model: %w", err)
	}

	return &ChatModels{
		Retriever:          retriever,
		Presenter:          presenter,
		RetrieverModelName: config.Retriever.Model,
		PresenterModelName: config.Presenter.Model,
	}, nil
}
