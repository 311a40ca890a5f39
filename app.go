package main

import (
	"context"
	"fmt"

	"github.com/smartsearch/corporate-agent/internal/agent"
	"github.com/smartsearch/corporate-agent/internal/agent/graph"
	"github.com/smartsearch/corporate-agent/internal/agent/graph/nodes"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/agent/repo"
	"github.com/smartsearch/corporate-agent/internal/agent/sessions"
	"github.com/smartsearch/corporate-agent/internal/config"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
	"github.com/smartsearch/corporate-agent/internal/toolbox/sqlset"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// app holds the wired service and whatever must be closed on exit.
type app struct {
	cfg     *config.AppConfig
	service *agent.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("Error during shutdown")
		}
	}
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{cfg: cfg}

	dialer, err := newDialer(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	registry := toolbox.NewRegistry(cfg.Toolbox, dialer)

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		LLM:       cfg.LLM,
		Retriever: &cfg.Retriever,
		Presenter: &cfg.Presenter,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create chat models: %w", err)
	}

	runner, err := graph.BuildPipeline(ctx, graph.Config{
		Models:    models,
		Registry:  registry,
		Prompt:    cfg.Prompt,
		Retriever: cfg.Retriever,
		Presenter: cfg.Presenter,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	store, err := newSessionRepository(ctx, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = agent.NewService(runner, sessions.NewManager(store, cfg.Session))
	return a, nil
}

// newDialer selects the local SQL toolset when configured, otherwise the
// remote toolbox service. Outside local runs every session authenticates with
// its own identity token.
func newDialer(ctx context.Context, a *app) (toolbox.Dialer, error) {
	tb := a.cfg.Toolbox
	if tb.Local() {
		backend, err := sqlset.Open(ctx, tb.LocalToolsFile, tb.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open local toolset: %w", err)
		}
		a.closers = append(a.closers, backend.Close)
		logx.Info().Str("file", tb.LocalToolsFile).Msg("Using local SQL toolset")
		return backend, nil
	}

	var opts []toolbox.HTTPOption
	if !a.cfg.Env().IsLocal() {
		opts = append(opts, toolbox.WithIdentityTokens())
	}
	logx.Info().Str("url", tb.URL).Bool("identity_tokens", len(opts) > 0).Msg("Using toolbox service")
	return toolbox.NewHTTPDialer(tb.URL, opts...), nil
}

func newSessionRepository(ctx context.Context, a *app) (model.SessionRepository, error) {
	if !a.cfg.Redis.Enabled() {
		logx.Info().Msg("REDIS_URL not set; keeping sessions in memory")
		return repo.NewMemorySessionRepository(a.cfg.Session.TTL), nil
	}
	rdb, err := a.cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	logx.Info().Msg("Connected to Redis successfully")
	return repo.NewRedisSessionRepository(rdb, a.cfg.Session.TTL), nil
}
