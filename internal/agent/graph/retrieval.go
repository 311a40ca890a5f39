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
	"github.com/smartsearch/corporate-agent/internal/agent/graph/tools"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	"github.com/smartsearch/corporate-agent/internal/metrics"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// TimeoutReason is the error reason of a retrieval that ran out of time
// before any operation returned data.
const TimeoutReason = "data retrieval timed out"

// OperationRegistry opens per-request views of the operation registry.
type OperationRegistry interface {
	Session(ctx context.Context, sessionID string) (*toolbox.Session, error)
}

// RetrieverConfig holds everything the retrieval stage needs.
type RetrieverConfig struct {
	Model        einomodel.ToolCallingChatModel
	ModelName    string
	Registry     OperationRegistry
	Prompt       model.PromptConfig
	MaxToolCalls int
	Timeout      time.Duration
}

// Retriever is the retrieval stage. The tool set differs per request, so a
// small graph is composed for every question.
type Retriever struct {
	cfg RetrieverConfig
}

func NewRetriever(cfg RetrieverConfig) (*Retriever, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("retriever model is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("operation registry is nil")
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = nodes.DefaultMaxToolCalls
	}
	return &Retriever{cfg: cfg}, nil
}

// Retrieve maps the question onto the registry's operations and returns the
// stage result. Business outcomes (irrelevant question, failed operation,
// stage timeout) are encoded in the result; only infrastructure failures and
// cancellation of ctx are returned as errors.
func (r *Retriever) Retrieve(ctx context.Context, in model.QueryInput) (*model.StageHandoff, error) {
	handoff := &model.StageHandoff{SessionID: in.SessionID, Question: in.Question}

	sess, err := r.cfg.Registry.Session(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	ops := sess.Operations()
	if len(ops) == 0 {
		logx.Warn().
			Str("session_id", in.SessionID).
			Msg("No operations available; question treated as irrelevant")
		handoff.Result = model.Irrelevant()
		metrics.ObserveQueryResult(handoff.Result.Kind().String())
		return handoff, nil
	}

	recorder := tools.NewRecorder()
	runnable, err := r.compile(ctx, sess, recorder)
	if err != nil {
		return nil, err
	}

	stageCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	result, err := runnable.Invoke(stageCtx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded):
		result = nodes.CollectResult(nil, recorder.Calls())
		if !result.IsData() {
			result = model.Failed(TimeoutReason)
		}
		logx.Warn().
			Err(err).
			Str("session_id", in.SessionID).
			Dur("timeout", r.cfg.Timeout).
			Str("result_kind", result.Kind().String()).
			Msg("Retrieval stage timed out")
	default:
		logx.Error().Err(err).Str("session_id", in.SessionID).Msg("Retrieval stage failed")
		return nil, errx.WrapModel(err)
	}

	handoff.Result = result
	handoff.Operations = recorder.Calls()
	metrics.ObserveQueryResult(result.Kind().String())
	logx.Info().
		Str("session_id", in.SessionID).
		Str("result_kind", result.Kind().String()).
		Int("operations", len(handoff.Operations)).
		Msg("Retrieval finished")
	return handoff, nil
}

// compile composes the retrieval graph over one registry session:
// QueryConverter -> RetrieverChatModel <-> ToolExecutor, then QueryCollector.
func (r *Retriever) compile(ctx context.Context, sess *toolbox.Session, recorder *tools.Recorder) (compose.Runnable[model.QueryInput, model.QueryResult], error) {
	ops := sess.Operations()
	opTools := tools.NewOperationTools(ops, sess, recorder, "")
	toolInfos, err := tools.GetToolInfos(ctx, opTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return nil, fmt.Errorf("failed to get tool infos: %w", err)
	}

	logx.Debug().
		Strs("operations", tools.Names(ctx, opTools)).
		Msg("Binding operations to retriever")

	bound, err := r.cfg.Model.WithTools(toolInfos)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to retriever model")
		return nil, fmt.Errorf("failed to bind tools to retriever model: %w", err)
	}

	var discovery *nodes.Discovery
	if op, args, ok := sess.Discovery(); ok {
		discovery = &nodes.Discovery{
			Tool: tools.NewOperationTool(op, sess, recorder, true),
			Name: op.Name,
			Args: args,
		}
	}

	toolsNode, err := compose.NewToolNode(ctx, nodes.NewToolsNodeConfig(ops, opTools, recorder))
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return nil, fmt.Errorf("failed to create tools node: %w", err)
	}

	g := compose.NewGraph[model.QueryInput, model.QueryResult](
		compose.WithGenLocalState(func(ctx context.Context) *model.RetrievalState {
			return &model.RetrievalState{}
		}),
	)

	maxCalls := r.cfg.MaxToolCalls
	if err := g.AddLambdaNode(nodes.NodeQueryConverter,
		nodes.NewQueryConverterNode(r.cfg.Prompt, discovery, recorder),
		compose.WithStatePreHandler(nodes.NewQueryConverterPreHandler()),
	); err != nil {
		return nil, err
	}
	if err := g.AddChatModelNode(nodes.NodeRetrieverChatModel, bound,
		compose.WithStatePreHandler(nodes.NewRetrieverChatModelPreHandler(maxCalls)),
		compose.WithStatePostHandler(nodes.NewRetrieverChatModelPostHandler(r.cfg.ModelName)),
	); err != nil {
		return nil, err
	}
	if err := g.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePreHandler(nodes.NewToolExecutorPreHandler(maxCalls)),
	); err != nil {
		return nil, err
	}
	if err := g.AddLambdaNode(nodes.NodeQueryCollector, nodes.NewQueryCollectorNode(recorder)); err != nil {
		return nil, err
	}

	edges := [][2]string{
		{compose.START, nodes.NodeQueryConverter},
		{nodes.NodeQueryConverter, nodes.NodeRetrieverChatModel},
		{nodes.NodeToolExecutor, nodes.NodeRetrieverChatModel},
		{nodes.NodeQueryCollector, compose.END},
	}
	for _, edge := range edges {
		if err := g.AddEdge(edge[0], edge[1]); err != nil {
			return nil, err
		}
	}

	decisionBranch := compose.NewGraphBranch(
		nodes.NewToolExecutorCondition(),
		map[string]bool{
			nodes.NodeToolExecutor:   true,
			nodes.NodeQueryCollector: true,
		},
	)
	if err := g.AddBranch(nodes.NodeRetrieverChatModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return nil, fmt.Errorf("error adding decision branch: %w", err)
	}

	runnable, err := g.Compile(ctx,
		compose.WithGraphName("retrieval"),
		compose.WithMaxRunSteps(nodes.MaxRunSteps(maxCalls)),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling retrieval graph")
		return nil, fmt.Errorf("error compiling retrieval graph: %w", err)
	}
	return runnable, nil
}
