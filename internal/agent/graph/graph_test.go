package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsearch/corporate-agent/internal/agent/graph/nodes"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
)

func TestPipelineVisualAnswer(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{}
	retriever := newScriptedModel(
		callOperation("monthly-revenue", `{"start_date":"2024/01/01","end_date":"2024-04-01"}`),
		reply("Fetched monthly revenue for Q1 2024."),
	)
	presenter := newScriptedModel(
		reply(presentation(t, model.ResponseVisual, "Revenue grew every month, from 29230.95 in Jan to 35120.1 in Mar.", revenueChart(revenueRows))),
	)

	p, err := NewPipeline(ctx, newTestRetriever(t, retriever, backend, time.Second), newTestPresenter(t, presenter, 2))
	require.NoError(t, err)

	out, err := p.Run(ctx, model.QueryInput{SessionID: "s-1", Question: "Show monthly revenue for Q1 2024"})
	require.NoError(t, err)

	assert.Equal(t, []string{"list-tables", "monthly-revenue"}, backend.invocations())
	assert.Equal(t, "2024-01-01", backend.args[1]["start_date"], "date normalised before invocation")
	require.True(t, out.Result.IsData())
	assert.JSONEq(t, revenueRows, string(out.Result.Payload()))
	require.Len(t, out.Operations, 2)
	assert.True(t, out.Operations[0].Discovery)

	require.NotNil(t, out.Presentation)
	assert.Equal(t, model.ResponseVisual, out.Presentation.ResponseType)
	require.NotNil(t, out.Presentation.Chart)
	assert.Len(t, out.Presentation.Chart.Data.Values, 3)

	// the model saw the discovery result before its first turn
	first := retriever.input(0)
	require.GreaterOrEqual(t, len(first), 4)
	assert.Equal(t, schema.Tool, first[3].Role)
	assert.Equal(t, nodes.DiscoveryCallID, first[3].ToolCallID)
	assert.Len(t, retriever.tools, 3)
}

func TestPipelineTextAnswer(t *testing.T) {
	ctx := context.Background()
	retriever := newScriptedModel(
		callOperation("top-customers", `{"limit":"1"}`),
		reply("Fetched the top customer."),
	)
	presenter := newScriptedModel(
		reply(presentation(t, model.ResponseText, "Cyberdyne Systems is the biggest customer with 847329 in revenue.", "")),
	)
	backend := &fakeBackend{}

	p, err := NewPipeline(ctx, newTestRetriever(t, retriever, backend, time.Second), newTestPresenter(t, presenter, 2))
	require.NoError(t, err)

	out, err := p.Run(ctx, model.QueryInput{SessionID: "s-2", Question: "Who is our biggest customer?"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, backend.args[1]["limit"])
	assert.Equal(t, model.ResponseText, out.Presentation.ResponseType)
	assert.Nil(t, out.Presentation.Chart)
	assert.Contains(t, out.Presentation.SummaryText, "Cyberdyne Systems")
}

func TestPipelineIrrelevantQuestion(t *testing.T) {
	ctx := context.Background()
	retriever := newScriptedModel(reply(`{"status":"irrelevant"}`))
	presenter := newScriptedModel(
		reply(presentation(t, model.ResponseUnableToAnswer, "I can only answer questions about company data.", "")),
	)

	p, err := NewPipeline(ctx, newTestRetriever(t, retriever, &fakeBackend{}, time.Second), newTestPresenter(t, presenter, 2))
	require.NoError(t, err)

	out, err := p.Run(ctx, model.QueryInput{SessionID: "s-3", Question: "What's the weather in Paris?"})
	require.NoError(t, err)
	assert.True(t, out.Result.IsIrrelevant())
	assert.Equal(t, model.ResponseUnableToAnswer, out.Presentation.ResponseType)

	// the presenter is told the result carries no data
	user := presenter.input(0)[1].Content
	assert.Contains(t, user, `"status":"irrelevant"`)
}

func TestPipelineFailedOperationNeverCharts(t *testing.T) {
	ctx := context.Background()
	retriever := newScriptedModel(
		callOperation("monthly-revenue", `{"start_date":"bad"}`),
		reply("The operation failed."),
	)
	presenter := newScriptedModel(
		reply(presentation(t, model.ResponseVisual, "Revenue was flat.", revenueChart(revenueRows))),
	)

	p, err := NewPipeline(ctx, newTestRetriever(t, retriever, &fakeBackend{}, time.Second), newTestPresenter(t, presenter, 2))
	require.NoError(t, err)

	out, err := p.Run(ctx, model.QueryInput{SessionID: "s-4", Question: "Show monthly revenue"})
	require.NoError(t, err)
	require.True(t, out.Result.IsError())
	assert.Contains(t, out.Result.Reason(), "monthly-revenue")
	assert.Equal(t, model.ResponseUnableToAnswer, out.Presentation.ResponseType)
	assert.Nil(t, out.Presentation.Chart)

	// the failure went back to the model as a tool result, not as a stage error
	second := retriever.input(1)
	last := second[len(second)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Contains(t, last.Content, "error")
}

func TestRetrieveEmptyRegistry(t *testing.T) {
	m := newScriptedModel()
	r := newTestRetriever(t, m, &emptyBackend{}, time.Second)

	h, err := r.Retrieve(context.Background(), model.QueryInput{SessionID: "s-5", Question: "Show revenue"})
	require.NoError(t, err)
	assert.True(t, h.Result.IsIrrelevant())
	assert.Zero(t, m.calls(), "model is not consulted without operations")
}

func TestRetrieveTimeout(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		m := newScriptedModel(block())
		r := newTestRetriever(t, m, &fakeBackend{}, 50*time.Millisecond)

		h, err := r.Retrieve(context.Background(), model.QueryInput{SessionID: "s-6", Question: "Show revenue"})
		require.NoError(t, err)
		require.True(t, h.Result.IsError())
		assert.Equal(t, TimeoutReason, h.Result.Reason())
	})
	t.Run("keeps data fetched before the deadline", func(t *testing.T) {
		m := newScriptedModel(callOperation("top-customers", `{"limit":1}`), block())
		r := newTestRetriever(t, m, &fakeBackend{}, 100*time.Millisecond)

		h, err := r.Retrieve(context.Background(), model.QueryInput{SessionID: "s-7", Question: "Top customer"})
		require.NoError(t, err)
		require.True(t, h.Result.IsData())
		assert.JSONEq(t, topCustomer, string(h.Result.Payload()))
	})
}

func TestRetrieveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newScriptedModel(func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := newTestRetriever(t, m, &fakeBackend{}, time.Second)

	_, err := r.Retrieve(ctx, model.QueryInput{SessionID: "s-8", Question: "Show revenue"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrieveModelFailure(t *testing.T) {
	m := newScriptedModel(fail(errors.New("503 service unavailable")))
	r := newTestRetriever(t, m, &fakeBackend{}, time.Second)

	_, err := r.Retrieve(context.Background(), model.QueryInput{SessionID: "s-9", Question: "Show revenue"})
	require.Error(t, err)
	assert.Equal(t, errx.ModelErrorMessage, errx.MessageOf(err))
}

func TestRetrieveToolCallLimit(t *testing.T) {
	turns := make([]turn, 0, 6)
	for i := 0; i < 4; i++ {
		turns = append(turns, callOperation("top-customers", `{"limit":1}`))
	}
	turns = append(turns, reply("Fetched the top customer."))
	m := newScriptedModel(turns...)
	backend := &fakeBackend{}
	r := newTestRetriever(t, m, backend, time.Second)

	h, err := r.Retrieve(context.Background(), model.QueryInput{SessionID: "s-10", Question: "Top customer"})
	require.NoError(t, err)
	assert.True(t, h.Result.IsData())
	assert.LessOrEqual(t, len(backend.invocations()), 5, "discovery plus at most four calls")

	last := m.input(m.calls() - 1)
	assert.True(t, strings.Contains(last[len(last)-1].Content, "maximum number of operation calls"))
}

func TestPresentRetriesInvalidOutput(t *testing.T) {
	m := newScriptedModel(
		reply("Sure! Revenue went up."),
		reply(presentation(t, model.ResponseText, "Cyberdyne Systems leads with 847329.", "")),
	)
	p := newTestPresenter(t, m, 2)

	out, err := p.Present(context.Background(), model.StageHandoff{
		SessionID: "s-11",
		Question:  "Who is our biggest customer?",
		Result:    model.Data([]byte(topCustomer)),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResponseText, out.ResponseType)
	assert.Equal(t, 2, m.calls())
	assert.Contains(t, m.input(1)[1].Content, "Your previous answer was rejected")
}

func TestPresentFallsBack(t *testing.T) {
	m := newScriptedModel(reply("no json"), reply(`{"response_type":"chart"}`))
	p := newTestPresenter(t, m, 2)

	out, err := p.Present(context.Background(), model.StageHandoff{
		SessionID: "s-12",
		Question:  "Show revenue",
		Result:    model.Data([]byte(revenueRows)),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ResponseUnableToAnswer, out.ResponseType)
	assert.Equal(t, model.FallbackSummary, out.SummaryText)
}

func TestPresentPropagatesModelFailure(t *testing.T) {
	m := newScriptedModel(fail(errors.New("quota exceeded")))
	p := newTestPresenter(t, m, 1)

	_, err := p.Present(context.Background(), model.StageHandoff{SessionID: "s-13", Question: "q", Result: model.Irrelevant()})
	require.Error(t, err)
	assert.Equal(t, errx.ModelErrorMessage, errx.MessageOf(err))
}

func TestPipelineStopsOnRetrievalError(t *testing.T) {
	ctx := context.Background()
	presenter := newScriptedModel()
	p, err := NewPipeline(ctx,
		newTestRetriever(t, newScriptedModel(fail(errors.New("boom"))), &fakeBackend{}, time.Second),
		newTestPresenter(t, presenter, 1),
	)
	require.NoError(t, err)

	_, err = p.Run(ctx, model.QueryInput{SessionID: "s-14", Question: "Show revenue"})
	require.Error(t, err)
	assert.Zero(t, presenter.calls())
}

func TestBuildPipelineRequiresModels(t *testing.T) {
	_, err := BuildPipeline(context.Background(), Config{})
	assert.Error(t, err)

	_, err = NewPipeline(context.Background(), nil, nil)
	assert.Error(t, err)
}
