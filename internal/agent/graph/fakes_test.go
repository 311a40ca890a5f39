package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/chart"
	"github.com/smartsearch/corporate-agent/internal/toolbox"
)

const revenueRows = `[{"month":"Jan","revenue":29230.95},{"month":"Feb","revenue":31877.4},{"month":"Mar","revenue":35120.1}]`

const topCustomer = `{"customer":"Cyberdyne Systems","revenue":847329}`

// turn produces one model reply for the messages it is given.
type turn func(ctx context.Context, msgs []*schema.Message) (*schema.Message, error)

// scriptedModel replays turns in order and records every input.
type scriptedModel struct {
	mu     sync.Mutex
	turns  []turn
	inputs [][]*schema.Message
	tools  []*schema.ToolInfo
}

func newScriptedModel(turns ...turn) *scriptedModel {
	return &scriptedModel{turns: turns}
}

func (m *scriptedModel) Generate(ctx context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	i := len(m.inputs)
	m.inputs = append(m.inputs, msgs)
	m.mu.Unlock()
	if i >= len(m.turns) {
		return nil, fmt.Errorf("unexpected model call %d", i+1)
	}
	return m.turns[i](ctx, msgs)
}

func (m *scriptedModel) Stream(ctx context.Context, msgs []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	return m, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

func (m *scriptedModel) input(i int) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs[i]
}

func reply(content string) turn {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(content, nil), nil
	}
}

func callOperation(name, args string) turn {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage("", []schema.ToolCall{{
			Type:     "function",
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}}), nil
	}
}

func fail(err error) turn {
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		return nil, err
	}
}

func block() turn {
	return func(ctx context.Context, _ []*schema.Message) (*schema.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// fakeBackend serves a small commerce toolset.
type fakeBackend struct {
	mu      sync.Mutex
	invoked []string
	args    []map[string]any
}

func (b *fakeBackend) Dial(context.Context) (toolbox.Backend, error) { return b, nil }

func (b *fakeBackend) LoadToolset(context.Context, string) (*toolbox.Manifest, error) {
	optional := false
	return &toolbox.Manifest{
		ServerVersion: "test",
		Tools: map[string]toolbox.Operation{
			"list-tables": {Description: "List tables and columns"},
			"monthly-revenue": {Description: "Revenue per month", Parameters: []toolbox.Parameter{
				{Name: "start_date", Type: "string", Description: "inclusive YYYY-MM-DD"},
				{Name: "end_date", Type: "string", Description: "exclusive YYYY-MM-DD", Required: &optional},
			}},
			"top-customers": {Description: "Customers ranked by revenue", Parameters: []toolbox.Parameter{
				{Name: "limit", Type: "integer", Description: "rows to return"},
			}},
		},
	}, nil
}

func (b *fakeBackend) Invoke(_ context.Context, name string, args map[string]any) (json.RawMessage, error) {
	b.mu.Lock()
	b.invoked = append(b.invoked, name)
	b.args = append(b.args, args)
	b.mu.Unlock()
	switch name {
	case "list-tables":
		return json.RawMessage(`[{"table_name":"orders","columns":["order_date","total"]}]`), nil
	case "monthly-revenue":
		if args["start_date"] == "bad" {
			return nil, fmt.Errorf("%w: invalid date", toolbox.ErrOperationFailed)
		}
		return json.RawMessage(revenueRows), nil
	case "top-customers":
		return json.RawMessage(topCustomer), nil
	}
	return nil, toolbox.ErrUnknownOperation
}

func (b *fakeBackend) invocations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.invoked...)
}

// emptyBackend has no operations.
type emptyBackend struct{ fakeBackend }

func (b *emptyBackend) Dial(context.Context) (toolbox.Backend, error) { return b, nil }

func (b *emptyBackend) LoadToolset(context.Context, string) (*toolbox.Manifest, error) {
	return &toolbox.Manifest{Tools: map[string]toolbox.Operation{}}, nil
}

func newRegistry(d toolbox.Dialer) *toolbox.Registry {
	return toolbox.NewRegistry(toolbox.Config{
		Toolset:       "ecommerce-toolset",
		DiscoveryTool: "list-tables",
		DiscoveryArgs: "{}",
		InvokeTimeout: time.Second,
		LoadTimeout:   time.Second,
	}, d)
}

func newTestRetriever(t *testing.T, m *scriptedModel, d toolbox.Dialer, timeout time.Duration) *Retriever {
	t.Helper()
	r, err := NewRetriever(RetrieverConfig{
		Model:        m,
		ModelName:    "gemini-2.5-pro",
		Registry:     newRegistry(d),
		Prompt:       model.PromptConfig{CompanyName: "TechCorp"},
		MaxToolCalls: 4,
		Timeout:      timeout,
	})
	require.NoError(t, err)
	return r
}

func newTestPresenter(t *testing.T, m *scriptedModel, attempts int) *Presenter {
	t.Helper()
	p, err := NewPresenter(context.Background(), PresenterConfig{
		Model:       m,
		ModelName:   "gemini-2.5-flash",
		Prompt:      model.PromptConfig{CompanyName: "TechCorp"},
		MaxAttempts: attempts,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	return p
}

func presentation(t *testing.T, responseType model.ResponseType, summary string, chartSpec string) string {
	t.Helper()
	body := map[string]any{"response_type": responseType, "summary_text": summary, "chart_spec": nil}
	if chartSpec != "" {
		body["chart_spec"] = chartSpec
	}
	b, err := json.Marshal(body)
	require.NoError(t, err)
	return string(b)
}

func revenueChart(values string) string {
	return `{"$schema":"` + chart.SchemaURL + `","title":"Monthly revenue Q1 2024","mark":"line",` +
		`"data":{"values":` + values + `},` +
		`"encoding":{"x":{"field":"month","type":"ordinal"},"y":{"field":"revenue","type":"quantitative"}}}`
}
