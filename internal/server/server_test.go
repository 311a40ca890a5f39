package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsearch/corporate-agent/internal/agent"
	"github.com/smartsearch/corporate-agent/internal/agent/graph"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/agent/repo"
	"github.com/smartsearch/corporate-agent/internal/agent/sessions"
	"github.com/smartsearch/corporate-agent/internal/chart"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	"github.com/smartsearch/corporate-agent/internal/render"
)

type stubRunner struct {
	out *model.PipelineOutput
	err error
}

func (r *stubRunner) Run(context.Context, model.QueryInput) (*model.PipelineOutput, error) {
	return r.out, r.err
}

// waitingRunner blocks until its run is cancelled.
type waitingRunner struct {
	started chan struct{}
}

func (r *waitingRunner) Run(ctx context.Context, _ model.QueryInput) (*model.PipelineOutput, error) {
	if r.started != nil {
		close(r.started)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestServer(r graph.Runner, opts ...Option) *Server {
	m := sessions.NewManager(repo.NewMemorySessionRepository(time.Hour), model.SessionConfig{AppName: "corporate_agent", HistoryTurns: 3})
	return New(agent.NewService(r, m), 0, opts...)
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func visualOutput() *model.PipelineOutput {
	rows := []map[string]any{
		{"month": "Jan", "revenue": 29230.95},
		{"month": "Feb", "revenue": 31877.4},
	}
	spec := &chart.Spec{
		Schema: chart.SchemaURL,
		Title:  "Monthly revenue",
		Mark:   "line",
		Data:   chart.Data{Values: rows},
		Encoding: chart.Encoding{
			X: &chart.FieldDef{Field: "month", Type: chart.Ordinal},
			Y: &chart.FieldDef{Field: "revenue", Type: chart.Quantitative},
		},
	}
	return &model.PipelineOutput{
		Presentation: &model.FinalPresentation{ResponseType: model.ResponseVisual, SummaryText: "Revenue rose to 31877.4 in Feb.", Chart: spec},
		Result:       model.Data(json.RawMessage(`[{"month":"Jan","revenue":29230.95},{"month":"Feb","revenue":31877.4}]`)),
		Operations: []model.OperationCall{
			{Name: "list-tables", Discovery: true, Result: json.RawMessage(`[]`)},
			{Name: "monthly-revenue", Result: json.RawMessage(`[]`), Duration: 1500 * time.Millisecond},
		},
	}
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	s := newTestServer(&stubRunner{})
	path := "/apps/corporate_agent/users/u-1/sessions/s-1"

	for i, wantCreated := range []bool{true, false} {
		resp, body := do(t, s, http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "attempt %d", i+1)
		var got SessionResponse
		require.NoError(t, json.Unmarshal(body, &got))
		require.NotNil(t, got.Created)
		assert.Equal(t, wantCreated, *got.Created)
		assert.Equal(t, "s-1", got.SessionID)
	}
}

func TestGetUnknownSession(t *testing.T) {
	s := newTestServer(&stubRunner{})
	resp, body := do(t, s, http.MethodGet, "/apps/corporate_agent/users/u-1/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "session not found")
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))
}

func TestRunAndReadBack(t *testing.T) {
	s := newTestServer(&stubRunner{out: visualOutput()})
	req := `{"appName":"corporate_agent","userId":"u-1","sessionId":"s-2",
		"newMessage":{"role":"user","parts":[{"text":"Show monthly revenue"}]}}`

	resp, body := do(t, s, http.MethodPost, "/run", req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got RunResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, model.ResponseVisual, got.Presentation.ResponseType)
	assert.Equal(t, render.KindVisual, got.View.Kind)
	require.NotNil(t, got.View.Chart)
	assert.Len(t, got.View.Chart.Data.Values, 2)
	assert.Equal(t, "data", got.ResultKind)
	require.Len(t, got.Operations, 2)
	assert.Equal(t, int64(1500), got.Operations[1].DurationMS)

	// chart_spec travels as a string that re-parses to the chart
	var encoded string
	require.NoError(t, json.Unmarshal(got.Presentation.ChartSpec, &encoded))
	spec, err := chart.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "month", spec.Encoding.X.Field)

	resp, body = do(t, s, http.MethodGet, "/apps/corporate_agent/users/u-1/sessions/s-2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess SessionResponse
	require.NoError(t, json.Unmarshal(body, &sess))
	require.Len(t, sess.Turns, 1)
	assert.Equal(t, "Show monthly revenue", sess.Turns[0].Question)
	assert.Equal(t, render.KindVisual, sess.Turns[0].View.Kind)

	resp, _ = do(t, s, http.MethodDelete, "/apps/corporate_agent/users/u-1/sessions/s-2", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, s, http.MethodGet, "/apps/corporate_agent/users/u-1/sessions/s-2", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunRejectsBadRequests(t *testing.T) {
	s := newTestServer(&stubRunner{out: visualOutput()})
	for name, body := range map[string]string{
		"not json":       `{`,
		"missing user":   `{"sessionId":"s","newMessage":{"parts":[{"text":"q"}]}}`,
		"no parts":       `{"userId":"u","sessionId":"s","newMessage":{"parts":[]}}`,
		"blank question": `{"userId":"u","sessionId":"s","newMessage":{"parts":[{"text":"  "}]}}`,
		"wrong role":     `{"userId":"u","sessionId":"s","newMessage":{"role":"model","parts":[{"text":"q"}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, _ := do(t, s, http.MethodPost, "/run", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestRunHidesInfrastructureErrors(t *testing.T) {
	s := newTestServer(&stubRunner{err: errx.WrapModel(errors.New("dial tcp 10.0.0.7:443: connection refused"))})
	req := `{"userId":"u","sessionId":"s","newMessage":{"parts":[{"text":"Top customer?"}]}}`

	resp, body := do(t, s, http.MethodPost, "/run", req)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	var got ErrorResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, errx.ModelErrorMessage, got.Error)
	assert.NotContains(t, string(body), "10.0.0.7")
	assert.NotEmpty(t, got.RequestID)
}

func TestRunIsBoundedByRequestTimeout(t *testing.T) {
	s := newTestServer(&waitingRunner{}, WithRequestTimeout(50*time.Millisecond))
	req := `{"userId":"u","sessionId":"s","newMessage":{"parts":[{"text":"Show revenue"}]}}`

	start := time.Now()
	resp, body := do(t, s, http.MethodPost, "/run", req)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.NotContains(t, string(body), "deadline")
}

func TestShutdownCancelsRunsInFlight(t *testing.T) {
	runner := &waitingRunner{started: make(chan struct{})}
	s := newTestServer(runner)
	req := `{"userId":"u","sessionId":"s","newMessage":{"parts":[{"text":"Show revenue"}]}}`

	done := make(chan int, 1)
	go func() {
		r := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(req))
		r.Header.Set("Content-Type", "application/json")
		resp, err := s.App().Test(r, -1)
		if err != nil {
			done <- 0
			return
		}
		done <- resp.StatusCode
	}()

	select {
	case <-runner.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never started")
	}
	s.stop()

	select {
	case status := <-done:
		assert.Equal(t, http.StatusServiceUnavailable, status)
	case <-time.After(5 * time.Second):
		t.Fatal("run was not cancelled")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(&stubRunner{})
	resp, body := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, body = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "corporate_agent_http_requests_total")
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(&stubRunner{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "req-42")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-42", resp.Header.Get(headerRequestID))
}
