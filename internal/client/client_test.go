package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/render"
)

var key = model.SessionKey{AppName: "corporate_agent", UserID: "u-1", SessionID: "s-1"}

func TestEnsureSessionTreatsConflictAsSuccess(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusConflict} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/apps/corporate_agent/users/u-1/sessions/s-1", r.URL.Path)
			w.WriteHeader(status)
		}))
		assert.NoError(t, New(srv.URL).EnsureSession(context.Background(), key), "status %d", status)
		srv.Close()
	}
}

func TestEnsureSessionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"redis operation failed"}`))
	}))
	defer srv.Close()

	err := New(srv.URL).EnsureSession(context.Background(), key)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Equal(t, "redis operation failed", se.Message)
}

func TestAskRendersAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Who is our biggest customer?", req.NewMessage.Parts[0].Text)
		assert.Equal(t, "user", req.NewMessage.Role)
		_, _ = w.Write([]byte(`{"presentation":{"response_type":"text","summary_text":"Cyberdyne Systems leads with 847329.","chart_spec":null},"result_kind":"data"}`))
	}))
	defer srv.Close()

	a, err := New(srv.URL).Ask(context.Background(), key, "Who is our biggest customer?")
	require.NoError(t, err)
	assert.Equal(t, "data", a.ResultKind)
	assert.Equal(t, model.ResponseText, a.Presentation.ResponseType)
	v := a.View()
	assert.Equal(t, render.KindText, v.Kind)
	assert.Contains(t, v.Text(), "847329")
}

func TestAskDegradesIncompleteChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"presentation":{"response_type":"visual","summary_text":"Revenue grew.","chart_spec":"{\"data\":{},\"encoding\":{}}"}}`))
	}))
	defer srv.Close()

	a, err := New(srv.URL).Ask(context.Background(), key, "Show revenue")
	require.NoError(t, err)
	v := a.View()
	assert.Equal(t, render.KindError, v.Kind)
	assert.Equal(t, "Revenue grew.", v.Content)
	assert.Equal(t, render.IncompleteChartNotice, v.Notice)
}
