// Package client is the front-end side of the HTTP surface: it bootstraps
// sessions, submits questions and renders the answers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/render"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// StatusError is a non-success answer from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// bounded by the caller's context and the server's own request timeout
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureSession creates the session. A session that already exists, whether
// reported as 200 or 409 Conflict, is success.
func (c *Client) EnsureSession(ctx context.Context, key model.SessionKey) error {
	path := fmt.Sprintf("/apps/%s/users/%s/sessions/%s",
		url.PathEscape(key.AppName), url.PathEscape(key.UserID), url.PathEscape(key.SessionID))
	status, body, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		logx.Debug().Str("session_id", key.SessionID).Msg("Session already exists")
		return nil
	}
	return statusError(status, body)
}

// Answer is the server's reply to a question.
type Answer struct {
	Presentation model.WirePresentation `json:"presentation"`
	ResultKind   string                 `json:"result_kind"`
	// Raw is the undecoded presentation member.
	Raw json.RawMessage `json:"-"`
}

// View renders the answer. A malformed presentation degrades to an error view.
func (a *Answer) View() render.View {
	if len(a.Raw) > 0 {
		return render.RenderRaw(a.Raw)
	}
	return render.Render(a.Presentation)
}

type runRequest struct {
	AppName    string  `json:"appName"`
	UserID     string  `json:"userId"`
	SessionID  string  `json:"sessionId"`
	NewMessage message `json:"newMessage"`
}

type message struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// Ask submits question in the session.
func (c *Client) Ask(ctx context.Context, key model.SessionKey, question string) (*Answer, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/run", runRequest{
		AppName:    key.AppName,
		UserID:     key.UserID,
		SessionID:  key.SessionID,
		NewMessage: message{Role: "user", Parts: []part{{Text: question}}},
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var envelope struct {
		Presentation json.RawMessage `json:"presentation"`
		ResultKind   string          `json:"result_kind"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	a := &Answer{ResultKind: envelope.ResultKind, Raw: envelope.Presentation}
	if err := json.Unmarshal(envelope.Presentation, &a.Presentation); err != nil {
		logx.Warn().Err(err).Msg("Presentation could not be decoded; rendering as error")
	}
	return a, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, b, nil
}

func statusError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return &StatusError{Status: status, Message: msg}
}
