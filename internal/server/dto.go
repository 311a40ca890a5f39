package server

import (
	"strings"
	"time"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/render"
)

// Part is one piece of a message.
type Part struct {
	Text string `json:"text"`
}

// Message is a chat message as sent by the front-end.
type Message struct {
	Role  string `json:"role" validate:"omitempty,oneof=user"`
	Parts []Part `json:"parts" validate:"required,min=1"`
}

// Text joins the message's text parts.
func (m Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n")
}

// RunRequest submits one question.
type RunRequest struct {
	AppName    string  `json:"appName" validate:"omitempty,max=128"`
	UserID     string  `json:"userId" validate:"required,max=128"`
	SessionID  string  `json:"sessionId" validate:"required,max=128"`
	NewMessage Message `json:"newMessage" validate:"required"`
}

// RunResponse is the answer to one question.
type RunResponse struct {
	Presentation model.WirePresentation `json:"presentation"`
	View         render.View            `json:"view"`
	ResultKind   string                 `json:"result_kind"`
	Operations   []OperationSummary     `json:"operations"`
}

// OperationSummary reports one operation call without its result rows.
type OperationSummary struct {
	Name       string `json:"name"`
	Succeeded  bool   `json:"succeeded"`
	Error      string `json:"error,omitempty"`
	Discovery  bool   `json:"discovery,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func summarise(calls []model.OperationCall) []OperationSummary {
	out := make([]OperationSummary, 0, len(calls))
	for _, c := range calls {
		out = append(out, OperationSummary{
			Name:       c.Name,
			Succeeded:  c.Succeeded(),
			Error:      c.Error,
			Discovery:  c.Discovery,
			DurationMS: c.Duration.Milliseconds(),
		})
	}
	return out
}

// SessionResponse describes a session.
type SessionResponse struct {
	AppName   string         `json:"appName"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	CreatedAt time.Time      `json:"created_at"`
	Created   *bool          `json:"created,omitempty"`
	Turns     []TurnResponse `json:"turns,omitempty"`
}

// TurnResponse is a stored turn, re-rendered.
type TurnResponse struct {
	Question     string                 `json:"question"`
	Presentation model.WirePresentation `json:"presentation"`
	View         render.View            `json:"view"`
	CreatedAt    time.Time              `json:"created_at"`
}

func sessionResponse(sess *model.Session) SessionResponse {
	return SessionResponse{
		AppName:   sess.AppName,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
		CreatedAt: sess.CreatedAt,
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
