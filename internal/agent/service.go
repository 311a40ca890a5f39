// Package agent answers questions within a session: it ensures the session,
// runs the pipeline with the session's recent questions and saves the turn.
package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/smartsearch/corporate-agent/internal/agent/graph"
	"github.com/smartsearch/corporate-agent/internal/agent/model"
	"github.com/smartsearch/corporate-agent/internal/agent/sessions"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

type Service struct {
	runner   graph.Runner
	sessions *sessions.Manager
}

func NewService(runner graph.Runner, sessions *sessions.Manager) *Service {
	return &Service{runner: runner, sessions: sessions}
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *sessions.Manager {
	return s.sessions
}

// Ask answers question in the session identified by key. Failing to persist
// the turn is logged and does not fail the answer.
func (s *Service) Ask(ctx context.Context, key model.SessionKey, question string) (*model.PipelineOutput, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if _, _, err := s.sessions.Ensure(ctx, key); err != nil {
		return nil, err
	}
	history, err := s.sessions.RecentQuestions(ctx, key)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", key.SessionID).Msg("Could not load session history; continuing without it")
		history = nil
	}

	out, err := s.runner.Run(ctx, model.QueryInput{
		SessionID: key.SessionID,
		Question:  question,
		History:   history,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SaveTurn(ctx, key, question, out.Presentation); err != nil {
		logx.Error().Err(err).Str("session_id", key.SessionID).Msg("Failed to save turn")
	}
	return out, nil
}
