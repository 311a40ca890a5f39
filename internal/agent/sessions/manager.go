// Package sessions keeps the conversation around the pipeline: session
// bootstrap, the turn history shown to the retriever, and saved answers.
package sessions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

type Manager struct {
	repo         model.SessionRepository
	appName      string
	historyTurns int
}

func NewManager(repo model.SessionRepository, config model.SessionConfig) *Manager {
	return &Manager{
		repo:         repo,
		appName:      config.AppName,
		historyTurns: config.HistoryTurns,
	}
}

// AppName is the default application name for keys that omit one.
func (m *Manager) AppName() string {
	return m.appName
}

// Key fills in the default application name.
func (m *Manager) Key(appName, userID, sessionID string) model.SessionKey {
	if strings.TrimSpace(appName) == "" {
		appName = m.appName
	}
	return model.SessionKey{AppName: appName, UserID: userID, SessionID: sessionID}
}

// Ensure creates the session unless it exists. An existing session is
// success, so repeated bootstrap is safe.
func (m *Manager) Ensure(ctx context.Context, key model.SessionKey) (*model.Session, bool, error) {
	sess, created, err := m.repo.Create(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if created {
		logx.Info().Str("session_id", key.SessionID).Str("user_id", key.UserID).Msg("Session created")
	} else {
		logx.Debug().Str("session_id", key.SessionID).Msg("Session already exists")
	}
	return sess, created, nil
}

// Load returns the session and its turns, oldest first.
func (m *Manager) Load(ctx context.Context, key model.SessionKey) (*model.Session, []model.Turn, error) {
	sess, err := m.repo.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	turns, err := m.repo.Turns(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return sess, turns, nil
}

// RecentQuestions returns the questions of the last few turns, oldest first.
// A missing session has no history.
func (m *Manager) RecentQuestions(ctx context.Context, key model.SessionKey) ([]string, error) {
	if m.historyTurns <= 0 {
		return nil, nil
	}
	turns, err := m.repo.Turns(ctx, key)
	if err != nil {
		if errors.Is(err, errx.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	recent := trimTail(turns, m.historyTurns)
	questions := make([]string, 0, len(recent))
	for _, t := range recent {
		if q := strings.TrimSpace(t.Question); q != "" {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

// Delete removes the session and its turns.
func (m *Manager) Delete(ctx context.Context, key model.SessionKey) error {
	if err := m.repo.Delete(ctx, key); err != nil {
		return err
	}
	logx.Info().Str("session_id", key.SessionID).Msg("Session deleted")
	return nil
}

// SaveTurn appends the answered question to the session.
func (m *Manager) SaveTurn(ctx context.Context, key model.SessionKey, question string, p *model.FinalPresentation) error {
	wire, err := p.Wire()
	if err != nil {
		return err
	}
	return m.repo.AppendTurn(ctx, key, model.Turn{
		Question:     question,
		Presentation: wire,
		CreatedAt:    time.Now().UTC(),
	})
}

// ====================== Helper function ======================
func trimTail(turns []model.Turn, maxTurns int) []model.Turn {
	if len(turns) <= maxTurns {
		result := make([]model.Turn, len(turns))
		copy(result, turns)
		return result
	}
	source := turns[len(turns)-maxTurns:]
	result := make([]model.Turn, len(source))
	copy(result, source)
	return result
}
