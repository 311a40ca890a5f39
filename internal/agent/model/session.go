package model

import (
	"context"
	"time"
)

// SessionKey identifies a session the way the hosting server addresses it.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (k SessionKey) String() string {
	return k.AppName + "/" + k.UserID + "/" + k.SessionID
}

// Session is the persisted identity of one conversation.
type Session struct {
	SessionKey
	CreatedAt time.Time `json:"created_at"`
}

// Turn pairs a user question with the answer given to it. Turns are
// append-only within a session.
type Turn struct {
	Question     string           `json:"question"`
	Presentation WirePresentation `json:"presentation"`
	CreatedAt    time.Time        `json:"created_at"`
}

type SessionRepository interface {
	// Create stores the session if it does not exist yet. created is false
	// when the session already existed; that is not an error.
	Create(ctx context.Context, key SessionKey) (sess *Session, created bool, err error)

	// Get returns the session or errx.ErrSessionNotFound.
	Get(ctx context.Context, key SessionKey) (*Session, error)

	// AppendTurn adds a turn to the end of the session's history.
	AppendTurn(ctx context.Context, key SessionKey, turn Turn) error

	// Turns returns the session's turns, oldest first.
	Turns(ctx context.Context, key SessionKey) ([]Turn, error)

	// Delete removes the session and its turns.
	Delete(ctx context.Context, key SessionKey) error
}
