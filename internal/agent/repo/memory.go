// Package repo persists sessions and their turns.
package repo

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
)

type memorySession struct {
	session model.Session
	turns   []model.Turn
}

// MemorySessionRepository keeps sessions in process memory with the same
// sliding TTL as the Redis store. Used when no Redis URL is configured.
type MemorySessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	exp := ttl
	if exp <= 0 {
		exp = cache.NoExpiration
	}
	cleanup := 10 * time.Minute
	if ttl > 0 && ttl < cleanup {
		cleanup = ttl
	}
	return &MemorySessionRepository{cache: cache.New(exp, cleanup), ttl: exp}
}

func (r *MemorySessionRepository) load(key model.SessionKey) (*memorySession, bool) {
	v, ok := r.cache.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(*memorySession), true
}

func (r *MemorySessionRepository) Create(_ context.Context, key model.SessionKey) (*model.Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.load(key); ok {
		sess := s.session
		return &sess, false, nil
	}
	s := &memorySession{session: model.Session{SessionKey: key, CreatedAt: time.Now().UTC()}}
	r.cache.Set(key.String(), s, r.ttl)
	sess := s.session
	return &sess, true, nil
}

func (r *MemorySessionRepository) Get(_ context.Context, key model.SessionKey) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.load(key)
	if !ok {
		return nil, errx.ErrSessionNotFound
	}
	sess := s.session
	return &sess, nil
}

// AppendTurn adds turn to an existing session and refreshes its TTL.
func (r *MemorySessionRepository) AppendTurn(_ context.Context, key model.SessionKey, turn model.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.load(key)
	if !ok {
		return errx.ErrSessionNotFound
	}
	s.turns = append(s.turns, turn)
	r.cache.Set(key.String(), s, r.ttl)
	return nil
}

func (r *MemorySessionRepository) Turns(_ context.Context, key model.SessionKey) ([]model.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.load(key)
	if !ok {
		return []model.Turn{}, nil
	}
	out := make([]model.Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, key model.SessionKey) error {
	r.cache.Delete(key.String())
	return nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
