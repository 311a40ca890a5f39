package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smartsearch/corporate-agent/internal/agent/model"
	errx "github.com/smartsearch/corporate-agent/internal/core/error"
	logx "github.com/smartsearch/corporate-agent/pkg/logger"
)

type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(key model.SessionKey) string {
	return fmt.Sprintf("session:%s", key)
}

func (r *RedisSessionRepository) turnsKey(key model.SessionKey) string {
	return fmt.Sprintf("session:%s:turns", key)
}

func (r *RedisSessionRepository) Create(ctx context.Context, key model.SessionKey) (*model.Session, bool, error) {
	sess := &model.Session{SessionKey: key, CreatedAt: time.Now().UTC()}
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, false, fmt.Errorf("marshal session: %w", err)
	}

	k := r.sessionKey(key)
	created, err := r.rdb.SetNX(ctx, k, b, r.ttl).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to create session in redis")
		return nil, false, errx.WrapRedis(err)
	}
	if created {
		return sess, true, nil
	}

	// already there: creation is idempotent
	existing, err := r.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *RedisSessionRepository) Get(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	k := r.sessionKey(key)
	s, err := r.rdb.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.ErrSessionNotFound
		}
		logx.Error().Err(err).Str("key", k).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}
	var sess model.Session
	if err := json.Unmarshal([]byte(s), &sess); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// AppendTurn adds turn to an existing session and refreshes its TTL. Turns
// are never written for a session that has expired or was never created.
func (r *RedisSessionRepository) AppendTurn(ctx context.Context, key model.SessionKey, turn model.Turn) error {
	b, err := json.Marshal(turn)
	if err != nil {
		logx.Error().Err(err).Str("session_id", key.SessionID).Msg("failed to marshal turn")
		return fmt.Errorf("marshal turn: %w", err)
	}
	k := r.turnsKey(key)

	sk := r.sessionKey(key)
	n, err := r.rdb.Exists(ctx, sk).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", sk).Msg("failed to check session in redis")
		return errx.WrapRedis(err)
	}
	if n == 0 {
		return errx.ErrSessionNotFound
	}

	// append turn
	if err := r.rdb.RPush(ctx, k, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to push turn to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		for _, touched := range []string{k, r.sessionKey(key)} {
			if ok, err := r.rdb.Expire(ctx, touched, r.ttl).Result(); err != nil {
				logx.Error().Err(err).Str("key", touched).Msg("failed to set expire")
				return errx.WrapRedis(err)
			} else if !ok {
				logx.Warn().Str("key", touched).Dur("ttl", r.ttl).Msg("failed to set TTL on session key")
			}
		}
	}
	return nil
}

func (r *RedisSessionRepository) Turns(ctx context.Context, key model.SessionKey) ([]model.Turn, error) {
	k := r.turnsKey(key)

	rows, err := r.rdb.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.Turn{}, nil
		}
		logx.Error().Err(err).Str("key", k).Msg("failed to load turns from redis")
		return nil, errx.WrapRedis(err)
	}

	turns := make([]model.Turn, 0, len(rows))
	for i, s := range rows {
		var t model.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			logx.Error().Err(err).Str("session_id", key.SessionID).Int("index", i).Msg("failed to unmarshal turn")
			return nil, fmt.Errorf("unmarshal turn at index %d: %w", i, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, key model.SessionKey) error {
	if err := r.rdb.Del(ctx, r.sessionKey(key), r.turnsKey(key)).Err(); err != nil {
		logx.Error().Err(err).Str("session_id", key.SessionID).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
