// Package redistore provides a Redis-backed session store for deployments
// that keep sessions out of the primary database. Semantics match the
// default store: a miss reads as not found, claims-only updates keep the
// existing TTL, and deletes remove the whole session.
package redistore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/leadlocal/go-auth"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "auth:session:"

type Store struct {
	client *redis.Client
	prefix string
}

var _ auth.SessionStore = (*Store)(nil)

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultKeyPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type Option func(*Store)

// WithKeyPrefix overrides the redis key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func (s *Store) Get(ctx context.Context, sessionID string) (*auth.SessionClaims, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to load session from redis")
	}

	claims := &auth.SessionClaims{}
	if err := json.Unmarshal(raw, claims); err != nil {
		// an unreadable record is as good as no record; drop it
		_ = s.client.Del(ctx, s.key(sessionID)).Err()
		return nil, auth.ErrSessionNotFound
	}

	return claims, nil
}

// Put stores the claims under the session key. A non-positive ttl keeps the
// key's current expiry so healing a session never extends it; storing a
// claims-only update for a vanished key reads as a miss.
func (s *Store) Put(ctx context.Context, sessionID string, claims *auth.SessionClaims, ttl time.Duration) error {
	if claims == nil {
		return errors.New("session claims are required", errors.CategoryBadInput)
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to encode session claims")
	}

	if ttl <= 0 {
		ok, err := s.client.SetXX(ctx, s.key(sessionID), raw, redis.KeepTTL).Result()
		if err != nil {
			return errors.Wrap(err, errors.CategoryOperation, "failed to update session in redis")
		}
		if !ok {
			return auth.ErrSessionNotFound
		}
		return nil
	}

	if err := s.client.Set(ctx, s.key(sessionID), raw, ttl).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to persist session in redis")
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "failed to delete session from redis")
	}
	return nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}
