package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// bunSessionStore is the default SessionStore: one row per live session.
// Expired rows read as a miss; a reaper can clear them out of band.
type bunSessionStore struct {
	db     *bun.DB
	logger Logger
}

var _ SessionStore = (*bunSessionStore)(nil)

// NewSessionStore creates a bun-backed SessionStore.
func NewSessionStore(db *bun.DB) SessionStore {
	return &bunSessionStore{
		db:     db,
		logger: defLogger{},
	}
}

func (s *bunSessionStore) Get(ctx context.Context, sessionID string) (*SessionClaims, error) {
	record := &SessionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", sessionID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session")
	}

	if time.Now().After(record.ExpiresAt) {
		if _, err := s.db.NewDelete().
			Model((*SessionRecord)(nil)).
			Where("id = ?", sessionID).
			Exec(ctx); err != nil {
			s.logger.Warn("failed to delete expired session", "error", err)
		}
		return nil, ErrSessionNotFound
	}

	claims := record.Claims
	return &claims, nil
}

// Put upserts the session. A non-positive ttl updates the claims in place
// without touching the existing expiry, so healing a session never extends
// its lifetime.
func (s *bunSessionStore) Put(ctx context.Context, sessionID string, claims *SessionClaims, ttl time.Duration) error {
	if claims == nil {
		return errors.New("session claims are required", errors.CategoryBadInput)
	}

	now := time.Now()

	if ttl <= 0 {
		res, err := s.db.NewUpdate().
			Model((*SessionRecord)(nil)).
			Set("claims = ?", claims).
			Set("updated_at = ?", now).
			Where("id = ?", sessionID).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to update session")
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			return ErrSessionNotFound
		}
		return nil
	}

	record := &SessionRecord{
		ID:        sessionID,
		Claims:    *claims,
		ExpiresAt: now.Add(ttl),
		UpdatedAt: &now,
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("claims = EXCLUDED.claims").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to persist session")
	}

	return nil
}

// Delete removes the whole session row: identity and impersonation claims go
// together, there is no partial logout.
func (s *bunSessionStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.NewDelete().
		Model((*SessionRecord)(nil)).
		Where("id = ?", sessionID).
		Exec(ctx)

	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete session")
	}

	return nil
}
