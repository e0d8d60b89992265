// This file implements SessionService: listing, reading, and deleting
// persisted conversation threads on behalf of their owner.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akimychev/converse/internal/common"
	"github.com/akimychev/converse/internal/logging"
	"github.com/akimychev/converse/internal/server/cache"
	"github.com/akimychev/converse/internal/server/models"
	"github.com/akimychev/converse/internal/server/repositories/repomanager"
)

// SessionDetail bundles a session row with its full ordered turn log.
type SessionDetail struct {
	Session *models.Session
	Turns   []*models.Turn
}

// SessionService reads and deletes sessions. Every session-scoped call
// verifies ownership before touching data; this gate is what keeps tenants
// isolated from each other.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       cache.ConversationCache
	logger      logging.Logger
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, c cache.ConversationCache, l logging.Logger) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: m,
		cache:       c,
		logger:      l.With("module", "session_service"),
	}
}

// ListSessions returns all sessions owned by the caller, oldest first.
// No pagination yet; a user with thousands of sessions will feel it.
func (s *SessionService) ListSessions(ctx context.Context, ownerID string) ([]*models.Session, error) {
	out, err := s.repomanager.Sessions(s.db).ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("session list: %w", err)
	}
	return out, nil
}

// GetSessionDetail returns the session and its turn log after verifying the
// caller owns it.
func (s *SessionService) GetSessionDetail(ctx context.Context, callerID, sessionID string) (*SessionDetail, error) {
	sess, err := s.authorize(ctx, callerID, sessionID)
	if err != nil {
		return nil, err
	}

	turns, err := s.repomanager.Turns(s.db).ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("turn log read: %w", err)
	}
	return &SessionDetail{Session: sess, Turns: turns}, nil
}

// DeleteSession removes the session and its turns (cascade) after verifying
// ownership, then eagerly drops the cache entry so a stale state cannot be
// served for the remainder of its TTL.
func (s *SessionService) DeleteSession(ctx context.Context, callerID, sessionID string) error {
	if _, err := s.authorize(ctx, callerID, sessionID); err != nil {
		return err
	}

	if err := s.repomanager.Sessions(s.db).Delete(ctx, sessionID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("session delete: %w", err)
	}

	if err := s.cache.Invalidate(ctx, sessionID); err != nil {
		s.logger.Warn(ctx, "cache invalidate failed", "session_id", sessionID, "error", err.Error())
	}
	return nil
}

func (s *SessionService) authorize(ctx context.Context, callerID, sessionID string) (*models.Session, error) {
	sess, err := s.repomanager.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if sess.OwnerID != callerID {
		return nil, common.ErrorForbidden
	}
	return sess, nil
}
