package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/server/config"
	"github.com/akarpov91/chainanchor/internal/server/models"
	"github.com/akarpov91/chainanchor/internal/server/repositories/repomanager"
)

// SessionService resolves and revokes the sessions referenced by cookies.
type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, _ *config.Config) *SessionService {
	return &SessionService{db: db, repomanager: m}
}

// Get resolves a session by id. Missing or expired sessions yield
// ErrorUnauthorized; an expired row is deleted on the way out.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	repo := s.repomanager.Sessions(s.db)

	session, err := repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		_ = repo.Delete(ctx, id)
		return nil, common.ErrorUnauthorized
	}

	return session, nil
}

// Revoke deletes the session, invalidating its cookie. Revoking an unknown
// session is not an error.
func (s *SessionService) Revoke(ctx context.Context, id string) error {
	return s.repomanager.Sessions(s.db).Delete(ctx, id)
}

// Cleanup removes expired sessions. Returns the number of rows dropped.
func (s *SessionService) Cleanup(ctx context.Context) (int64, error) {
	return s.repomanager.Sessions(s.db).DeleteExpired(ctx, time.Now().UTC())
}
