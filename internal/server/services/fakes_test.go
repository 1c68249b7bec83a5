package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/dbx"
	"github.com/akarpov91/chainanchor/internal/server/models"
	"github.com/akarpov91/chainanchor/internal/server/repositories/challenges"
	"github.com/akarpov91/chainanchor/internal/server/repositories/sessions"
)

// fakeChallengeRepo is an in-memory challenges.Repository. The same instance
// is handed out regardless of the DBTX, which is enough for service tests:
// the transactional path is exercised, the SQL layer is covered by the
// repository tests.
type fakeChallengeRepo struct {
	mu    sync.Mutex
	items map[string]*models.Challenge
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{items: make(map[string]*models.Challenge)}
}

func (r *fakeChallengeRepo) Create(ctx context.Context, c *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.RequestID] = &cp
	return nil
}

func (r *fakeChallengeRepo) Get(ctx context.Context, requestID string) (*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[requestID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeChallengeRepo) Consume(ctx context.Context, requestID string, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[requestID]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	t := usedAt
	c.UsedAt = &t
	return true, nil
}

func (r *fakeChallengeRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.items {
		if c.ExpiresAt.Before(before) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

type fakeSessionRepo struct {
	mu    sync.Mutex
	items map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{items: make(map[string]*models.Session)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.items[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *fakeSessionRepo) DeleteForAddress(ctx context.Context, address string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.items {
		if s.Address == address {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.items {
		if s.ExpiresAt.Before(before) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct {
	challenges *fakeChallengeRepo
	sessions   *fakeSessionRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		challenges: newFakeChallengeRepo(),
		sessions:   newFakeSessionRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Challenges(db dbx.DBTX) challenges.Repository        { return m.challenges }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository            { return m.sessions }

// openTestDB provides a real *sql.DB so dbx.WithTx has something to begin
// transactions on. The fakes ignore the handle.
func openTestDB() (*sql.DB, error) {
	return sql.Open("sqlite", "file:servicetest?mode=memory&cache=shared")
}
