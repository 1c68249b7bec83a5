package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/server/config"
	"github.com/akarpov91/chainanchor/internal/server/models"
)

func newSessionService(t *testing.T) (*SessionService, *fakeRepoManager) {
	t.Helper()
	db, err := openTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	rm := newFakeRepoManager()
	return NewSessionService(db, rm, cfg), rm
}

func storedSession(rm *fakeRepoManager, expiresIn time.Duration) *models.Session {
	now := time.Now().UTC()
	s := &models.Session{
		ID:         uuid.NewString(),
		Address:    "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		ChainID:    1,
		DID:        "did:pkh:eip155:1:0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		VerifiedAt: now,
		CreatedAt:  now,
		ExpiresAt:  now.Add(expiresIn),
	}
	_ = rm.sessions.Create(context.Background(), s)
	return s
}

func TestSessionGet(t *testing.T) {
	svc, rm := newSessionService(t)
	s := storedSession(rm, time.Hour)

	got, err := svc.Get(t.Context(), s.ID)
	require.NoError(t, err)
	require.Equal(t, s.Address, got.Address)
	require.Equal(t, s.DID, got.DID)
}

func TestSessionGet_Missing(t *testing.T) {
	svc, _ := newSessionService(t)
	_, err := svc.Get(t.Context(), "unknown")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestSessionGet_ExpiredIsDeleted(t *testing.T) {
	svc, rm := newSessionService(t)
	s := storedSession(rm, -time.Minute)

	_, err := svc.Get(t.Context(), s.ID)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = rm.sessions.Get(t.Context(), s.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSessionRevoke(t *testing.T) {
	svc, rm := newSessionService(t)
	s := storedSession(rm, time.Hour)

	require.NoError(t, svc.Revoke(t.Context(), s.ID))
	_, err := svc.Get(t.Context(), s.ID)
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	// revoking again is a no-op
	require.NoError(t, svc.Revoke(t.Context(), s.ID))
}

func TestSessionCleanup(t *testing.T) {
	svc, rm := newSessionService(t)
	storedSession(rm, -time.Minute)
	keep := storedSession(rm, time.Hour)

	n, err := svc.Cleanup(t.Context())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = svc.Get(t.Context(), keep.ID)
	require.NoError(t, err)
}
