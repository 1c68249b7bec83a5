package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreateAndGet(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	s := &models.Session{
		ID:         "sess-1",
		Address:    "0xabc",
		ChainID:    1,
		DID:        "did:pkh:eip155:1:0xabc",
		VerifiedAt: now,
		CreatedAt:  now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}

	mock.ExpectExec(`INSERT\s+INTO\s+sessions`).
		WithArgs(s.ID, s.Address, s.ChainID, s.DID, s.VerifiedAt, s.CreatedAt, s.ExpiresAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "address", "chain_id", "did", "verified_at", "created_at", "expires_at"}).
		AddRow(s.ID, s.Address, s.ChainID, s.DID, s.VerifiedAt, s.CreatedAt, s.ExpiresAt)
	mock.ExpectQuery(`SELECT\s+id,.*FROM\s+sessions`).
		WithArgs("sess-1").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Address != "0xabc" || got.DID != s.DID {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,.*FROM\s+sessions`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
}

func TestDeleteForAddress(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+address\s*=\s*\$1`).
		WithArgs("0xabc").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteForAddress(context.Background(), "0xabc")
	if err != nil || n != 2 {
		t.Fatalf("DeleteForAddress: n=%d err=%v", n, err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	before := time.Now()
	mock.ExpectExec(`DELETE\s+FROM\s+sessions\s+WHERE\s+expires_at\s*<\s*\$1`).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteExpired(context.Background(), before)
	if err != nil || n != 5 {
		t.Fatalf("DeleteExpired: n=%d err=%v", n, err)
	}
}
