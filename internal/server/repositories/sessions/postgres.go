package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/dbx"
	"github.com/akarpov91/chainanchor/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {

	query :=
		`INSERT INTO sessions (id, address, chain_id, did, verified_at, created_at, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Address, s.ChainID, s.DID, s.VerifiedAt, s.CreatedAt, s.ExpiresAt)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query :=
		`SELECT id, address, chain_id, did, verified_at, created_at, expires_at
		 FROM sessions
		 WHERE id = $1
		 `

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Address, &s.ChainID, &s.DID, &s.VerifiedAt, &s.CreatedAt, &s.ExpiresAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query :=
		`DELETE FROM sessions
		 WHERE id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteForAddress revokes every session bound to address, e.g. after the
// wallet reports an account change.
func (r *PostgresRepository) DeleteForAddress(ctx context.Context, address string) (int64, error) {
	query :=
		`DELETE FROM sessions
		 WHERE address = $1
		 `

	res, err := r.db.ExecContext(ctx, query, address)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query :=
		`DELETE FROM sessions
		 WHERE expires_at < $1
		 `

	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
