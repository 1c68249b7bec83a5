package challenges

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

func (r *PostgresRepository) Create(ctx context.Context, c *models.Challenge) error {

	query :=
		`INSERT INTO challenges (request_id, address, chain_id, did, message, nonce, created_at, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 `

	_, err := r.db.ExecContext(ctx, query,
		c.RequestID, c.Address, c.ChainID, c.DID, c.Message, c.Nonce, c.CreatedAt, c.ExpiresAt)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, requestID string) (*models.Challenge, error) {
	query :=
		`SELECT request_id, address, chain_id, did, message, nonce, created_at, expires_at, used_at
		 FROM challenges
		 WHERE request_id = $1
		 `

	c := &models.Challenge{}
	err := r.db.QueryRowContext(ctx, query, requestID).Scan(
		&c.RequestID, &c.Address, &c.ChainID, &c.DID, &c.Message, &c.Nonce,
		&c.CreatedAt, &c.ExpiresAt, &c.UsedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return c, nil
}

// Consume flips used_at exactly once. The WHERE used_at IS NULL guard makes
// concurrent verify calls race safely: one wins, the rest see reuse.
func (r *PostgresRepository) Consume(ctx context.Context, requestID string, usedAt time.Time) (bool, error) {
	query :=
		`UPDATE challenges SET used_at = $2
		 WHERE request_id = $1 AND used_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, requestID, usedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return affected == 1, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query :=
		`DELETE FROM challenges
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
