// Package session persists the local identity binding and anchor records in
// a sqlite database. It is the single writer for this state; other
// components read it through the authenticator's in-memory view.
//
// Corrupted rows (malformed JSON, partial writes) are treated as absent
// rather than raised: losing a cached binding only forces a re-verification,
// while a hard error here would brick the client.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/akarpov91/chainanchor/internal/client/migrations"
	"github.com/akarpov91/chainanchor/internal/client/models"
)

const bindingKey = "identity_binding"

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at dsn and applies
// pending schema migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session db open error: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session db migration error: %w", err)
	}
	return &Store{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveBinding persists the identity binding, replacing any previous one.
func (s *Store) SaveBinding(ctx context.Context, b *models.IdentityBinding) error {
	value, err := json.Marshal(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, bindingKey, value)
	if err != nil {
		return fmt.Errorf("failed to save identity binding: %w", err)
	}
	return nil
}

// LoadBinding returns the persisted identity binding, or nil when absent.
// Malformed stored data is discarded and reported as absent.
func (s *Store) LoadBinding(ctx context.Context) (*models.IdentityBinding, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, bindingKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity binding: %w", err)
	}

	b := &models.IdentityBinding{}
	if err := json.Unmarshal(value, b); err != nil {
		_ = s.ClearBinding(ctx)
		return nil, nil
	}
	return b, nil
}

// ClearBinding removes the persisted identity binding.
func (s *Store) ClearBinding(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, bindingKey)
	if err != nil {
		return fmt.Errorf("failed to clear identity binding: %w", err)
	}
	return nil
}

// SaveAnchor upserts the anchor record for its (owner, document class) key.
func (s *Store) SaveAnchor(ctx context.Context, r *models.AnchorRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anchors
		  (owner_address, document_class, content_id, gateway_url, transaction_hash, attached_at, encrypted, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_address, document_class) DO UPDATE SET
		  content_id = excluded.content_id,
		  gateway_url = excluded.gateway_url,
		  transaction_hash = excluded.transaction_hash,
		  attached_at = excluded.attached_at,
		  encrypted = excluded.encrypted,
		  pending = excluded.pending
	`, r.OwnerAddress, r.DocumentClass, r.ContentID, r.GatewayURL, r.TransactionHash,
		r.AttachedAt.UTC().Format(time.RFC3339Nano), boolToInt(r.Encrypted), boolToInt(r.Pending))
	if err != nil {
		return fmt.Errorf("failed to save anchor record: %w", err)
	}
	return nil
}

// LoadAnchor returns the anchor record for (owner, documentClass), or nil
// when absent.
func (s *Store) LoadAnchor(ctx context.Context, owner, documentClass string) (*models.AnchorRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_id, gateway_url, transaction_hash, attached_at, encrypted, pending
		FROM anchors WHERE owner_address = ? AND document_class = ?
	`, owner, documentClass)

	var (
		r          models.AnchorRecord
		attachedAt string
		encryptedI int
		pendingI   int
	)
	err := row.Scan(&r.ContentID, &r.GatewayURL, &r.TransactionHash, &attachedAt, &encryptedI, &pendingI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load anchor record: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, attachedAt)
	if err != nil {
		// corrupted row: discard rather than fail
		_, _ = s.db.ExecContext(ctx, `DELETE FROM anchors WHERE owner_address = ? AND document_class = ?`, owner, documentClass)
		return nil, nil
	}

	r.OwnerAddress = owner
	r.DocumentClass = documentClass
	r.AttachedAt = ts
	r.Encrypted = encryptedI != 0
	r.Pending = pendingI != 0
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
