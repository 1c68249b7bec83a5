// Package services contains server-side business logic. This file implements
// ChallengeService: issuing single-use signable challenges and verifying the
// wallet signatures submitted against them.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/akarpov91/chainanchor/internal/common"
	"github.com/akarpov91/chainanchor/internal/dbx"
	"github.com/akarpov91/chainanchor/internal/server/config"
	"github.com/akarpov91/chainanchor/internal/server/models"
	"github.com/akarpov91/chainanchor/internal/server/repositories/repomanager"
)

// ChallengeService issues challenges and turns verified signatures into
// sessions.
type ChallengeService struct {
	db                        *sql.DB
	repomanager               repomanager.RepositoryManager
	challengeValidityDuration time.Duration
	sessionValidityDuration   time.Duration
	expectedChainID           int64
}

func NewChallengeService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *ChallengeService {
	return &ChallengeService{
		db:                        db,
		repomanager:               m,
		challengeValidityDuration: cfg.ChallengeValidityDuration,
		sessionValidityDuration:   cfg.SessionValidityDuration,
		expectedChainID:           cfg.ExpectedChainID,
	}
}

// DID derives the did:pkh identifier the server considers authoritative for
// an address on a chain.
func DID(chainID int64, address string) string {
	return fmt.Sprintf("did:pkh:eip155:%d:%s", chainID, address)
}

// buildMessage renders the human-readable text the wallet will sign. The
// request id and nonce bind the text to exactly one issued challenge.
func buildMessage(address string, chainID int64, did, nonce, requestID string, issuedAt, expiresAt time.Time) string {
	var b strings.Builder
	b.WriteString("ChainAnchor wants you to verify ownership of:\n")
	b.WriteString(address)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Chain ID: %d\n", chainID)
	fmt.Fprintf(&b, "DID: %s\n", did)
	fmt.Fprintf(&b, "Nonce: %s\n", nonce)
	fmt.Fprintf(&b, "Request ID: %s\n", requestID)
	fmt.Fprintf(&b, "Issued At: %s\n", issuedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Expires At: %s", expiresAt.Format(time.RFC3339))
	return b.String()
}

// Issue creates and stores a fresh challenge for address on chainID. The
// server derives the DID itself; a client-supplied DID is accepted as input
// but never trusted.
func (s *ChallengeService) Issue(ctx context.Context, address string, chainID int64) (*models.Challenge, error) {
	if !gethcommon.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: invalid address %q", common.ErrVerificationFailed, address)
	}
	canonical := gethcommon.HexToAddress(address).Hex()
	did := DID(chainID, canonical)

	now := time.Now().UTC()
	challenge := &models.Challenge{
		RequestID: uuid.NewString(),
		Address:   canonical,
		ChainID:   chainID,
		DID:       did,
		Nonce:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.challengeValidityDuration),
	}
	challenge.Message = buildMessage(canonical, chainID, did, challenge.Nonce,
		challenge.RequestID, challenge.CreatedAt, challenge.ExpiresAt)

	repo := s.repomanager.Challenges(s.db)
	if err := repo.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("error creating challenge: %v", err)
	}
	return challenge, nil
}

// Verify checks a signature submission against the stored challenge and, on
// success, creates a session. The challenge is consumed in its own committed
// transaction before the signature check, so a failed attempt also burns it.
//
// Error mapping, in check order:
//   - unknown request id        -> ErrRequestIDMismatch
//   - already consumed          -> ErrChallengeReused
//   - past expiry               -> ErrChallengeExpired
//   - message or signer mismatch -> ErrVerificationFailed
func (s *ChallengeService) Verify(ctx context.Context, requestID, message, signatureHex, address string) (*models.Session, error) {
	repo := s.repomanager.Challenges(s.db)

	challenge, err := repo.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRequestIDMismatch
		}
		return nil, common.ErrorInternal
	}

	if challenge.UsedAt != nil {
		return nil, common.ErrChallengeReused
	}

	now := time.Now().UTC()
	if challenge.Expired(now) {
		return nil, common.ErrChallengeExpired
	}

	// The burn commits on its own, before any signature work. A failed
	// check below must not roll it back: the challenge is spent either way.
	txErr := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.repomanager.Challenges(tx).Consume(ctx, requestID, now)
		if err != nil {
			return common.ErrorInternal
		}
		if !ok {
			return common.ErrChallengeReused
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	if message != challenge.Message {
		return nil, common.ErrVerificationFailed
	}
	recovered, err := RecoverPersonalSigner(message, signatureHex)
	if err != nil {
		return nil, common.ErrVerificationFailed
	}
	if !strings.EqualFold(recovered.Hex(), challenge.Address) {
		return nil, common.ErrVerificationFailed
	}
	if address != "" && !strings.EqualFold(address, challenge.Address) {
		return nil, common.ErrVerificationFailed
	}

	session := &models.Session{
		ID:         uuid.NewString(),
		Address:    challenge.Address,
		ChainID:    challenge.ChainID,
		DID:        challenge.DID,
		VerifiedAt: now,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionValidityDuration),
	}
	txErr = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Sessions(tx).Create(ctx, session)
	})
	if txErr != nil {
		return nil, txErr
	}
	return session, nil
}

// RecoverPersonalSigner recovers the address that produced an EIP-191
// personal_sign signature over message. Wallet-style v values (27/28) are
// normalized before recovery.
func RecoverPersonalSigner(message, signatureHex string) (gethcommon.Address, error) {
	sig, err := hexutil.Decode(signatureHex)
	if err != nil {
		return gethcommon.Address{}, fmt.Errorf("signature decode error: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return gethcommon.Address{}, fmt.Errorf("bad signature length %d", len(sig))
	}

	// do not mutate the caller's slice
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return gethcommon.Address{}, fmt.Errorf("pubkey recovery error: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Cleanup removes expired challenges. Returns the number of rows dropped.
func (s *ChallengeService) Cleanup(ctx context.Context) (int64, error) {
	return s.repomanager.Challenges(s.db).DeleteExpired(ctx, time.Now().UTC())
}
