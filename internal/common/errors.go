// Package common defines shared constants and sentinel errors used across
// client and server layers of ChainAnchor. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorInvalidToken = errors.New("invalid token")

	// Signer errors: surfaced to the user, never retried automatically.
	ErrNoSigner     = errors.New("no signer available")
	ErrNoAccount    = errors.New("signer returned no account")
	ErrUserRejected = errors.New("signing rejected by user")

	// Protocol errors: the caller should restart the flow (request a new
	// challenge) rather than retry the same submission.
	ErrChallengeExpired       = errors.New("challenge expired")
	ErrChallengeReused        = errors.New("challenge already used")
	ErrRequestIDMismatch      = errors.New("unknown challenge request id")
	ErrChallengeRequestFailed = errors.New("challenge request failed")
	ErrVerificationFailed     = errors.New("signature verification failed")

	// Chain errors.
	ErrWrongChain            = errors.New("connected to wrong chain")
	ErrRegistryNotConfigured = errors.New("registry contract not configured")
	ErrTransactionFailed     = errors.New("transaction reverted")
	ErrTransactionTimedOut   = errors.New("transaction confirmation timed out")
	ErrUploadFailed          = errors.New("content upload failed")

	// Cryptographic errors: always fatal to the operation.
	ErrInvalidKeyMaterial = errors.New("invalid key material")
	ErrDecryptionFailed   = errors.New("decryption failed")

	// Serialization guard: a primary action is already in flight.
	ErrBusy = errors.New("operation already in progress")
)
