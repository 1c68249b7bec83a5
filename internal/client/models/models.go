// Package models defines the client-side data model: the identity binding
// between a user and a wallet address, the signable challenge, and the
// anchor record tracking what is registered on-chain.
package models

import "time"

// VerificationStatus describes how far the identity binding has progressed.
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusConnected  VerificationStatus = "connected"
	StatusVerified   VerificationStatus = "verified"
	StatusError      VerificationStatus = "error"
)

// IdentityBinding associates the local user with a wallet address on one
// chain. Verified implies a successful signature check for exactly this
// address/chain pair; any address or chain change demotes the status.
type IdentityBinding struct {
	Address            string             `json:"address"`
	ChainID            int64              `json:"chainId"`
	DecentralizedID    string             `json:"decentralizedId"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	VerifiedAt         *time.Time         `json:"verifiedAt,omitempty"`
}

// Challenge is a single-use signable message issued by the backend verifier.
// RequestID correlates the later verify submission with this issuance.
type Challenge struct {
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// AnchorRecord is the locally persisted view of one anchored document.
// TransactionHash may be empty when the record was adopted from chain state
// rather than a locally submitted transaction.
type AnchorRecord struct {
	ContentID       string    `json:"contentId"`
	GatewayURL      string    `json:"gatewayUrl"`
	TransactionHash string    `json:"transactionHash,omitempty"`
	AttachedAt      time.Time `json:"attachedAt"`
	Encrypted       bool      `json:"encrypted"`
	OwnerAddress    string    `json:"ownerAddress"`
	DocumentClass   string    `json:"documentClass"`
	Pending         bool      `json:"pending,omitempty"`
}
