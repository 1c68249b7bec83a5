// Package models defines the server-side data model: issued challenges and
// the sessions minted after a successful signature verification.
package models

import "time"

// Challenge is one issued signable message. It is bound to the address and
// chain it was requested for and is single-use: UsedAt is set exactly once
// by the consuming verify call.
type Challenge struct {
	RequestID string
	Address   string
	ChainID   int64
	DID       string
	Message   string
	Nonce     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Expired reports whether the challenge is past its expiry at t.
func (c *Challenge) Expired(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// Session is a verified identity binding held server-side and referenced by
// the session cookie.
type Session struct {
	ID         string
	Address    string
	ChainID    int64
	DID        string
	VerifiedAt time.Time
	CreatedAt  time.Time
	ExpiresAt  time.Time
}
