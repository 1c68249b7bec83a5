// Package common contains shared constants and sentinel errors used across
// ChainAnchor components.
package common

// SessionCookieName is the HTTP cookie carrying the signed session token.
const SessionCookieName = "chainanchor_session"
