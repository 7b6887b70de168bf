// Package token builds and verifies the broker's signed tokens and defines
// the OAuth-shaped token payload exchanged with providers and callers.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// GrantTypeClientCredentials is the grant type reported on broker tokens
const GrantTypeClientCredentials = "client_credentials"

// Token is an OAuth-style token payload. The same shape is returned by
// providers and by the broker itself, and is what gets cached: timestamps
// marshal as RFC 3339 so cached bytes round-trip identically.
type Token struct {
	AccessToken string    `json:"access_token"`
	GrantType   string    `json:"grant_type,omitempty"`
	TokenType   string    `json:"token_type"`
	IssuedAt    time.Time `json:"iat"`
	ExpiresAt   time.Time `json:"exp"`
}

// Claims is the broker token claim set: the routing identifiers plus a
// reference to the authorization code that produced it. The raw code is
// never embedded.
type Claims struct {
	MCC     string
	SN      string
	AuthRef string

	// Populated on decode
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AuthRef derives the authorization-code reference claim: a SHA-256 digest,
// so the token carries proof of which code was exchanged without disclosing
// it
func AuthRef(authCode string) string {
	sum := sha256.Sum256([]byte(authCode))
	return hex.EncodeToString(sum[:])
}
