package core

import "time"

// Challenge represents a single-use authentication challenge. The nonce is
// the store key; the challenge is consumed exactly once by a successful
// verification or expires via TTL.
type Challenge struct {
	Nonce     string    // Random nonce to be embedded in the signed message
	Address   string    // Wallet address the challenge was issued for
	Message   string    // Canonical message the wallet must sign
	IssuedAt  time.Time // When the challenge was created
	ExpiresAt time.Time // When the challenge expires
}
