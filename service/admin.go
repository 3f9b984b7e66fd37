package service

import (
	"crypto/subtle"

	"github.com/feedgate-io/feedgate/core"
)

// AdminGuard checks the operator shared secret. Stateless.
type AdminGuard struct {
	key string
}

// NewAdminGuard creates a guard for the configured secret. An empty secret
// means admin auth is not configured and every check fails as a server-side
// misconfiguration, never as a client fault.
func NewAdminGuard(key string) *AdminGuard {
	return &AdminGuard{key: key}
}

// Verify compares the provided key in constant time to avoid timing side
// channels.
func (g *AdminGuard) Verify(provided string) error {
	if g.key == "" {
		return core.ErrAdminAuthNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(g.key)) != 1 {
		return core.ErrInvalidAdminKey
	}
	return nil
}
