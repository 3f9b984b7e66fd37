package ports

// Tokenizer converts between a verified wallet identity and a transport
// credential, so clients need not re-sign a challenge on every request.
type Tokenizer interface {
	// IdentityToToken issues a short-lived access token for the address.
	IdentityToToken(address string) (token string, expiresIn int64, err error)

	// TokenToIdentity validates a token and returns the wallet address it
	// was issued for.
	TokenToIdentity(token string) (address string, err error)
}
