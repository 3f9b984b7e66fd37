package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims carried by an access token. The subject is the
// verified wallet address.
type AccessClaims struct {
	jwt.RegisteredClaims
}
