package tokenizer

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ParseSigningKey decodes a PEM-encoded ECDSA private key, accepting both
// SEC 1 ("EC PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings. A shared
// deployment key keeps access tokens valid across all instances.
func ParseSigningKey(pemData string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing key must be ECDSA, got %T", parsed)
	}
	return key, nil
}
