// Package config loads the externally supplied deployment configuration.
// Nothing here is business logic: prices, limits and secrets all arrive from
// the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full deployment configuration surface.
type Config struct {
	ListenAddr string `env:"FEEDGATE_LISTEN_ADDR" envDefault:":8080"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// AdminAPIKey guards operator endpoints. Leaving it unset disables
	// admin routes with a server error, never silently.
	AdminAPIKey string `env:"ADMIN_API_KEY"`

	AuthDomain         string        `env:"AUTH_DOMAIN" envDefault:"feedgate.local"`
	ChallengeTTL       time.Duration `env:"CHALLENGE_TTL" envDefault:"5m"`
	TimestampTolerance time.Duration `env:"TIMESTAMP_TOLERANCE" envDefault:"5m"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`

	// AccessTokenKey is a PEM-encoded ECDSA P-256 private key shared by all
	// instances so access tokens validate everywhere. When unset, each
	// process signs with its own ephemeral key and tokens are only valid on
	// the instance that issued them.
	AccessTokenKey string `env:"ACCESS_TOKEN_KEY"`

	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"10s"`
	RateLimitMax         int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	NonceRateLimitWindow time.Duration `env:"NONCE_RATE_LIMIT_WINDOW" envDefault:"1m"`
	NonceRateLimitMax    int           `env:"NONCE_RATE_LIMIT_MAX" envDefault:"10"`

	// MaxBodyBytes caps content-creation request bodies. Default 50 MB.
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"52428800"`

	FacilitatorURL string `env:"FACILITATOR_URL" envDefault:"https://x402.org/facilitator"`
	PayTo          string `env:"PAY_TO"`
	PriceAmount    string `env:"PRICE_AMOUNT" envDefault:"1000"`
	PriceAsset     string `env:"PRICE_ASSET" envDefault:"USDC"`
	PriceNetwork   string `env:"PRICE_NETWORK" envDefault:"base"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
