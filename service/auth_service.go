package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/ports"
)

const (
	noncePrefix    = "auth:nonce:"
	consumedPrefix = "auth:consumed:"
)

// nonceInMessage extracts the hex nonce from a signed challenge message.
var nonceInMessage = regexp.MustCompile(`Nonce: ([0-9a-f]{64})`)

// AuthService issues and verifies single-use wallet challenges. All mutable
// state lives in the shared store; a nonce is accepted at most once across
// all instances because consumption is a single atomic SetNX on a consumed
// marker.
type AuthService struct {
	store     ports.Store
	tokenizer ports.Tokenizer
	events    ports.EventPublisher
	limiter   *Limiter

	domain       string
	challengeTTL time.Duration
	tolerance    time.Duration
	log          *zap.Logger
}

// AuthConfig tunes the authenticator.
type AuthConfig struct {
	Domain       string
	ChallengeTTL time.Duration
	Tolerance    time.Duration
}

// NewAuthService creates an authenticator. limiter bounds challenge issuance
// per wallet and may be nil to disable issuance throttling.
func NewAuthService(store ports.Store, tokenizer ports.Tokenizer, events ports.EventPublisher, limiter *Limiter, cfg AuthConfig, log *zap.Logger) *AuthService {
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 5 * time.Minute
	}
	return &AuthService{
		store:        store,
		tokenizer:    tokenizer,
		events:       events,
		limiter:      limiter,
		domain:       cfg.Domain,
		challengeTTL: cfg.ChallengeTTL,
		tolerance:    cfg.Tolerance,
		log:          log,
	}
}

// IssueChallenge generates a challenge for the wallet and records it in the
// store. Issuance is rate limited per wallet.
func (s *AuthService) IssueChallenge(ctx context.Context, address string) (*core.Challenge, error) {
	if !common.IsHexAddress(address) {
		return nil, core.ErrInvalidAddress
	}
	canonical := common.HexToAddress(address).Hex()

	if s.limiter != nil {
		result := s.limiter.Allow(ctx, "nonce:"+strings.ToLower(canonical))
		if !result.Allowed {
			return nil, core.ErrRateLimited
		}
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonce := hex.EncodeToString(nonceBytes)

	now := time.Now().UTC()
	challenge := &core.Challenge{
		Nonce:     nonce,
		Address:   canonical,
		Message:   s.buildMessage(canonical, nonce, now),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}

	ok, err := s.store.SetNX(ctx, noncePrefix+nonce, strings.ToLower(canonical), s.challengeTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("nonce collision: %w", core.ErrStoreUnavailable)
	}

	return challenge, nil
}

// Verify checks a signed challenge and consumes its nonce. On success it
// returns the checksummed wallet address as the caller's identity for the
// remainder of the request. Store failures fail closed.
func (s *AuthService) Verify(ctx context.Context, address, signature, message string, timestamp time.Time) (string, error) {
	if !common.IsHexAddress(address) {
		return "", core.ErrInvalidAddress
	}
	canonical := common.HexToAddress(address).Hex()

	if drift := time.Since(timestamp); drift > s.tolerance || drift < -s.tolerance {
		return "", core.ErrStaleTimestamp
	}

	match := nonceInMessage.FindStringSubmatch(message)
	if match == nil {
		return "", core.ErrUnknownNonce
	}
	nonce := match[1]

	stored, err := s.store.Get(ctx, noncePrefix+nonce)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", core.ErrUnknownNonce
		}
		return "", err
	}
	if stored != strings.ToLower(canonical) {
		return "", core.ErrWalletMismatch
	}

	// The message must embed the wallet it claims to authenticate, so the
	// signature binds to this exact challenge.
	if !strings.Contains(strings.ToLower(message), strings.ToLower(canonical)) {
		return "", core.ErrWalletMismatch
	}

	recovered, err := recoverSigner(message, signature)
	if err != nil {
		return "", core.ErrInvalidSignature
	}
	if !strings.EqualFold(recovered.Hex(), canonical) {
		return "", core.ErrInvalidSignature
	}

	// Consumption must be a single store operation: whoever creates the
	// consumed marker owns the nonce. A concurrent verification that lost
	// the race fails as a replay. The challenge key itself is left to
	// expire so replays stay distinguishable from unknown nonces.
	consumed, err := s.store.SetNX(ctx, consumedPrefix+nonce, "1", s.challengeTTL)
	if err != nil {
		return "", err
	}
	if !consumed {
		return "", core.ErrNonceReplayed
	}

	if s.limiter != nil {
		// The wallet proved itself; clear its issuance budget.
		s.limiter.Reset(ctx, "nonce:"+strings.ToLower(canonical))
	}

	if s.events != nil {
		if err := s.events.PublishLogin(ctx, canonical); err != nil {
			s.log.Warn("failed to publish login event", zap.Error(err))
		}
	}

	return canonical, nil
}

// Login verifies a signed challenge and issues an access token so the client
// need not re-sign on every request.
func (s *AuthService) Login(ctx context.Context, address, signature, message string, timestamp time.Time) (token string, expiresIn int64, err error) {
	identity, err := s.Verify(ctx, address, signature, message, timestamp)
	if err != nil {
		return "", 0, err
	}
	return s.tokenizer.IdentityToToken(identity)
}

// buildMessage renders the canonical sign-in message. Clients must sign it
// byte for byte.
func (s *AuthService) buildMessage(address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("%s wants you to sign in with your wallet:\n%s\n\nNonce: %s\nIssued At: %s",
		s.domain, address, nonce, issuedAt.Format(time.RFC3339))
}

// recoverSigner recovers the signing address from an EIP-191 personal-sign
// signature over the message.
func recoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}

	// Wallets produce V as 27/28; crypto.SigToPub expects 0/1.
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}
	if recovery[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", recovery[64])
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), recovery)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}
