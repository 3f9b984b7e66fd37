package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"go.uber.org/zap"

	"github.com/feedgate-io/feedgate/adapters/events"
	"github.com/feedgate-io/feedgate/adapters/facilitator"
	"github.com/feedgate-io/feedgate/adapters/store"
	"github.com/feedgate-io/feedgate/adapters/tokenizer"
	"github.com/feedgate-io/feedgate/config"
	"github.com/feedgate-io/feedgate/core"
	"github.com/feedgate-io/feedgate/safeurl"
	"github.com/feedgate-io/feedgate/service"
	transport "github.com/feedgate-io/feedgate/transport/http"
)

const shutdownGrace = 15 * time.Second

// tokenSigningKey loads the shared access-token key, or generates a
// per-process one. Ephemeral keys mean tokens do not survive restarts and
// are not valid across instances; clients fall back to signature headers,
// which always work.
func tokenSigningKey(cfg *config.Config, logger *zap.Logger) (*ecdsa.PrivateKey, error) {
	if cfg.AccessTokenKey != "" {
		return tokenizer.ParseSigningKey(cfg.AccessTokenKey)
	}
	logger.Warn("ACCESS_TOKEN_KEY not set; access tokens are only valid on this instance")
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.Dial(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to store", zap.Error(err))
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: client},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		logger.Fatal("failed to create event publisher", zap.Error(err))
	}

	signKey, err := tokenSigningKey(cfg, logger)
	if err != nil {
		logger.Fatal("failed to load token signing key", zap.Error(err))
	}

	sharedStore := store.NewRedisStore(client, logger)
	eventPub := events.NewWatermillPublisher(publisher)
	tok := tokenizer.NewJWTTokenizer(signKey, cfg.AccessTokenTTL)

	publicLimiter := service.NewLimiter(sharedStore, cfg.RateLimitWindow, cfg.RateLimitMax, logger)
	nonceLimiter := service.NewLimiter(sharedStore, cfg.NonceRateLimitWindow, cfg.NonceRateLimitMax, logger)

	auth := service.NewAuthService(sharedStore, tok, eventPub, nonceLimiter, service.AuthConfig{
		Domain:       cfg.AuthDomain,
		ChallengeTTL: cfg.ChallengeTTL,
		Tolerance:    cfg.TimestampTolerance,
	}, logger)

	payment := service.NewPaymentService(sharedStore,
		facilitator.NewHTTPClient(cfg.FacilitatorURL, logger), eventPub, logger)

	gateway := &transport.Gateway{
		Auth:         auth,
		Payment:      payment,
		Limiter:      publicLimiter,
		Admin:        service.NewAdminGuard(cfg.AdminAPIKey),
		Tokenizer:    tok,
		SafeURL:      safeurl.New(),
		Store:        sharedStore,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Log:          logger,
	}

	downloadPrice := core.PaymentPolicy{
		Amount:      cfg.PriceAmount,
		Asset:       cfg.PriceAsset,
		Network:     cfg.PriceNetwork,
		PayTo:       cfg.PayTo,
		Description: "entry download",
	}

	// Feed and entry creation are wallet-gated in this deployment; the
	// payment gate stays available per route by policy declaration.
	routes := []transport.Route{
		{Method: http.MethodPost, Path: "/v1/feeds", Policy: core.WalletAuth(), Handler: gateway.CreateFeed},
		{Method: http.MethodPost, Path: "/v1/feeds/:id/entries", Policy: core.WalletAuth(), Handler: gateway.CreateEntry},
		{Method: http.MethodGet, Path: "/v1/entries/:id/download", Policy: core.PaymentRequired(downloadPrice), Handler: gateway.DownloadEntry},
		{Method: http.MethodGet, Path: "/v1/admin/stats", Policy: core.AdminOnly(), Handler: gateway.AdminStats},
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: transport.SetupRouter(gateway, routes),
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}

	if err := publisher.Close(); err != nil {
		logger.Warn("failed to close publisher", zap.Error(err))
	}
	if err := client.Close(); err != nil {
		logger.Warn("failed to close store client", zap.Error(err))
	}
	logger.Info("stopped")
}
