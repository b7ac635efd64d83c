package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/walletforge/privy-proxy/internal/audit"
	"github.com/walletforge/privy-proxy/internal/config"
	"github.com/walletforge/privy-proxy/internal/directory"
	"github.com/walletforge/privy-proxy/internal/identity"
	"github.com/walletforge/privy-proxy/internal/infrastructure/postgres"
	"github.com/walletforge/privy-proxy/internal/infrastructure/redis"
	"github.com/walletforge/privy-proxy/internal/pkg/logger"
	"github.com/walletforge/privy-proxy/internal/security"
	"github.com/walletforge/privy-proxy/internal/service"
	"github.com/walletforge/privy-proxy/internal/transport/rest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "privy-proxy").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// Best-effort ping; rate limiting and the login lock fail open.
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Collaborator clients ----
	discord := identity.NewDiscordClient(identity.Options{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.DiscordRedirectURI,
		Timeout:      cfg.HTTPClientTimeout,
	})
	privy := directory.NewPrivyClient(cfg.PrivyAPIURL, cfg.PrivyAppSecret, cfg.HTTPClientTimeout)

	// ---- Credential signing domains ----
	// Domain 1: session credentials this service mints.
	issuer := security.NewHS256Issuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	// Domain 2: provider-issued credentials presented to protected endpoints.
	verifier := security.NewJWKSVerifier(cfg.PrivyJWKSURL, cfg.HTTPClientTimeout)

	// ---- Application service ----
	auditLog := audit.New(log)
	svc := service.NewProxyService(repo, cache, discord, privy, issuer, auditLog)
	h := rest.NewHandler(svc, cfg.AppEnv)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:            cache,
		Handler:          h,
		Verifier:         verifier,
		TokenIssuer:      cfg.PrivyTokenIssuer,
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateLimitWindow:  cfg.RLWindow,
	})

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
