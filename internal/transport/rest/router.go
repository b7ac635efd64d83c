package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/walletforge/privy-proxy/internal/domain"
	"github.com/walletforge/privy-proxy/internal/security"
)

type RouterDeps struct {
	Cache    domain.CacheRepository
	Handler  *Handler
	Verifier security.AccessTokenVerifier

	// Expected issuer on inbound provider credentials; empty skips the check.
	TokenIssuer string

	RateLimitEnabled bool
	RateLimit        int
	RateLimitWindow  time.Duration
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Cache == nil {
		panic("rest.NewRouter: nil cache")
	}
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(HTTPLogger)

	// Panic recovery
	r.Use(middleware.Recoverer)

	// Cross-cutting
	if d.RateLimitEnabled {
		r.Use(RateLimitMiddleware(d.Cache, d.RateLimit, d.RateLimitWindow))
	}
	r.Use(SecurityHeaders)

	// Public: health + the OAuth handshake
	r.Get("/health", d.Handler.Health)
	r.Get("/login", d.Handler.Login)
	r.Get("/callback", d.Handler.Callback)

	// Protected: bearer credentials verified against the provider key set
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier, AuthOptions{ExpectedIssuer: d.TokenIssuer}))

		r.Get("/session-token", d.Handler.SessionToken)

		r.Post("/wallet/active", d.Handler.SetActiveWallet)
		r.Get("/wallet/active", d.Handler.GetActiveWallet)

		r.Post("/wallet/register", d.Handler.RegisterWallet)
		r.Get("/wallets", d.Handler.ListWallets)
	})

	return r
}
