package audit

import (
	"context"

	appCtx "github.com/walletforge/privy-proxy/internal/pkg/context"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// LoginCompleted logs a successful authorization-callback flow.
func (l *Logger) LoginCompleted(ctx context.Context, externalID, providerID string) {
	l.log.Info().
		Str("action", "login_completed").
		Str("external_id", externalID).
		Str("provider_id", providerID).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("User logged in")
}

// SessionTokenIssued logs a stored credential being handed to a trusted caller.
func (l *Logger) SessionTokenIssued(ctx context.Context, externalID string) {
	l.log.Info().
		Str("action", "session_token_issued").
		Str("external_id", externalID).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Session token retrieved")
}

// WalletRegistered logs a custody wallet being attached and recorded.
func (l *Logger) WalletRegistered(ctx context.Context, externalID, walletAddress string) {
	l.log.Info().
		Str("action", "wallet_registered").
		Str("external_id", externalID).
		Str("wallet_address", walletAddress).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Wallet registered")
}

// ActiveWalletChanged logs an active-wallet switch.
func (l *Logger) ActiveWalletChanged(ctx context.Context, externalID, walletAddress string) {
	l.log.Info().
		Str("action", "active_wallet_changed").
		Str("external_id", externalID).
		Str("wallet_address", walletAddress).
		Str("request_id", appCtx.GetRequestID(ctx)).
		Msg("Active wallet changed")
}
