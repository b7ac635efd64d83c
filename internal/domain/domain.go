package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAuthExchange = errors.New("authorization code exchange failed")
	ErrProfileFetch = errors.New("profile fetch failed")
	ErrDirectory    = errors.New("directory request failed")

	ErrSessionNotFound = errors.New("session not found")
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrNoActiveWallet  = errors.New("no active wallet")

	ErrCacheMiss = errors.New("cache miss")
)

// WalletRecord is one row of the session store. A row without a wallet
// address is the owner's session row; wallet rows carry an address and the
// active flag. Credential and expiry are refreshed across all of an owner's
// rows on login.
type WalletRecord struct {
	ID int64

	ExternalID    string
	ProviderID    string
	WalletAddress string
	IsActive      bool

	Credential string
	ExpiresAt  time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRecord is the owner's session row, read back by trusted callers.
type SessionRecord struct {
	ExternalID string
	ProviderID string
	Credential string
	ExpiresAt  time.Time
}

// WalletRepository is the durable session store keyed by external identity.
// The uniqueness constraint on the external identity is what guarantees the
// 1:1 mapping to a provider identity.
type WalletRepository interface {
	UpsertSession(ctx context.Context, externalID, providerID, credential string, expiresAt time.Time) error
	GetSession(ctx context.Context, externalID string) (SessionRecord, error)

	AddWallet(ctx context.Context, externalID, providerID, walletAddress string) error
	ListWallets(ctx context.Context, externalID string) ([]WalletRecord, error)

	// SetActiveWallet deactivates every wallet for the owner and activates
	// exactly the target, in one transaction. The target must already exist.
	SetActiveWallet(ctx context.Context, externalID, walletAddress string) error
	GetActiveWallet(ctx context.Context, externalID string) (string, error)
}

type CacheRepository interface {
	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)

	// Lock scoped to one external identity, held across the
	// get-or-create-then-persist sequence during login.
	AcquireIdentityLock(ctx context.Context, externalID string, ttl time.Duration) (bool, error)
	ReleaseIdentityLock(ctx context.Context, externalID string) error
}

// IdentityClient resolves the caller's identity on the chat platform.
type IdentityClient interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (string, error)
}

// DirectoryClient maps an external identity to a provider-managed identity.
type DirectoryClient interface {
	GetOrCreate(ctx context.Context, externalID string) (string, error)
	AttachWallet(ctx context.Context, providerID string) (string, error)
}

// CredentialIssuer mints the locally-signed session credential.
type CredentialIssuer interface {
	Mint(externalID, providerID string) (token string, expiresAt time.Time, err error)
}
