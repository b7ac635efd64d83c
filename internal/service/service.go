package service

import (
	"context"
	"time"

	"github.com/walletforge/privy-proxy/internal/audit"
	"github.com/walletforge/privy-proxy/internal/domain"
)

const (
	identityLockTTL   = 10 * time.Second
	identityLockWait  = 50 * time.Millisecond
	identityLockTries = 20
)

type ProxyService struct {
	repo      domain.WalletRepository
	cache     domain.CacheRepository
	identity  domain.IdentityClient
	directory domain.DirectoryClient
	issuer    domain.CredentialIssuer
	audit     *audit.Logger
}

func NewProxyService(
	repo domain.WalletRepository,
	cache domain.CacheRepository,
	identity domain.IdentityClient,
	directory domain.DirectoryClient,
	issuer domain.CredentialIssuer,
	auditLog *audit.Logger,
) *ProxyService {
	return &ProxyService{
		repo:      repo,
		cache:     cache,
		identity:  identity,
		directory: directory,
		issuer:    issuer,
		audit:     auditLog,
	}
}

// LoginURL returns the authorize redirect target.
func (s *ProxyService) LoginURL(state string) string {
	return s.identity.AuthCodeURL(state)
}

// Login runs the whole callback flow: code exchange, profile fetch,
// directory get-or-create, credential mint, persist.
func (s *ProxyService) Login(ctx context.Context, code string) (string, error) {
	accessToken, err := s.identity.ExchangeCode(ctx, code)
	if err != nil {
		return "", err
	}

	externalID, err := s.identity.FetchProfile(ctx, accessToken)
	if err != nil {
		return "", err
	}

	// Identity-scoped lock narrows the directory get-or-create race. Best
	// effort: if the lock cannot be taken, the session row's uniqueness
	// still decides the winner and a duplicate provider user is a benign
	// leak.
	if s.lockIdentity(ctx, externalID) {
		defer func() { _ = s.cache.ReleaseIdentityLock(ctx, externalID) }()
	}

	providerID, err := s.directory.GetOrCreate(ctx, externalID)
	if err != nil {
		return "", err
	}

	token, expiresAt, err := s.issuer.Mint(externalID, providerID)
	if err != nil {
		return "", err
	}

	if err := s.repo.UpsertSession(ctx, externalID, providerID, token, expiresAt); err != nil {
		return "", err
	}

	if s.audit != nil {
		s.audit.LoginCompleted(ctx, externalID, providerID)
	}
	return token, nil
}

func (s *ProxyService) lockIdentity(ctx context.Context, externalID string) bool {
	if s.cache == nil {
		return false
	}
	for i := 0; i < identityLockTries; i++ {
		ok, err := s.cache.AcquireIdentityLock(ctx, externalID, identityLockTTL)
		if err != nil {
			return false
		}
		if ok {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(identityLockWait):
		}
	}
	return false
}

// SessionToken returns the stored credential for a trusted caller. The
// store's expires_at bounds server-side validity; an expired session reads
// as not found.
func (s *ProxyService) SessionToken(ctx context.Context, externalID string) (string, error) {
	rec, err := s.repo.GetSession(ctx, externalID)
	if err != nil {
		return "", err
	}
	if s.audit != nil {
		s.audit.SessionTokenIssued(ctx, externalID)
	}
	return rec.Credential, nil
}

// RegisterWallet asks the provider to attach a custody wallet to the owner's
// provider identity and records it.
func (s *ProxyService) RegisterWallet(ctx context.Context, externalID string) (string, error) {
	rec, err := s.repo.GetSession(ctx, externalID)
	if err != nil {
		return "", err
	}

	addr, err := s.directory.AttachWallet(ctx, rec.ProviderID)
	if err != nil {
		return "", err
	}

	if err := s.repo.AddWallet(ctx, externalID, rec.ProviderID, addr); err != nil {
		return "", err
	}

	if s.audit != nil {
		s.audit.WalletRegistered(ctx, externalID, addr)
	}
	return addr, nil
}

func (s *ProxyService) SetActiveWallet(ctx context.Context, externalID, walletAddress string) error {
	if err := s.repo.SetActiveWallet(ctx, externalID, walletAddress); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.ActiveWalletChanged(ctx, externalID, walletAddress)
	}
	return nil
}

func (s *ProxyService) GetActiveWallet(ctx context.Context, externalID string) (string, error) {
	return s.repo.GetActiveWallet(ctx, externalID)
}

func (s *ProxyService) ListWallets(ctx context.Context, externalID string) ([]domain.WalletRecord, error) {
	return s.repo.ListWallets(ctx, externalID)
}
