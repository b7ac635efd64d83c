package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walletforge/privy-proxy/internal/domain"
	"github.com/walletforge/privy-proxy/internal/service"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) UpsertSession(ctx context.Context, externalID, providerID, credential string, expiresAt time.Time) error {
	args := m.Called(ctx, externalID, providerID, credential, expiresAt)
	return args.Error(0)
}

func (m *MockRepo) GetSession(ctx context.Context, externalID string) (domain.SessionRecord, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(domain.SessionRecord), args.Error(1)
}

func (m *MockRepo) AddWallet(ctx context.Context, externalID, providerID, walletAddress string) error {
	args := m.Called(ctx, externalID, providerID, walletAddress)
	return args.Error(0)
}

func (m *MockRepo) ListWallets(ctx context.Context, externalID string) ([]domain.WalletRecord, error) {
	args := m.Called(ctx, externalID)
	var recs []domain.WalletRecord
	if v := args.Get(0); v != nil {
		recs = v.([]domain.WalletRecord)
	}
	return recs, args.Error(1)
}

func (m *MockRepo) SetActiveWallet(ctx context.Context, externalID, walletAddress string) error {
	args := m.Called(ctx, externalID, walletAddress)
	return args.Error(0)
}

func (m *MockRepo) GetActiveWallet(ctx context.Context, externalID string) (string, error) {
	args := m.Called(ctx, externalID)
	return args.String(0), args.Error(1)
}

type MockCache struct{ mock.Mock }

func (m *MockCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, ip, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) AcquireIdentityLock(ctx context.Context, externalID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, externalID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) ReleaseIdentityLock(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

type MockIdentity struct{ mock.Mock }

func (m *MockIdentity) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockIdentity) ExchangeCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockIdentity) FetchProfile(ctx context.Context, accessToken string) (string, error) {
	args := m.Called(ctx, accessToken)
	return args.String(0), args.Error(1)
}

type MockDirectory struct{ mock.Mock }

func (m *MockDirectory) GetOrCreate(ctx context.Context, externalID string) (string, error) {
	args := m.Called(ctx, externalID)
	return args.String(0), args.Error(1)
}

func (m *MockDirectory) AttachWallet(ctx context.Context, providerID string) (string, error) {
	args := m.Called(ctx, providerID)
	return args.String(0), args.Error(1)
}

type MockIssuer struct{ mock.Mock }

func (m *MockIssuer) Mint(externalID, providerID string) (string, time.Time, error) {
	args := m.Called(externalID, providerID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

type deps struct {
	repo      *MockRepo
	cache     *MockCache
	identity  *MockIdentity
	directory *MockDirectory
	issuer    *MockIssuer
}

func newService() (*service.ProxyService, deps) {
	d := deps{
		repo:      new(MockRepo),
		cache:     new(MockCache),
		identity:  new(MockIdentity),
		directory: new(MockDirectory),
		issuer:    new(MockIssuer),
	}
	svc := service.NewProxyService(d.repo, d.cache, d.identity, d.directory, d.issuer, nil)
	return svc, d
}

func lockFreely(d deps) {
	d.cache.On("AcquireIdentityLock", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	d.cache.On("ReleaseIdentityLock", mock.Anything, mock.Anything).Return(nil)
}

func TestLogin_FullFlow(t *testing.T) {
	svc, d := newService()
	lockFreely(d)

	expiresAt := time.Now().Add(time.Hour)

	d.identity.On("ExchangeCode", mock.Anything, "abc123").Return("tok1", nil)
	d.identity.On("FetchProfile", mock.Anything, "tok1").Return("42", nil)
	d.directory.On("GetOrCreate", mock.Anything, "42").Return("priv_1", nil)
	d.issuer.On("Mint", "42", "priv_1").Return("session.jwt", expiresAt, nil)
	d.repo.On("UpsertSession", mock.Anything, "42", "priv_1", "session.jwt", expiresAt).Return(nil)

	token, err := svc.Login(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "session.jwt", token)

	d.repo.AssertExpectations(t)
	d.directory.AssertExpectations(t)
	d.issuer.AssertExpectations(t)
	d.cache.AssertCalled(t, "ReleaseIdentityLock", mock.Anything, "42")
}

func TestLogin_ExchangeFails(t *testing.T) {
	svc, d := newService()

	d.identity.On("ExchangeCode", mock.Anything, "bad").Return("", domain.ErrAuthExchange)

	_, err := svc.Login(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrAuthExchange)

	d.directory.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
	d.repo.AssertNotCalled(t, "UpsertSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_ProfileFails(t *testing.T) {
	svc, d := newService()

	d.identity.On("ExchangeCode", mock.Anything, "abc123").Return("tok1", nil)
	d.identity.On("FetchProfile", mock.Anything, "tok1").Return("", domain.ErrProfileFetch)

	_, err := svc.Login(context.Background(), "abc123")
	assert.ErrorIs(t, err, domain.ErrProfileFetch)
}

func TestLogin_DirectoryFails(t *testing.T) {
	svc, d := newService()
	lockFreely(d)

	d.identity.On("ExchangeCode", mock.Anything, "abc123").Return("tok1", nil)
	d.identity.On("FetchProfile", mock.Anything, "tok1").Return("42", nil)
	d.directory.On("GetOrCreate", mock.Anything, "42").Return("", domain.ErrDirectory)

	_, err := svc.Login(context.Background(), "abc123")
	assert.ErrorIs(t, err, domain.ErrDirectory)

	d.repo.AssertNotCalled(t, "UpsertSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_PersistFails(t *testing.T) {
	svc, d := newService()
	lockFreely(d)

	expiresAt := time.Now().Add(time.Hour)
	dbErr := errors.New("connection reset")

	d.identity.On("ExchangeCode", mock.Anything, "abc123").Return("tok1", nil)
	d.identity.On("FetchProfile", mock.Anything, "tok1").Return("42", nil)
	d.directory.On("GetOrCreate", mock.Anything, "42").Return("priv_1", nil)
	d.issuer.On("Mint", "42", "priv_1").Return("session.jwt", expiresAt, nil)
	d.repo.On("UpsertSession", mock.Anything, "42", "priv_1", "session.jwt", expiresAt).Return(dbErr)

	_, err := svc.Login(context.Background(), "abc123")
	assert.ErrorIs(t, err, dbErr)
}

func TestLogin_LockContendedStillProceeds(t *testing.T) {
	svc, d := newService()

	expiresAt := time.Now().Add(time.Hour)

	// Lock never frees up; login must still complete once the retries are
	// exhausted. Uniqueness in the store is the real guard.
	d.cache.On("AcquireIdentityLock", mock.Anything, "42", mock.Anything).Return(false, nil)

	d.identity.On("ExchangeCode", mock.Anything, "abc123").Return("tok1", nil)
	d.identity.On("FetchProfile", mock.Anything, "tok1").Return("42", nil)
	d.directory.On("GetOrCreate", mock.Anything, "42").Return("priv_1", nil)
	d.issuer.On("Mint", "42", "priv_1").Return("session.jwt", expiresAt, nil)
	d.repo.On("UpsertSession", mock.Anything, "42", "priv_1", "session.jwt", expiresAt).Return(nil)

	token, err := svc.Login(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "session.jwt", token)

	d.cache.AssertNotCalled(t, "ReleaseIdentityLock", mock.Anything, mock.Anything)
}

func TestLogin_LockBackendErrorFailsOpen(t *testing.T) {
	svc, d := newService()

	expiresAt := time.Now().Add(time.Hour)

	d.cache.On("AcquireIdentityLock", mock.Anything, "42", mock.Anything).Return(false, errors.New("redis down"))

	d.identity.On("ExchangeCode", mock.Anything, "abc123").Return("tok1", nil)
	d.identity.On("FetchProfile", mock.Anything, "tok1").Return("42", nil)
	d.directory.On("GetOrCreate", mock.Anything, "42").Return("priv_1", nil)
	d.issuer.On("Mint", "42", "priv_1").Return("session.jwt", expiresAt, nil)
	d.repo.On("UpsertSession", mock.Anything, "42", "priv_1", "session.jwt", expiresAt).Return(nil)

	_, err := svc.Login(context.Background(), "abc123")
	require.NoError(t, err)

	d.cache.AssertNumberOfCalls(t, "AcquireIdentityLock", 1)
}

func TestSessionToken(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetSession", mock.Anything, "42").Return(domain.SessionRecord{
			ExternalID: "42",
			ProviderID: "priv_1",
			Credential: "session.jwt",
			ExpiresAt:  time.Now().Add(time.Hour),
		}, nil)

		token, err := svc.SessionToken(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "session.jwt", token)
	})

	t.Run("not found", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetSession", mock.Anything, "999").Return(domain.SessionRecord{}, domain.ErrSessionNotFound)

		_, err := svc.SessionToken(context.Background(), "999")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})
}

func TestRegisterWallet(t *testing.T) {
	t.Run("attaches and records", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetSession", mock.Anything, "42").Return(domain.SessionRecord{
			ExternalID: "42",
			ProviderID: "priv_1",
			Credential: "session.jwt",
			ExpiresAt:  time.Now().Add(time.Hour),
		}, nil)
		d.directory.On("AttachWallet", mock.Anything, "priv_1").Return("0xabc123", nil)
		d.repo.On("AddWallet", mock.Anything, "42", "priv_1", "0xabc123").Return(nil)

		addr, err := svc.RegisterWallet(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "0xabc123", addr)
		d.repo.AssertExpectations(t)
	})

	t.Run("no session", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetSession", mock.Anything, "999").Return(domain.SessionRecord{}, domain.ErrSessionNotFound)

		_, err := svc.RegisterWallet(context.Background(), "999")
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		d.directory.AssertNotCalled(t, "AttachWallet", mock.Anything, mock.Anything)
	})

	t.Run("provider failure leaves store untouched", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetSession", mock.Anything, "42").Return(domain.SessionRecord{
			ExternalID: "42", ProviderID: "priv_1",
		}, nil)
		d.directory.On("AttachWallet", mock.Anything, "priv_1").Return("", domain.ErrDirectory)

		_, err := svc.RegisterWallet(context.Background(), "42")
		assert.ErrorIs(t, err, domain.ErrDirectory)
		d.repo.AssertNotCalled(t, "AddWallet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSetActiveWallet(t *testing.T) {
	t.Run("delegates to store", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("SetActiveWallet", mock.Anything, "42", "0xabc123").Return(nil)

		err := svc.SetActiveWallet(context.Background(), "42", "0xabc123")
		assert.NoError(t, err)
		d.repo.AssertExpectations(t)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("SetActiveWallet", mock.Anything, "42", "0xmissing").Return(domain.ErrWalletNotFound)

		err := svc.SetActiveWallet(context.Background(), "42", "0xmissing")
		assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	})
}

func TestGetActiveWallet(t *testing.T) {
	t.Run("returns address", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetActiveWallet", mock.Anything, "42").Return("0xabc123", nil)

		addr, err := svc.GetActiveWallet(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, "0xabc123", addr)
	})

	t.Run("none active", func(t *testing.T) {
		svc, d := newService()
		d.repo.On("GetActiveWallet", mock.Anything, "42").Return("", domain.ErrNoActiveWallet)

		_, err := svc.GetActiveWallet(context.Background(), "42")
		assert.ErrorIs(t, err, domain.ErrNoActiveWallet)
	})
}

func TestListWallets(t *testing.T) {
	svc, d := newService()
	recs := []domain.WalletRecord{
		{ExternalID: "42", WalletAddress: "0xabc123", IsActive: true},
		{ExternalID: "42", WalletAddress: "0xdef456", IsActive: false},
	}
	d.repo.On("ListWallets", mock.Anything, "42").Return(recs, nil)

	got, err := svc.ListWallets(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}
