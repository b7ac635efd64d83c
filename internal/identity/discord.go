package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/walletforge/privy-proxy/internal/domain"
	"golang.org/x/oauth2"
)

const (
	defaultAuthURL    = "https://discord.com/oauth2/authorize"
	defaultTokenURL   = "https://discord.com/api/oauth2/token"
	defaultProfileURL = "https://discord.com/api/users/@me"
)

// DiscordClient performs the authorization-code exchange and profile fetch
// against the chat platform. Two outbound calls per login; no local state.
type DiscordClient struct {
	conf       *oauth2.Config
	client     *http.Client
	profileURL string
}

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration

	// Endpoint overrides, used by tests.
	AuthURL    string
	TokenURL   string
	ProfileURL string
}

func NewDiscordClient(o Options) *DiscordClient {
	authURL := o.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	tokenURL := o.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	profileURL := o.ProfileURL
	if profileURL == "" {
		profileURL = defaultProfileURL
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &DiscordClient{
		conf: &oauth2.Config{
			ClientID:     o.ClientID,
			ClientSecret: o.ClientSecret,
			RedirectURL:  o.RedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		client:     &http.Client{Timeout: timeout},
		profileURL: profileURL,
	}
}

// AuthCodeURL builds the authorize redirect carrying the client id, the
// exact registered redirect URI, and scope=identify.
func (c *DiscordClient) AuthCodeURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

// ExchangeCode trades a single-use authorization code for an access token.
// The code must never be exchanged twice.
func (c *DiscordClient) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)
	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthExchange, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", domain.ErrAuthExchange)
	}
	return tok.AccessToken, nil
}

// FetchProfile resolves the caller's external identity from the platform API.
func (c *DiscordClient) FetchProfile(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProfileFetch, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProfileFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", domain.ErrProfileFetch, resp.StatusCode)
	}

	var profile struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProfileFetch, err)
	}
	if profile.ID == "" {
		return "", fmt.Errorf("%w: empty profile id", domain.ErrProfileFetch)
	}
	return profile.ID, nil
}
