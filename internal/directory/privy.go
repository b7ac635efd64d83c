package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/walletforge/privy-proxy/internal/domain"
)

// PrivyClient talks to the provider's user directory.
//
// GetOrCreate is not atomic against the remote directory: two concurrent
// calls for the same unseen external id may both observe "not found" and
// both create, leaving one orphaned provider user. The session store's
// uniqueness on external id decides which one wins; the orphan is a known,
// benign leak. The login flow additionally holds an external-id-scoped lock
// to narrow the window.
type PrivyClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewPrivyClient(baseURL, secret string, timeout time.Duration) *PrivyClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PrivyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetOrCreate looks up the directory user tagged with externalID and returns
// its identity; absent one, it creates a new user and returns the fresh id.
func (c *PrivyClient) GetOrCreate(ctx context.Context, externalID string) (string, error) {
	lookupURL := c.baseURL + "/api/v1/users?external_id=" + url.QueryEscape(externalID)

	var found []struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, lookupURL, nil, &found); err != nil {
		return "", err
	}
	if len(found) > 0 && found[0].ID != "" {
		return found[0].ID, nil
	}

	body, _ := json.Marshal(map[string]string{"external_id": externalID})
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/users", body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: create returned empty id", domain.ErrDirectory)
	}
	return created.ID, nil
}

// AttachWallet asks the provider to create a custody wallet on the user and
// returns its address.
func (c *PrivyClient) AttachWallet(ctx context.Context, providerID string) (string, error) {
	u := c.baseURL + "/api/v1/users/" + url.PathEscape(providerID) + "/wallets"

	var out struct {
		WalletAddress string `json:"wallet_address"`
	}
	if err := c.do(ctx, http.MethodPost, u, nil, &out); err != nil {
		return "", err
	}
	if out.WalletAddress == "" {
		return "", fmt.Errorf("%w: empty wallet address", domain.ErrDirectory)
	}
	return out.WalletAddress, nil
}

func (c *PrivyClient) do(ctx context.Context, method, u string, body []byte, out any) error {
	var rd *bytes.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectory, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectory, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%w: status %d", domain.ErrDirectory, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDirectory, err)
	}
	return nil
}
