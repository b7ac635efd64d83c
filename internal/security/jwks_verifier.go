package security

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"
)

var providerAlgs = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodES256.Alg(),
}

// JWKSVerifier validates bearer credentials issued by the identity provider
// against its published key set. Keys are fetched lazily and cached by kid.
// Cached entries carry no TTL: provider keys rotate rarely, and the window
// where a rotated-out key still verifies is accepted.
type JWKSVerifier struct {
	url    string
	client *http.Client

	keys *ttlcache.Cache[string, crypto.PublicKey]
	mu   sync.Mutex // serializes key-set refetches
}

func NewJWKSVerifier(url string, timeout time.Duration) *JWKSVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cache := ttlcache.New[string, crypto.PublicKey](
		ttlcache.WithTTL[string, crypto.PublicKey](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, crypto.PublicKey](),
	)
	go cache.Start()

	return &JWKSVerifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		keys:   cache,
	}
}

func (v *JWKSVerifier) VerifyAccessToken(token string) (TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, v.keyFor,
		jwt.WithValidMethods(providerAlgs))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, ErrTokenInvalid
	}

	out := TokenClaims{
		ProviderID: claims.Subject,
		Subject:    claims.Subject,
		Issuer:     claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Time
	}
	return out, nil
}

func (v *JWKSVerifier) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, ErrTokenInvalid
	}

	if item := v.keys.Get(kid); item != nil {
		return item.Value(), nil
	}

	// Cold miss: refetch the key set exactly once before failing.
	v.mu.Lock()
	defer v.mu.Unlock()
	if item := v.keys.Get(kid); item != nil {
		return item.Value(), nil
	}
	if err := v.refresh(); err != nil {
		return nil, err
	}
	if item := v.keys.Get(kid); item != nil {
		return item.Value(), nil
	}
	return nil, ErrTokenInvalid
}

func (v *JWKSVerifier) refresh() error {
	ctx, cancel := context.WithTimeout(context.Background(), v.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch key set: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch key set: status %d", resp.StatusCode)
	}

	var set JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}

	for _, k := range set.Keys {
		pub, err := k.PublicKey()
		if err != nil {
			continue
		}
		v.keys.Set(k.Kid, pub, ttlcache.NoTTL)
	}
	return nil
}
