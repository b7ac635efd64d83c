package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// sessionClaims is the claim set on credentials this service mints.
type sessionClaims struct {
	ExternalID string `json:"did"`
	ProviderID string `json:"pid"`
	jwt.RegisteredClaims
}

// HS256Issuer mints session credentials with the private application secret.
// This signing domain is distinct from the provider-issued credentials that
// JWKSVerifier checks; the two never share keys.
type HS256Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewHS256Issuer(secret, issuer string, ttl time.Duration) *HS256Issuer {
	return &HS256Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

func (i *HS256Issuer) Mint(externalID, providerID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(i.ttl)

	claims := sessionClaims{
		ExternalID: externalID,
		ProviderID: providerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   externalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// HS256Verifier validates credentials minted by HS256Issuer.
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

func (v *HS256Verifier) VerifyAccessToken(token string) (TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		// prevent alg confusion
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, ErrTokenInvalid
	}

	out := TokenClaims{
		ExternalID: claims.ExternalID,
		ProviderID: claims.ProviderID,
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
