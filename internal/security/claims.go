package security

import "time"

// TokenClaims is the verified claim set attached to a request. Only
// successful verification produces one.
type TokenClaims struct {
	ExternalID string
	ProviderID string
	Subject    string
	Issuer     string
	IssuedAt   time.Time
	Exp        time.Time
}
