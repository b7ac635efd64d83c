package rest

import "context"

type ctxKeySubject struct{}
type ctxKeyIssuer struct{}

// AuthContext carries the verified provider-credential claims for a request.
type AuthContext struct {
	Subject string
	Issuer  string
}

func withAuth(ctx context.Context, a AuthContext) context.Context {
	ctx = context.WithValue(ctx, ctxKeySubject{}, a.Subject)
	ctx = context.WithValue(ctx, ctxKeyIssuer{}, a.Issuer)
	return ctx
}

func GetAuth(ctx context.Context) (AuthContext, bool) {
	sub, ok := ctx.Value(ctxKeySubject{}).(string)
	if !ok || sub == "" {
		return AuthContext{}, false
	}
	iss, _ := ctx.Value(ctxKeyIssuer{}).(string)
	return AuthContext{Subject: sub, Issuer: iss}, true
}
