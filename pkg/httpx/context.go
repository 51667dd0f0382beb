package httpx

import (
	"context"

	"github.com/eslschool/esladmin/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID      ctxKey = "user_id"
	CtxKeyRoles       ctxKey = "roles"
	CtxKeyClaims      ctxKey = "claims"
	CtxKeyBearerToken ctxKey = "bearer_token"
)

func contextWithAuth(ctx context.Context, raw string, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyRoles, c.Roles)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	ctx = context.WithValue(ctx, CtxKeyBearerToken, raw)
	return ctx
}

// UserID returns the authenticated subject, if any.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUserID).(string)
	return v, ok && v != ""
}

// ClaimsFrom returns the verified access-token claims, if any.
func ClaimsFrom(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// BearerToken returns the raw access token the request authenticated with.
func BearerToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyBearerToken).(string)
	return v, ok && v != ""
}

func rolesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyRoles).([]string); ok {
		return v
	}
	return nil
}
