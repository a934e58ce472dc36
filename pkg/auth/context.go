package auth

import (
	"context"
	"errors"

	"github.com/volunteermatching/volops/pkg/types"
)

type ctxKey int

const (
	authInfoKey ctxKey = iota
	authErrKey
)

var ErrAuthRequired = errors.New("missing authorization header")

// --- Context get/set ---

func WithAuthInfo(ctx context.Context, info *types.AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey, info)
}

func AuthInfoFromContext(ctx context.Context) *types.AuthInfo {
	info, _ := ctx.Value(authInfoKey).(*types.AuthInfo)
	return info
}

// withAuthError records why a presented token was rejected
func withAuthError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, authErrKey, err)
}

func authErrorFromContext(ctx context.Context) error {
	err, _ := ctx.Value(authErrKey).(error)
	return err
}

// --- Authorization checks ---

// RequireAuth returns nil for an authenticated request, otherwise the reason
// it is not: ErrAuthRequired when no token was sent, or the validation error.
func RequireAuth(ctx context.Context) error {
	if AuthInfoFromContext(ctx) != nil {
		return nil
	}
	if err := authErrorFromContext(ctx); err != nil {
		return err
	}
	return ErrAuthRequired
}

// --- Boolean checks ---

func IsAuthenticated(ctx context.Context) bool { i := AuthInfoFromContext(ctx); return i != nil }
func IsAdmin(ctx context.Context) bool         { i := AuthInfoFromContext(ctx); return i != nil && i.IsAdmin() }

// --- Field accessors ---

func Subject(ctx context.Context) string {
	if i := AuthInfoFromContext(ctx); i != nil {
		return i.Subject
	}
	return ""
}
