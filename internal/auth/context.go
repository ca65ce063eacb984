package auth

import (
	"context"

	"tube-accounts/internal/users"
)

type contextKey struct{}

func WithUser(ctx context.Context, profile users.Profile) context.Context {
	return context.WithValue(ctx, contextKey{}, profile)
}

// UserFromContext returns the profile RequireUser attached to the request.
func UserFromContext(ctx context.Context) (users.Profile, bool) {
	profile, ok := ctx.Value(contextKey{}).(users.Profile)
	return profile, ok
}
