package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"tube-accounts/internal/httpx"
	"tube-accounts/internal/users"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type Authenticator interface {
	Authenticate(ctx context.Context, rawAccessToken string) (users.Profile, error)
}

// RequireUser rejects requests without a valid access token and attaches the
// caller's profile to the request context otherwise.
func RequireUser(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := accessTokenFrom(r)
			if raw == "" {
				httpx.WriteError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
				return
			}

			profile, err := authenticator.Authenticate(r.Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, ErrUnauthenticated):
					httpx.WriteError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
				case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
					httpx.WriteError(w, http.StatusUnauthorized, "invalid access token")
				default:
					sentry.CaptureException(err)
					httpx.WriteError(w, http.StatusInternalServerError, "failed to authenticate")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), profile)))
		})
	}
}

// accessTokenFrom prefers the cookie and falls back to a Bearer header.
func accessTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
