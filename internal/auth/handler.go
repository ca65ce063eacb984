package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"tube-accounts/internal/httpx"
	"tube-accounts/internal/password"
)

// CookieConfig controls how the token pair is handed to browsers.
type CookieConfig struct {
	Secure bool
}

type Handler struct {
	service *Service
	cookies CookieConfig
	now     func() time.Time
}

func NewHandler(service *Service, cookies CookieConfig) *Handler {
	return &Handler{service: service, cookies: cookies, now: time.Now}
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := httpx.DecodeJSON(w, r, &body, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.service.Login(r.Context(), LoginInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrMissingPassword):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUserNotFound):
			httpx.WriteError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidCredential):
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	h.setTokenCookies(w, result.Tokens)
	httpx.WriteSuccess(w, http.StatusOK, result, "user logged in successfully")
}

// Refresh reads the refresh token from its cookie, or from the JSON body for
// clients that do not keep cookies.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		raw = strings.TrimSpace(cookie.Value)
	}
	if raw == "" {
		var body refreshRequest
		if err := httpx.DecodeJSON(w, r, &body, true); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		raw = body.RefreshToken
	}

	tokens, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnauthenticated):
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, ErrTokenReused):
			httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	h.setTokenCookies(w, tokens)
	httpx.WriteSuccess(w, http.StatusOK, tokens, "access token refreshed")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	profile, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
		return
	}

	if err := h.service.Logout(r.Context(), profile.ID); err != nil {
		sentry.CaptureException(err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	h.clearTokenCookies(w)
	httpx.WriteSuccess(w, http.StatusOK, nil, "user logged out")
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	profile, ok := UserFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
		return
	}

	var body changePasswordRequest
	if err := httpx.DecodeJSON(w, r, &body, false); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := httpx.Validate(body); err != nil {
		httpx.WriteValidationError(w, err)
		return
	}

	err := h.service.ChangePassword(r.Context(), profile.ID, body.OldPassword, body.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingPassword), errors.Is(err, password.ErrTooLong):
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrInvalidCredential):
			httpx.WriteError(w, http.StatusBadRequest, "invalid old password")
		case errors.Is(err, ErrUserNotFound):
			httpx.WriteError(w, http.StatusNotFound, err.Error())
		default:
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	httpx.WriteSuccess(w, http.StatusOK, nil, "password changed successfully")
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, tokens Tokens) {
	now := h.now()
	http.SetCookie(w, h.cookie(AccessTokenCookie, tokens.AccessToken, tokens.AccessExpiresAt, now))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresAt, now))
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (h *Handler) cookie(name, value string, expiresAt, now time.Time) *http.Cookie {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
