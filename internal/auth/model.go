package auth

import (
	"errors"
	"time"

	"tube-accounts/internal/users"
)

var (
	ErrMissingCredential = errors.New("username or email is required")
	ErrMissingPassword   = errors.New("password is required")
	ErrUserNotFound      = errors.New("user does not exist")
	ErrInvalidCredential = errors.New("invalid user credentials")
	ErrUnauthenticated   = errors.New("unauthorized request")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenReused       = errors.New("refresh token is expired or used")
)

// Tokens is a freshly minted access/refresh pair. The expiries drive cookie
// lifetimes and are not serialized.
type Tokens struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

type LoginResult struct {
	User users.Profile `json:"user"`
	Tokens
}
