// Package token mints and verifies the signed access/refresh token pair.
//
// Access and refresh tokens use independent secrets and lifetimes. Issuing is
// a pure function of its inputs; persisting the refresh token is the caller's job.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalid covers malformed tokens, bad signatures, expiry and wrong token
// type alike. Callers must not tell them apart in responses.
var ErrInvalid = errors.New("invalid token")

type Config struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

func (c Config) validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("access and refresh secrets are required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	return nil
}

// AccessClaims carry the user identity. They hold no secret material.
type AccessClaims struct {
	UserID   string `json:"_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims identify the user only.
type RefreshClaims struct {
	UserID string `json:"_id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

type Issuer struct {
	cfg Config
	now func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Issuer{cfg: cfg, now: time.Now}, nil
}

// Identity is the subset of a user record encoded in an access token.
type Identity struct {
	UserID   string
	Email    string
	Username string
	FullName string
}

func (i *Issuer) IssueAccess(identity Identity) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.cfg.AccessTTL)

	claims := AccessClaims{
		UserID:   identity.UserID,
		Email:    identity.Email,
		Username: identity.Username,
		FullName: identity.FullName,
		Type:     TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.AccessSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueRefresh gives every token a random id so two tokens minted within the
// same second for the same user are still distinct.
func (i *Issuer) IssueRefresh(userID string) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.cfg.RefreshTTL)

	jti, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate refresh token id: %w", err)
	}

	claims := RefreshClaims{
		UserID: userID,
		Type:   TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.RefreshSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}
