package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Verifier struct {
	cfg Config
	now func() time.Time
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Verifier{cfg: cfg, now: time.Now}, nil
}

// VerifyAccess checks signature, expiry and claim shape of an access token.
// Every failure wraps ErrInvalid; the wrapped reason is for logs only.
func (v *Verifier) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := v.parse(raw, claims, v.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess || claims.UserID == "" {
		return nil, fmt.Errorf("%w: unexpected access claims", ErrInvalid)
	}
	return claims, nil
}

func (v *Verifier) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := v.parse(raw, claims, v.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh || claims.UserID == "" {
		return nil, fmt.Errorf("%w: unexpected refresh claims", ErrInvalid)
	}
	return claims, nil
}

func (v *Verifier) parse(raw string, claims jwt.Claims, secret string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty token", ErrInvalid)
	}

	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return fmt.Errorf("%w: token not valid", ErrInvalid)
	}
	return nil
}
