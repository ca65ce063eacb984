package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"tube-accounts/internal/observability"
	"tube-accounts/internal/password"
	"tube-accounts/internal/token"
	"tube-accounts/internal/users"
)

// CredentialStore is the part of the user store the session lifecycle needs.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, username, email string) (users.User, error)
	FindByID(ctx context.Context, id string) (users.User, error)
	Save(ctx context.Context, user *users.User, opts users.SaveOptions) (users.User, error)
	SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, id string) error
}

// Service runs login, refresh, logout and password change. It keeps no
// session state of its own; the single live refresh token per user lives in
// the store.
type Service struct {
	store    CredentialStore
	hasher   password.Hasher
	issuer   *token.Issuer
	verifier *token.Verifier
	logger   *observability.Logger
}

func NewService(store CredentialStore, hasher password.Hasher, issuer *token.Issuer, verifier *token.Verifier, logger *observability.Logger) *Service {
	return &Service{
		store:    store,
		hasher:   hasher,
		issuer:   issuer,
		verifier: verifier,
		logger:   logger,
	}
}

func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" && email == "" {
		return LoginResult{}, ErrMissingCredential
	}
	if strings.TrimSpace(in.Password) == "" {
		return LoginResult{}, ErrMissingPassword
	}

	user, err := s.store.FindByIdentifier(ctx, username, email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			recordAuthEvent("login", "unknown_user")
			return LoginResult{}, ErrUserNotFound
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		recordAuthEvent("login", "invalid_credential")
		return LoginResult{}, ErrInvalidCredential
	}

	tokens, err := s.issuePair(user)
	if err != nil {
		return LoginResult{}, err
	}

	// A new login supersedes whatever refresh token the user held, including
	// one issued to another device.
	if err := s.store.SetRefreshToken(ctx, user.ID, fingerprint(tokens.RefreshToken), tokens.RefreshExpiresAt); err != nil {
		return LoginResult{}, fmt.Errorf("store refresh token: %w", err)
	}

	recordAuthEvent("login", "success")
	s.logger.Info("user_logged_in", map[string]any{"user_id": user.ID})

	return LoginResult{User: user.Profile(), Tokens: tokens}, nil
}

// Refresh trades a live refresh token for a new pair. The presented token must
// match the stored copy; the swap only succeeds while it still does.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (Tokens, error) {
	rawRefreshToken = strings.TrimSpace(rawRefreshToken)
	if rawRefreshToken == "" {
		recordAuthEvent("refresh", "unauthenticated")
		return Tokens{}, ErrUnauthenticated
	}

	claims, err := s.verifier.VerifyRefresh(rawRefreshToken)
	if err != nil {
		recordAuthEvent("refresh", "invalid_token")
		s.logger.Warn("refresh_token_rejected", map[string]any{"reason": err.Error()})
		return Tokens{}, ErrInvalidToken
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			recordAuthEvent("refresh", "unknown_user")
			return Tokens{}, ErrUserNotFound
		}
		return Tokens{}, fmt.Errorf("find user: %w", err)
	}

	presented := fingerprint(rawRefreshToken)
	if user.RefreshTokenHash == nil || subtle.ConstantTimeCompare([]byte(*user.RefreshTokenHash), []byte(presented)) != 1 {
		recordAuthEvent("refresh", "reused")
		s.logger.Warn("refresh_token_reused", map[string]any{"user_id": user.ID})
		return Tokens{}, ErrTokenReused
	}

	tokens, err := s.issuePair(user)
	if err != nil {
		return Tokens{}, err
	}

	err = s.store.RotateRefreshToken(ctx, user.ID, presented, fingerprint(tokens.RefreshToken), tokens.RefreshExpiresAt)
	if err != nil {
		if errors.Is(err, users.ErrRefreshTokenMismatch) {
			recordAuthEvent("refresh", "reused")
			s.logger.Warn("refresh_token_rotation_lost", map[string]any{"user_id": user.ID})
			return Tokens{}, ErrTokenReused
		}
		return Tokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	recordAuthEvent("refresh", "success")
	return tokens, nil
}

// Logout drops the stored refresh token. Repeating it is harmless.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.store.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	recordAuthEvent("logout", "success")
	s.logger.Info("user_logged_out", map[string]any{"user_id": userID})
	return nil
}

// ChangePassword re-hashes the password. Refresh token state is untouched.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if strings.TrimSpace(oldPassword) == "" || strings.TrimSpace(newPassword) == "" {
		return ErrMissingPassword
	}
	if err := password.CheckLength(newPassword); err != nil {
		return err
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		recordAuthEvent("change_password", "invalid_credential")
		return ErrInvalidCredential
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash

	if _, err := s.store.Save(ctx, &user, users.SaveOptions{SkipValidation: true}); err != nil {
		return fmt.Errorf("save password: %w", err)
	}

	recordAuthEvent("change_password", "success")
	return nil
}

// Authenticate resolves an access token to the secret-free profile of its
// user. Access tokens are never compared with stored state.
func (s *Service) Authenticate(ctx context.Context, rawAccessToken string) (users.Profile, error) {
	rawAccessToken = strings.TrimSpace(rawAccessToken)
	if rawAccessToken == "" {
		return users.Profile{}, ErrUnauthenticated
	}

	claims, err := s.verifier.VerifyAccess(rawAccessToken)
	if err != nil {
		s.logger.Warn("access_token_rejected", map[string]any{"reason": err.Error()})
		return users.Profile{}, ErrInvalidToken
	}

	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return users.Profile{}, ErrUserNotFound
		}
		return users.Profile{}, fmt.Errorf("find user: %w", err)
	}

	return user.Profile(), nil
}

func (s *Service) issuePair(user users.User) (Tokens, error) {
	access, accessExp, err := s.issuer.IssueAccess(token.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		FullName: user.FullName,
	})
	if err != nil {
		return Tokens{}, err
	}

	refresh, refreshExp, err := s.issuer.IssueRefresh(user.ID)
	if err != nil {
		return Tokens{}, err
	}

	return Tokens{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// fingerprint is the form in which a refresh token is stored.
func fingerprint(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

func recordAuthEvent(event, outcome string) {
	observability.AuthEvents.WithLabelValues(event, outcome).Inc()
}
