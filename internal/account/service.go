// Package account covers registration and profile maintenance of a user.
package account

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"tube-accounts/internal/observability"
	"tube-accounts/internal/password"
	"tube-accounts/internal/users"
)

var (
	ErrMissingFields  = errors.New("all fields are required")
	ErrUserExists     = errors.New("user with email or username already exists")
	ErrUserNotFound   = errors.New("user does not exist")
	ErrInvalidAccount = errors.New("invalid account details")
	ErrAvatarRequired = errors.New("avatar file is required")
	ErrCoverRequired  = errors.New("cover image file is required")
	ErrAvatarUpload   = errors.New("error while uploading avatar")
	ErrCoverUpload    = errors.New("error while uploading cover image")
)

type Store interface {
	FindByIdentifier(ctx context.Context, username, email string) (users.User, error)
	Save(ctx context.Context, user *users.User, opts users.SaveOptions) (users.User, error)
	Update(ctx context.Context, id string, patch users.Patch) (users.User, error)
}

// FileRelay hosts an uploaded file and returns its URL, "" on failure.
type FileRelay interface {
	Upload(ctx context.Context, header *multipart.FileHeader) string
}

type Service struct {
	store  Store
	hasher password.Hasher
	relay  FileRelay
	logger *observability.Logger
}

func NewService(store Store, hasher password.Hasher, relay FileRelay, logger *observability.Logger) *Service {
	return &Service{store: store, hasher: hasher, relay: relay, logger: logger}
}

type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *multipart.FileHeader
	CoverImage *multipart.FileHeader
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (users.Profile, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := strings.TrimSpace(in.Email)
	username := strings.TrimSpace(in.Username)
	if fullName == "" || email == "" || username == "" || strings.TrimSpace(in.Password) == "" {
		return users.Profile{}, ErrMissingFields
	}
	if err := password.CheckLength(in.Password); err != nil {
		return users.Profile{}, err
	}

	_, err := s.store.FindByIdentifier(ctx, username, email)
	switch {
	case err == nil:
		return users.Profile{}, ErrUserExists
	case !errors.Is(err, users.ErrNotFound):
		return users.Profile{}, fmt.Errorf("check existing user: %w", err)
	}

	if in.Avatar == nil {
		return users.Profile{}, ErrAvatarRequired
	}
	avatarURL := s.relay.Upload(ctx, in.Avatar)
	if avatarURL == "" {
		return users.Profile{}, ErrAvatarUpload
	}

	coverURL := ""
	if in.CoverImage != nil {
		coverURL = s.relay.Upload(ctx, in.CoverImage)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return users.Profile{}, fmt.Errorf("hash password: %w", err)
	}

	user := users.User{
		Username:      strings.ToLower(username),
		Email:         strings.ToLower(email),
		FullName:      fullName,
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		PasswordHash:  hash,
	}
	saved, err := s.store.Save(ctx, &user, users.SaveOptions{})
	if err != nil {
		return users.Profile{}, mapStoreError(err, "create user")
	}

	s.logger.Info("user_registered", map[string]any{"user_id": saved.ID})
	return saved.Profile(), nil
}

func (s *Service) UpdateAccountDetails(ctx context.Context, userID, fullName, email string) (users.Profile, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return users.Profile{}, ErrMissingFields
	}

	updated, err := s.store.Update(ctx, userID, users.Patch{FullName: &fullName, Email: &email})
	if err != nil {
		return users.Profile{}, mapStoreError(err, "update account details")
	}
	return updated.Profile(), nil
}

func (s *Service) UpdateAvatar(ctx context.Context, userID string, header *multipart.FileHeader) (users.Profile, error) {
	if header == nil {
		return users.Profile{}, ErrAvatarRequired
	}
	url := s.relay.Upload(ctx, header)
	if url == "" {
		return users.Profile{}, ErrAvatarUpload
	}

	updated, err := s.store.Update(ctx, userID, users.Patch{AvatarURL: &url})
	if err != nil {
		return users.Profile{}, mapStoreError(err, "update avatar")
	}
	return updated.Profile(), nil
}

func (s *Service) UpdateCoverImage(ctx context.Context, userID string, header *multipart.FileHeader) (users.Profile, error) {
	if header == nil {
		return users.Profile{}, ErrCoverRequired
	}
	url := s.relay.Upload(ctx, header)
	if url == "" {
		return users.Profile{}, ErrCoverUpload
	}

	updated, err := s.store.Update(ctx, userID, users.Patch{CoverImageURL: &url})
	if err != nil {
		return users.Profile{}, mapStoreError(err, "update cover image")
	}
	return updated.Profile(), nil
}

func mapStoreError(err error, op string) error {
	switch {
	case errors.Is(err, users.ErrAlreadyExists):
		return ErrUserExists
	case errors.Is(err, users.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, users.ErrInvalidRecord):
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
