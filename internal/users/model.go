package users

import "time"

// User is the persisted account record. Secret fields never serialize.
type User struct {
	ID            string `validate:"omitempty,uuid"`
	Username      string `validate:"required,lowercase,max=64"`
	Email         string `validate:"required,lowercase,email,max=254"`
	FullName      string `validate:"required,max=120"`
	AvatarURL     string `validate:"required,url"`
	CoverImageURL string `validate:"omitempty,url"`
	PasswordHash  string `json:"-" validate:"required"`

	// RefreshTokenHash is the SHA-256 digest of the single live refresh token,
	// nil when the user has none (never logged in, or logged out).
	RefreshTokenHash      *string    `json:"-"`
	RefreshTokenExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is the outward projection of a User without credential fields.
type Profile struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullName"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.AvatarURL,
		CoverImage: u.CoverImageURL,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// SaveOptions tunes a Save call. SkipValidation is for writes that only touch
// state the caller already produced through a trusted path (e.g. a fresh hash).
type SaveOptions struct {
	SkipValidation bool
}

// Patch lists the profile fields Update may change. Nil fields are left as is.
type Patch struct {
	FullName      *string
	Email         *string
	AvatarURL     *string
	CoverImageURL *string
}

func (p Patch) empty() bool {
	return p.FullName == nil && p.Email == nil && p.AvatarURL == nil && p.CoverImageURL == nil
}
