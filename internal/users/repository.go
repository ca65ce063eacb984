package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound             = errors.New("user not found")
	ErrAlreadyExists        = errors.New("user with email or username already exists")
	ErrInvalidRecord        = errors.New("invalid user record")
	ErrRefreshTokenMismatch = errors.New("stored refresh token does not match")
)

const uniqueViolation = "23505"

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash,
		refresh_token_hash, refresh_token_expires_at, created_at, updated_at`

var validate = validator.New(validator.WithRequiredStructEnabled())

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		user        User
		refreshHash sql.NullString
		refreshExp  sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&user.CoverImageURL,
		&user.PasswordHash,
		&refreshHash,
		&refreshExp,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	if refreshHash.Valid {
		value := refreshHash.String
		user.RefreshTokenHash = &value
	}
	if refreshExp.Valid {
		value := refreshExp.Time.UTC()
		user.RefreshTokenExpiresAt = &value
	}
	return user, nil
}

// FindByIdentifier returns the oldest user whose username or email matches.
// Empty identifiers never match.
func (r *Repository) FindByIdentifier(ctx context.Context, username, email string) (User, error) {
	username = normalize(username)
	email = normalize(email)
	if username == "" && email == "" {
		return User{}, ErrNotFound
	}

	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY created_at ASC
		LIMIT 1
	`, username, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by identifier: %w", err)
	}
	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}

	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}

// Save inserts a user without an ID and updates identity, profile and
// password fields of an existing one. Refresh-token state is not written here.
func (r *Repository) Save(ctx context.Context, user *User, opts SaveOptions) (User, error) {
	user.Username = normalize(user.Username)
	user.Email = normalize(user.Email)
	user.FullName = strings.TrimSpace(user.FullName)

	if !opts.SkipValidation {
		if err := validate.Struct(user); err != nil {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
	}

	now := r.now().UTC()
	if user.ID == "" {
		return r.insert(ctx, user, now)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET username = $2, email = $3, full_name = $4, avatar_url = $5,
			cover_image_url = $6, password_hash = $7, updated_at = $8
		WHERE id = $1
	`, user.ID, user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PasswordHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}
	if err := expectAffected(res, ErrNotFound); err != nil {
		return User{}, err
	}

	user.UpdatedAt = now
	return *user, nil
}

func (r *Repository) insert(ctx context.Context, user *User, now time.Time) (User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return User{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, id.String(), user.Username, user.Email, user.FullName, user.AvatarURL, user.CoverImageURL, user.PasswordHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	user.ID = id.String()
	user.CreatedAt = now
	user.UpdatedAt = now
	return *user, nil
}

// Update applies a partial profile change and returns the updated record.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (User, error) {
	if patch.empty() {
		return r.FindByID(ctx, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	if patch.Email != nil {
		email := normalize(*patch.Email)
		if err := validate.Var(email, "required,email"); err != nil {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		patch.Email = &email
	}

	user, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
			email = COALESCE($3, email),
			avatar_url = COALESCE($4, avatar_url),
			cover_image_url = COALESCE($5, cover_image_url),
			updated_at = $6
		WHERE id = $1
		RETURNING `+userColumns+`
	`, id, patch.FullName, patch.Email, patch.AvatarURL, patch.CoverImageURL, r.now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("update user profile: %w", err)
	}
	return user, nil
}

// SetRefreshToken overwrites whatever refresh token the user held.
func (r *Repository) SetRefreshToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = $2, refresh_token_expires_at = $3
		WHERE id = $1
	`, id, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return expectAffected(res, ErrNotFound)
}

// RotateRefreshToken replaces the stored refresh token only while it still
// equals oldHash. A concurrent rotation or logout makes it fail with
// ErrRefreshTokenMismatch.
func (r *Repository) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = $3, refresh_token_expires_at = $4
		WHERE id = $1 AND refresh_token_hash = $2
	`, id, oldHash, newHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return expectAffected(res, ErrRefreshTokenMismatch)
}

// ClearRefreshToken is idempotent: clearing an absent token is not an error.
func (r *Repository) ClearRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token_hash = NULL, refresh_token_expires_at = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// ClearExpiredRefreshTokens drops stored refresh tokens past their expiry, at
// most batchSize rows per call.
func (r *Repository) ClearExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM users
			WHERE refresh_token_expires_at IS NOT NULL AND refresh_token_expires_at < $1
			ORDER BY refresh_token_expires_at ASC
			LIMIT $2
		)
		UPDATE users u
		SET refresh_token_hash = NULL, refresh_token_expires_at = NULL
		FROM stale
		WHERE u.id = stale.id
	`, r.now().UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}
	return affected, nil
}

func expectAffected(res sql.Result, none error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return none
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
