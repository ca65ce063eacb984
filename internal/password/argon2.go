package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2ID = "argon2id"

	minArgon2Memory  uint32 = 8 * 1024
	minArgon2SaltLen uint32 = 16
	minArgon2KeyLen  uint32 = 16

	// Stored hashes above these are treated as corrupt.
	maxArgon2Memory uint32 = 1024 * 1024
	maxArgon2Time   uint32 = 16
)

var errMalformedHash = errors.New("malformed argon2id hash")

type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type Argon2 struct {
	params Argon2Params
}

func NewArgon2(params Argon2Params) (*Argon2, error) {
	if params.Memory < minArgon2Memory {
		return nil, fmt.Errorf("argon2 memory must be >= %d KB", minArgon2Memory)
	}
	if params.Time < 1 || params.Parallelism < 1 {
		return nil, errors.New("argon2 time and parallelism must be >= 1")
	}
	if params.SaltLength < minArgon2SaltLen || params.KeyLength < minArgon2KeyLen {
		return nil, errors.New("argon2 salt and key length must be >= 16")
	}
	return &Argon2{params: params}, nil
}

func (a *Argon2) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if err := CheckLength(plaintext); err != nil {
		return "", err
	}

	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (a *Argon2) Verify(plaintext, hash string) bool {
	params, salt, key, err := decodeArgon2(hash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(plaintext), salt, params.Time, params.Memory, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(computed, key) == 1
}

func decodeArgon2(hash string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != argon2ID {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Parallelism); err != nil {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	if params.Memory < minArgon2Memory || params.Time < 1 || params.Parallelism < 1 {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	if params.Memory > maxArgon2Memory || params.Time > maxArgon2Time {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minArgon2SaltLen) {
		return Argon2Params{}, nil, nil, errMalformedHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < int(minArgon2KeyLen) {
		return Argon2Params{}, nil, nil, errMalformedHash
	}

	return params, salt, key, nil
}
