// Package password hashes and verifies account credentials.
//
// Hashes are self-describing: bcrypt hashes start with "$2", argon2id hashes
// use the PHC string format. Verification picks the algorithm from the stored
// hash, so the configured algorithm can change without invalidating existing
// accounts.
package password

import (
	"errors"
	"fmt"
	"strings"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2ID = "argon2id"
)

// MaxLength is the longest password in bytes that every algorithm accepts.
// bcrypt ignores input past this point, so longer passwords are refused.
const MaxLength = 72

var (
	ErrEmptyPassword = errors.New("password is empty")
	ErrTooLong       = errors.New("password is too long")
)

// CheckLength reports ErrTooLong for a password no hasher will accept.
func CheckLength(plaintext string) error {
	if len(plaintext) > MaxLength {
		return ErrTooLong
	}
	return nil
}

// Hasher is the only path by which a password reaches storage.
type Hasher interface {
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches hash. A malformed hash is a mismatch.
	Verify(plaintext, hash string) bool
}

// Options selects and tunes the hashing algorithm used for new hashes.
type Options struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Params
}

// New returns a Hasher that hashes with the configured algorithm and verifies
// hashes produced by any supported algorithm.
func New(opts Options) (Hasher, error) {
	bc, err := NewBcrypt(opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	params := opts.Argon2
	if params == (Argon2Params{}) {
		params = DefaultArgon2Params()
	}
	a2, err := NewArgon2(params)
	if err != nil {
		return nil, err
	}

	algorithm := strings.ToLower(strings.TrimSpace(opts.Algorithm))
	switch algorithm {
	case "", AlgorithmBcrypt:
		return &dispatcher{primary: bc, bcrypt: bc, argon2: a2}, nil
	case AlgorithmArgon2ID:
		return &dispatcher{primary: a2, bcrypt: bc, argon2: a2}, nil
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", opts.Algorithm)
	}
}

type dispatcher struct {
	primary Hasher
	bcrypt  *Bcrypt
	argon2  *Argon2
}

func (d *dispatcher) Hash(plaintext string) (string, error) {
	return d.primary.Hash(plaintext)
}

func (d *dispatcher) Verify(plaintext, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$"+argon2ID+"$"):
		return d.argon2.Verify(plaintext, hash)
	case strings.HasPrefix(hash, "$2"):
		return d.bcrypt.Verify(plaintext, hash)
	default:
		return false
	}
}
