package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastArgon2() Argon2Params {
	return Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func TestBcryptHashAndVerify(t *testing.T) {
	hasher, err := NewBcrypt(4)
	require.NoError(t, err)

	hash, err := hasher.Hash("Secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret1", hash)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	assert.True(t, hasher.Verify("Secret1", hash))
	assert.False(t, hasher.Verify("Secret2", hash))
	assert.False(t, hasher.Verify("", hash))
}

func TestBcryptSaltsEveryHash(t *testing.T) {
	hasher, err := NewBcrypt(4)
	require.NoError(t, err)

	first, err := hasher.Hash("same-password")
	require.NoError(t, err)
	second, err := hasher.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestBcryptRejectsCostOutOfRange(t *testing.T) {
	_, err := NewBcrypt(2)
	require.Error(t, err)
	_, err = NewBcrypt(40)
	require.Error(t, err)
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastArgon2())
	require.NoError(t, err)

	hash, err := hasher.Hash("Secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"), hash)

	assert.True(t, hasher.Verify("Secret1", hash))
	assert.False(t, hasher.Verify("secret1", hash))
}

func TestArgon2RejectsWeakParams(t *testing.T) {
	params := fastArgon2()
	params.Memory = 1024
	_, err := NewArgon2(params)
	require.Error(t, err)
}

func TestVerifyMalformedHashIsFalse(t *testing.T) {
	hasher, err := New(Options{Algorithm: AlgorithmBcrypt, BcryptCost: 4, Argon2: fastArgon2()})
	require.NoError(t, err)

	for _, hash := range []string{
		"",
		"plain-text",
		"$2a$10$short",
		"$argon2id$v=19$m=8192,t=1,p=1$bad$bad",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5",
	} {
		assert.False(t, hasher.Verify("Secret1", hash), "hash %q", hash)
	}
}

func TestNewVerifiesAcrossAlgorithms(t *testing.T) {
	bcryptFirst, err := New(Options{Algorithm: AlgorithmBcrypt, BcryptCost: 4, Argon2: fastArgon2()})
	require.NoError(t, err)
	argonFirst, err := New(Options{Algorithm: AlgorithmArgon2ID, BcryptCost: 4, Argon2: fastArgon2()})
	require.NoError(t, err)

	legacy, err := bcryptFirst.Hash("Secret1")
	require.NoError(t, err)
	current, err := argonFirst.Hash("Secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(current, "$argon2id$"))

	assert.True(t, argonFirst.Verify("Secret1", legacy))
	assert.True(t, bcryptFirst.Verify("Secret1", current))
	assert.False(t, argonFirst.Verify("wrong", legacy))
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	_, err := New(Options{Algorithm: "md5"})
	require.Error(t, err)
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	hasher, err := New(Options{BcryptCost: 4, Argon2: fastArgon2()})
	require.NoError(t, err)

	_, err = hasher.Hash("")
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestHashRejectsPasswordOverMaxLength(t *testing.T) {
	for _, algorithm := range []string{AlgorithmBcrypt, AlgorithmArgon2ID} {
		hasher, err := New(Options{Algorithm: algorithm, BcryptCost: 4, Argon2: fastArgon2()})
		require.NoError(t, err)

		_, err = hasher.Hash(strings.Repeat("a", MaxLength+1))
		assert.ErrorIs(t, err, ErrTooLong, algorithm)

		hash, err := hasher.Hash(strings.Repeat("a", MaxLength))
		require.NoError(t, err, algorithm)
		assert.True(t, hasher.Verify(strings.Repeat("a", MaxLength), hash), algorithm)
	}
}

func TestVerifyRejectsOversizedArgon2Params(t *testing.T) {
	hasher, err := New(Options{Algorithm: AlgorithmArgon2ID, BcryptCost: 4, Argon2: fastArgon2()})
	require.NoError(t, err)

	const salt = "c2FsdHNhbHRzYWx0c2FsdA"
	const key = "a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5"
	for _, costs := range []string{"m=4294967295,t=1,p=1", "m=8192,t=4294967295,p=1", "m=2097152,t=1,p=1", "m=8192,t=17,p=1"} {
		hash := "$argon2id$v=19$" + costs + "$" + salt + "$" + key
		assert.False(t, hasher.Verify("Secret1", hash), costs)
	}
}
