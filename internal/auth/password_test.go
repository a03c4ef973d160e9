package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/srivardhan-kondu/EmpathyAI/internal/domain"
)

// testArgon2Params keeps argon2id fast enough for unit tests.
func testArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
}

func testHashers() map[string]PasswordHasher {
	return map[string]PasswordHasher{
		"bcrypt":   NewBcryptHasher(bcrypt.MinCost),
		"argon2id": NewArgon2idHasher(testArgon2Params()),
	}
}

func TestHashers_RoundTrip(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash("correct horse")
			require.NoError(t, err)
			assert.NotContains(t, hash, "correct horse")

			ok, err := h.Verify("correct horse", hash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = h.Verify("Correct horse", hash)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHashers_Salted(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			a, err := h.Hash("same password")
			require.NoError(t, err)
			b, err := h.Hash("same password")
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestHashers_RejectEmpty(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			_, err := h.Hash("")
			assert.ErrorIs(t, err, ErrEmptyPassword)
		})
	}
}

func TestHashers_CorruptHash(t *testing.T) {
	tests := []struct {
		name   string
		hasher PasswordHasher
		hash   string
	}{
		{"bcrypt garbage", NewBcryptHasher(bcrypt.MinCost), "not-a-hash"},
		{"bcrypt empty", NewBcryptHasher(bcrypt.MinCost), ""},
		{"argon2 wrong field count", NewArgon2idHasher(testArgon2Params()), "$argon2id$v=19$m=1024"},
		{"argon2 bad salt", NewArgon2idHasher(testArgon2Params()), "$argon2id$v=19$m=1024,t=1,p=1$!!!$AAAA"},
		{"argon2 bad params", NewArgon2idHasher(testArgon2Params()), "$argon2id$v=19$m=x,t=1,p=1$AAAA$AAAA"},
		{"argon2 zero threads", NewArgon2idHasher(testArgon2Params()), "$argon2id$v=19$m=1024,t=1,p=0$AAAA$AAAA"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := tc.hasher.Verify("whatever", tc.hash)
			assert.False(t, ok)
			assert.ErrorIs(t, err, domain.ErrCorruptCredential)
		})
	}
}

func TestBcryptHasher_CostFallback(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 12, NewBcryptHasher(12).cost)
}

func TestArgon2idHasher_PHCFormat(t *testing.T) {
	hash, err := NewArgon2idHasher(testArgon2Params()).Hash("pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"), hash)
}

func TestHasher_VerifiesEitherAlgorithm(t *testing.T) {
	bcryptHash, err := NewBcryptHasher(bcrypt.MinCost).Hash("legacy password")
	require.NoError(t, err)

	h, err := NewHasher(AlgorithmArgon2id, bcrypt.MinCost, testArgon2Params())
	require.NoError(t, err)

	newHash, err := h.Hash("fresh password")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(newHash, argon2Prefix))

	ok, err := h.Verify("legacy password", bcryptHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("fresh password", newHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewHasher_UnknownAlgorithm(t *testing.T) {
	_, err := NewHasher("md5", 12, DefaultArgon2Params())
	assert.Error(t, err)
}
