package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret!", hash, "hash must not be the plaintext")
	assert.True(t, CheckPassword("s3cret!", hash))
	assert.False(t, CheckPassword("wrong", hash))
	assert.False(t, CheckPassword("s3cret!", "not-a-bcrypt-hash"))
}

func TestHashPasswordSalts(t *testing.T) {
	first, err := HashPassword("same")
	require.NoError(t, err)
	second, err := HashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of one password should differ")
}

func TestGenerateSessionToken(t *testing.T) {
	seen := make(map[string]bool)
	for range 20 {
		token, err := GenerateSessionToken()
		require.NoError(t, err)
		assert.Len(t, token, 43)
		assert.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}
