package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Password1!", 10)
	require.NoError(t, err)

	assert.True(t, VerifyPassword("Password1!", hash))
	assert.False(t, VerifyPassword("password1!", hash))
	assert.False(t, VerifyPassword("", hash))
}

func TestVerifyPasswordFailsClosedOnMalformedHash(t *testing.T) {
	assert.False(t, VerifyPassword("Password1!", ""))
	assert.False(t, VerifyPassword("Password1!", "not-a-bcrypt-hash"))
	assert.False(t, VerifyPassword("Password1!", "$2a$xx$broken"))
}

func TestHashPasswordSaltsPerCredential(t *testing.T) {
	h1, err := HashPassword("Password1!", 10)
	require.NoError(t, err)
	h2, err := HashPassword("Password1!", 10)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashPasswordCostFallback(t *testing.T) {
	// Sub-minimum costs fall back to the library default rather than
	// producing a weak hash.
	hash, err := HashPassword("Password1!", 0)
	require.NoError(t, err)
	assert.True(t, VerifyPassword("Password1!", hash))
}
