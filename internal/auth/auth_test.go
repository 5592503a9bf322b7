// internal/auth/auth_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	ok, err := VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	_, err := VerifyPassword("pw", "not-an-encoded-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	token, err := CreateJWT("user-123")
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", sub)
}

func TestJWTRejectsTampering(t *testing.T) {
	require.NoError(t, Init())

	token, err := CreateJWT("user-123")
	require.NoError(t, err)

	_, err = AuthenticateJWT(token + "x")
	assert.Error(t, err)
}
