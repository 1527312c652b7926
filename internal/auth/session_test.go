// internal/auth/session_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceTokenRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	token, err := CreateDeviceToken("dev-a")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	deviceID, err := VerifyDeviceToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dev-a", deviceID)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, err := VerifyDeviceToken("not-a-token")
	assert.Error(t, err)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	require.NoError(t, Init())
	token, err := CreateDeviceToken("dev-a")
	require.NoError(t, err)

	// Rotating the key pair invalidates previously issued tokens.
	require.NoError(t, Init())
	_, err = VerifyDeviceToken(token)
	assert.Error(t, err)
}

func TestTokenExpireTimeParsing(t *testing.T) {
	t.Setenv("TOKEN_EXPIRE_TIME", "24h")
	require.NoError(t, Init())
	assert.Equal(t, 86400, TOKEN_EXPIRE_TIME_SEC)

	t.Setenv("TOKEN_EXPIRE_TIME", "never")
	require.NoError(t, Init())
	assert.Equal(t, 0, TOKEN_EXPIRE_TIME_SEC)
}
