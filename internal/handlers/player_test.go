// internal/handlers/player_test.go
package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faceoff-gg/faceoff/internal/auth"
	"github.com/faceoff-gg/faceoff/internal/models"
)

func TestCreateAndGetPlayer(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/players", "", map[string]any{
		"device_id": "dev-a",
		"user_name": "ace",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, h, "GET", "/players/dev-a", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.PlayerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)
	require.NotNil(t, resp.Player)
	require.NotNil(t, resp.Player.UserName)
	assert.Equal(t, "ace", *resp.Player.UserName)
	assert.Equal(t, 1000, resp.Player.Elo)
}

func TestGetMissingPlayerIs404(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "GET", "/players/ghost", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp models.PlayerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
}

func TestUsernameConflict(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/players", "", map[string]any{"device_id": "dev-a", "user_name": "ace"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, "POST", "/players", "", map[string]any{"device_id": "dev-b", "user_name": "ace"})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdateUsername(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, "POST", "/players", "", map[string]any{"device_id": "dev-a"})

	w := doJSON(t, h, "PUT", "/players/dev-a/username", "", map[string]string{"user_name": "ace"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.PlayerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Player.UserName)
	assert.Equal(t, "ace", *resp.Player.UserName)
}

func TestLoginCreatesPlayerAndIssuesToken(t *testing.T) {
	require.NoError(t, auth.Init())
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/login", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Exists)
	assert.True(t, resp.NeedsUsername)
	require.NotEmpty(t, resp.Token)

	id, err := auth.VerifyDeviceToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "dev-a", id)

	// Second login finds the account and the token works as identity.
	w = doJSON(t, h, "POST", "/login", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Exists)
}

func TestDeletePlayer(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, "POST", "/players", "", map[string]any{"device_id": "dev-a"})

	w := doJSON(t, h, "DELETE", "/players/dev-a", "", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, h, "GET", "/players/dev-a", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
