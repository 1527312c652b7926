// internal/handlers/lobby_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	srv := NewServer(store.NewMemory(), events.NewPublisher(logger, nil), logger)
	return srv, srv.Routes()
}

func doJSON(t *testing.T, h http.Handler, method, path, device string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if device != "" {
		req.Header.Set("X-Device-ID", device)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeLobbyResponse(t *testing.T, w *httptest.ResponseRecorder) models.LobbyResponse {
	t.Helper()
	var resp models.LobbyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateLobbyEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/lobby/create", "dev-a", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decodeLobbyResponse(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Lobby)
	assert.Len(t, resp.Lobby.Code, 4)
	assert.Equal(t, models.StatusWaiting, resp.Lobby.Status)
}

func TestCreateLobbyRequiresDevice(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/lobby/create", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeLobbyResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, models.ReasonInvalidDeviceID, resp.Reason)
}

func TestJoinLobbyEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	created := decodeLobbyResponse(t, doJSON(t, h, "POST", "/lobby/create", "dev-a", nil))
	require.NotNil(t, created.Lobby)

	w := doJSON(t, h, "POST", "/lobby/join", "dev-b", map[string]string{"code": created.Lobby.Code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeLobbyResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Lobby.CurrentPlayers)
}

func TestJoinShortCodeIsValidationFailure(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/lobby/join", "dev-a", map[string]string{"code": "AB1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decodeLobbyResponse(t, w)
	assert.Equal(t, models.ReasonInvalidCode, resp.Reason)
}

func TestJoinMissingLobbyIs404(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/lobby/join", "dev-a", map[string]string{"code": "ZZZZ"})
	require.Equal(t, http.StatusNotFound, w.Code)

	resp := decodeLobbyResponse(t, w)
	assert.Equal(t, models.ReasonLobbyNotFound, resp.Reason)
}

func TestToggleReadyEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	created := decodeLobbyResponse(t, doJSON(t, h, "POST", "/lobby/create", "dev-a", nil))
	doJSON(t, h, "POST", "/lobby/join", "dev-b", map[string]string{"code": created.Lobby.Code})

	w := doJSON(t, h, "POST", "/lobby/ready", "dev-a", map[string]bool{"is_ready": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeLobbyResponse(t, w)
	assert.Equal(t, models.StatusWaiting, resp.Lobby.Status)

	w = doJSON(t, h, "POST", "/lobby/ready", "dev-b", map[string]bool{"is_ready": true})
	require.Equal(t, http.StatusOK, w.Code)

	resp = decodeLobbyResponse(t, w)
	assert.Equal(t, models.StatusCountdown, resp.Lobby.Status)
	assert.NotNil(t, resp.Lobby.CountdownStartTime)
}

func TestLeaveLobbyEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, "POST", "/lobby/create", "dev-a", nil)

	w := doJSON(t, h, "POST", "/lobby/leave", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, "GET", "/lobby/status", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeLobbyResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Lobby)
}

func TestLeaveWithoutLobbyIs404(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "POST", "/lobby/leave", "dev-a", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	resp := decodeLobbyResponse(t, w)
	assert.Equal(t, models.ReasonNotInLobby, resp.Reason)
}

func TestFindMatchEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	var first models.MatchmakingResponse
	w := doJSON(t, h, "POST", "/lobby/find_match", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.True(t, first.InQueue)
	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 0, first.EstimatedWaitTime)

	var second models.MatchmakingResponse
	w = doJSON(t, h, "POST", "/lobby/find_match", "dev-b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.False(t, second.InQueue)
	require.NotNil(t, second.Lobby)
	assert.Equal(t, 2, second.Lobby.CurrentPlayers)

	// Queue is empty after the match.
	var status models.MatchmakingResponse
	w = doJSON(t, h, "GET", "/lobby/queue_status", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.InQueue)
}

func TestLeaveQueueEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	doJSON(t, h, "POST", "/lobby/find_match", "dev-a", nil)

	w := doJSON(t, h, "POST", "/lobby/leave_queue", "dev-a", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.MatchmakingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "left queue", resp.Message)
}

func TestHealthEndpoint(t *testing.T) {
	_, h := newTestServer(t)

	w := doJSON(t, h, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
