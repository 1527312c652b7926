// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/faceoff-gg/faceoff/internal/models"
)

type joinLobbyRequest struct {
	Code string `json:"code"`
}

type toggleReadyRequest struct {
	IsReady bool `json:"is_ready"`
}

// CreateLobbyHandler creates a lobby with the caller as its sole member.
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.Lobbies.Create(r.Context(), deviceID(r))
	if err != nil {
		s.writeLobbyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.LobbyResponse{Success: true, Lobby: info})
}

// JoinLobbyHandler adds the caller to the lobby named by the code in the
// request body.
func (s *Server) JoinLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req joinLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.LobbyResponse{
			Success: false,
			Reason:  models.ReasonInvalidCode,
			Message: "request body must be JSON with a code field",
		})
		return
	}
	info, err := s.Lobbies.Join(r.Context(), deviceID(r), req.Code)
	if err != nil {
		s.writeLobbyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LobbyResponse{Success: true, Lobby: info})
}

// LeaveLobbyHandler removes the caller from their current lobby.
func (s *Server) LeaveLobbyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Lobbies.Leave(r.Context(), deviceID(r)); err != nil {
		s.writeLobbyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LobbyResponse{Success: true, Message: "left lobby"})
}

// ToggleReadyHandler flips the caller's ready flag and returns the resulting
// lobby snapshot.
func (s *Server) ToggleReadyHandler(w http.ResponseWriter, r *http.Request) {
	var req toggleReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.LobbyResponse{
			Success: false,
			Reason:  models.ReasonInvalidDeviceID,
			Message: "request body must be JSON with an is_ready field",
		})
		return
	}
	info, err := s.Lobbies.ToggleReady(r.Context(), deviceID(r), req.IsReady)
	if err != nil {
		s.writeLobbyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LobbyResponse{Success: true, Lobby: info})
}

// LobbyStatusHandler returns the caller's lobby snapshot, or success with no
// lobby when the device is not in one.
func (s *Server) LobbyStatusHandler(w http.ResponseWriter, r *http.Request) {
	info, err := s.Lobbies.Status(r.Context(), deviceID(r))
	if err != nil {
		s.writeLobbyError(w, r, err)
		return
	}
	if info == nil {
		writeJSON(w, http.StatusOK, models.LobbyResponse{Success: true, Message: "not in a lobby"})
		return
	}
	writeJSON(w, http.StatusOK, models.LobbyResponse{Success: true, Lobby: info})
}
