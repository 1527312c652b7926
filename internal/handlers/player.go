// internal/handlers/player.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/faceoff-gg/faceoff/internal/auth"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

const maxUsernameLength = 24

type createPlayerRequest struct {
	DeviceID string  `json:"device_id"`
	UserName *string `json:"user_name,omitempty"`
}

type updateUsernameRequest struct {
	UserName string `json:"user_name"`
}

// CreatePlayerHandler registers a new player account keyed by device id.
func (s *Server) CreatePlayerHandler(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "request body must be JSON", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req.DeviceID)
	if id == "" {
		id = deviceID(r)
	}
	if id == "" {
		http.Error(w, "device_id is required", http.StatusBadRequest)
		return
	}
	if req.UserName != nil {
		name := strings.TrimSpace(*req.UserName)
		if name == "" || len(name) > maxUsernameLength {
			http.Error(w, "user_name must be 1-24 characters", http.StatusBadRequest)
			return
		}
		taken, err := s.Store.UsernameTaken(r.Context(), name, id)
		if err != nil {
			s.Log.Errorf("failed to check username: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if taken {
			http.Error(w, "username already taken", http.StatusConflict)
			return
		}
		req.UserName = &name
	}

	if _, err := s.Store.GetPlayer(r.Context(), id); err == nil {
		http.Error(w, "player already exists", http.StatusConflict)
		return
	} else if err != store.ErrNotFound {
		s.Log.Errorf("failed to check player: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	player := &models.Player{
		DeviceID:   id,
		UserName:   req.UserName,
		Elo:        1000,
		LastOnline: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.InsertPlayer(r.Context(), player); err != nil {
		s.Log.Errorf("failed to create player: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Events.Publish(r.Context(), "player_created", id, nil)
	writeJSON(w, http.StatusCreated, models.PlayerResponse{Exists: true, Player: player})
}

// LoginHandler resolves a device to its player account, creating one on
// first contact, and issues a session token. NeedsUsername tells the client
// to prompt for a display name.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	id := deviceID(r)
	if id == "" {
		http.Error(w, "device identity required", http.StatusBadRequest)
		return
	}

	existed := true
	player, err := s.Store.GetPlayer(r.Context(), id)
	if err == store.ErrNotFound {
		existed = false
		now := time.Now().UTC()
		player = &models.Player{
			DeviceID:   id,
			Elo:        1000,
			LastOnline: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.Store.InsertPlayer(r.Context(), player); err != nil {
			s.Log.Errorf("failed to create player on login: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	} else if err != nil {
		s.Log.Errorf("failed to load player: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	} else {
		if err := s.Store.TouchPlayer(r.Context(), id); err != nil && err != store.ErrNotFound {
			s.Log.Warnf("failed to touch player %s: %v", id, err)
		}
	}

	token, err := auth.CreateDeviceToken(id)
	if err != nil {
		s.Log.Errorf("failed to issue session token: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Events.Publish(r.Context(), "player_login", id, map[string]any{"new": !existed})
	writeJSON(w, http.StatusOK, models.LoginResponse{
		Exists:        existed,
		Player:        player,
		NeedsUsername: player.UserName == nil,
		Token:         token,
	})
}

// GetPlayerHandler looks up a player by device id.
func (s *Server) GetPlayerHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("device_id")
	player, err := s.Store.GetPlayer(r.Context(), id)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, models.PlayerResponse{Exists: false})
		return
	} else if err != nil {
		s.Log.Errorf("failed to load player: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.PlayerResponse{Exists: true, Player: player})
}

// UpdateUsernameHandler sets or changes a player's display name. Names are
// unique across players.
func (s *Server) UpdateUsernameHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("device_id")
	var req updateUsernameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "request body must be JSON", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.UserName)
	if name == "" || len(name) > maxUsernameLength {
		http.Error(w, "user_name must be 1-24 characters", http.StatusBadRequest)
		return
	}

	taken, err := s.Store.UsernameTaken(r.Context(), name, id)
	if err != nil {
		s.Log.Errorf("failed to check username: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if taken {
		http.Error(w, "username already taken", http.StatusConflict)
		return
	}
	if err := s.Store.UpdatePlayerUsername(r.Context(), id, name); err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, models.PlayerResponse{Exists: false})
		return
	} else if err != nil {
		s.Log.Errorf("failed to update username: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	player, err := s.Store.GetPlayer(r.Context(), id)
	if err != nil {
		s.Log.Errorf("failed to reload player: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Events.Publish(r.Context(), "username_changed", id, map[string]any{"user_name": name})
	writeJSON(w, http.StatusOK, models.PlayerResponse{Exists: true, Player: player})
}

// DeletePlayerHandler removes a player account.
func (s *Server) DeletePlayerHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("device_id")
	if err := s.Store.DeletePlayer(r.Context(), id); err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, models.PlayerResponse{Exists: false})
		return
	} else if err != nil {
		s.Log.Errorf("failed to delete player: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Events.Publish(r.Context(), "player_deleted", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
