// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/faceoff-gg/faceoff/internal/auth"
	"github.com/faceoff-gg/faceoff/internal/lobby"
	"github.com/faceoff-gg/faceoff/internal/models"
)

// deviceID resolves the caller's device identity: the X-Device-ID header
// takes precedence, then a signed X-Session-Token. Returns empty when
// neither yields an id.
func deviceID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Device-ID")); id != "" {
		return id
	}
	if token := r.Header.Get("X-Session-Token"); token != "" {
		if id, err := auth.VerifyDeviceToken(token); err == nil {
			return id
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// failureStatus maps a failure reason to an HTTP status: validation 400,
// not-found 404, conflicts 409, everything else 500.
func failureStatus(reason models.FailureReason) int {
	switch reason {
	case models.ReasonInvalidDeviceID, models.ReasonInvalidCode:
		return http.StatusBadRequest
	case models.ReasonLobbyNotFound, models.ReasonNotInLobby, models.ReasonPlayerNotFound:
		return http.StatusNotFound
	case models.ReasonLobbyFull, models.ReasonLobbyNotJoinable, models.ReasonAlreadyInLobby,
		models.ReasonInAnotherLobby, models.ReasonPlayerExists, models.ReasonUsernameTaken:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeLobbyError renders an operation error as a LobbyResponse. Structured
// failures keep their reason; anything else is a generic store failure with
// the cause logged, not leaked.
func (s *Server) writeLobbyError(w http.ResponseWriter, r *http.Request, err error) {
	if f, ok := lobby.AsFailure(err); ok {
		writeJSON(w, failureStatus(f.Reason), models.LobbyResponse{
			Success: false,
			Reason:  f.Reason,
			Message: f.Message,
		})
		return
	}
	s.Log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, models.LobbyResponse{
		Success: false,
		Reason:  models.ReasonStoreError,
		Message: "internal error",
	})
}

// writeMatchmakingError is writeLobbyError for the queue response envelope.
func (s *Server) writeMatchmakingError(w http.ResponseWriter, r *http.Request, err error) {
	if f, ok := lobby.AsFailure(err); ok {
		writeJSON(w, failureStatus(f.Reason), models.MatchmakingResponse{
			Success: false,
			Reason:  f.Reason,
			Message: f.Message,
		})
		return
	}
	s.Log.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, models.MatchmakingResponse{
		Success: false,
		Reason:  models.ReasonStoreError,
		Message: "internal error",
	})
}
