// internal/handlers/matchmaking.go
package handlers

import (
	"net/http"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// FindMatchHandler pairs the caller with the oldest queued player or
// enqueues them.
func (s *Server) FindMatchHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Matchmaking.FindMatch(r.Context(), deviceID(r))
	if err != nil {
		s.writeMatchmakingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MatchmakingResponse{
		Success:           true,
		InQueue:           res.InQueue,
		QueuePosition:     res.QueuePosition,
		EstimatedWaitTime: res.EstimatedWait,
		Lobby:             res.Lobby,
	})
}

// LeaveQueueHandler removes the caller's queue entry; idempotent.
func (s *Server) LeaveQueueHandler(w http.ResponseWriter, r *http.Request) {
	removed, err := s.Matchmaking.LeaveQueue(r.Context(), deviceID(r))
	if err != nil {
		s.writeMatchmakingError(w, r, err)
		return
	}
	msg := "not in queue"
	if removed {
		msg = "left queue"
	}
	writeJSON(w, http.StatusOK, models.MatchmakingResponse{Success: true, Message: msg})
}

// QueueStatusHandler reports the caller's queue position and wait estimate.
func (s *Server) QueueStatusHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.Matchmaking.QueueStatus(r.Context(), deviceID(r))
	if err != nil {
		s.writeMatchmakingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MatchmakingResponse{
		Success:           true,
		InQueue:           res.InQueue,
		QueuePosition:     res.QueuePosition,
		EstimatedWaitTime: res.EstimatedWait,
	})
}
