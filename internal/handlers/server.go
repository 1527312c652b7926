// internal/handlers/server.go

// Package handlers exposes the lobby engine over HTTP and WebSocket.
package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/lobby"
	"github.com/faceoff-gg/faceoff/internal/matchmaking"
	"github.com/faceoff-gg/faceoff/internal/store"
)

// Server bundles the lobby engine's components behind the HTTP surface.
type Server struct {
	Log         *logrus.Logger
	Store       store.Store
	Lobbies     *lobby.Service
	Matchmaking *matchmaking.Service
	Events      *events.Publisher
}

// NewServer wires one running instance of the engine: keyed mutex, connection
// registry, countdown controller, lifecycle service, and matchmaking queue
// all share state scoped to this server, never globals. The registry's
// OnEmpty hook cancels a lobby's countdown when its last channel closes.
func NewServer(st store.Store, pub *events.Publisher, log *logrus.Logger) *Server {
	keys := lobby.NewKeyMutex()
	registry := lobby.NewRegistry(log)
	countdown := lobby.NewCountdown(st, registry, keys, pub, log)
	registry.OnEmpty = func(code string) {
		countdown.Stop(code)
	}
	lobbies := lobby.NewService(st, registry, countdown, keys, pub, log)
	mm := matchmaking.NewService(st, lobbies, pub, log)

	return &Server{
		Log:         log,
		Store:       st,
		Lobbies:     lobbies,
		Matchmaking: mm,
		Events:      pub,
	}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /players", s.CreatePlayerHandler)
	mux.HandleFunc("POST /login", s.LoginHandler)
	mux.HandleFunc("GET /players/{device_id}", s.GetPlayerHandler)
	mux.HandleFunc("PUT /players/{device_id}/username", s.UpdateUsernameHandler)
	mux.HandleFunc("DELETE /players/{device_id}", s.DeletePlayerHandler)

	mux.HandleFunc("POST /lobby/create", s.CreateLobbyHandler)
	mux.HandleFunc("POST /lobby/join", s.JoinLobbyHandler)
	mux.HandleFunc("POST /lobby/leave", s.LeaveLobbyHandler)
	mux.HandleFunc("POST /lobby/ready", s.ToggleReadyHandler)
	mux.HandleFunc("GET /lobby/status", s.LobbyStatusHandler)

	mux.HandleFunc("POST /lobby/find_match", s.FindMatchHandler)
	mux.HandleFunc("POST /lobby/leave_queue", s.LeaveQueueHandler)
	mux.HandleFunc("GET /lobby/queue_status", s.QueueStatusHandler)

	mux.HandleFunc("GET /ws/lobby/{code}", s.LobbyWSHandler)
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /{$}", s.RootHandler)

	return mux
}
