// internal/handlers/lobby_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/faceoff-gg/faceoff/internal/lobby"
	"github.com/faceoff-gg/faceoff/internal/models"
)

const (
	// wsPingInterval keeps intermediaries from dropping idle lobby channels.
	wsPingInterval = 30 * time.Second

	// countdownStaleAfter bounds trigger-on-connect: a persisted countdown
	// older than this is treated as abandoned rather than resumed.
	countdownStaleAfter = 15 * time.Second
)

// LobbyWSHandler upgrades to the lobby event channel. The device must be an
// authorized member of the lobby before the channel is registered; rejected
// connections close with a specific reason code rather than silently
// dropping.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	code := lobby.NormalizeCode(r.PathValue("code"))

	id := deviceID(r)
	if id == "" {
		id = r.URL.Query().Get("device_id")
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"lobby"},
		OriginPatterns: []string{"*"}, // Adjust in production
	})
	if err != nil {
		s.Log.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "lobby" {
		c.Close(BadSubprotocolError, "client must speak the lobby subprotocol")
		return
	}
	if id == "" {
		c.Close(InvalidDeviceIDError, "device identity required")
		return
	}
	if !lobby.IsValidCode(code) {
		c.Close(InvalidLobbyCodeError, "malformed lobby code")
		return
	}

	isMember, lby, err := s.Lobbies.Member(r.Context(), id, code)
	if err != nil {
		s.Log.Errorf("websocket membership check failed: %v", err)
		c.Close(websocket.StatusInternalError, "membership check failed")
		return
	}
	if lby == nil {
		c.Close(InvalidLobbyCodeError, "lobby does not exist")
		return
	}
	if !isMember {
		c.Close(NotLobbyMemberError, "join the lobby before connecting")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	conn := lobby.NewConn(id, cancel)
	s.Lobbies.Registry().Connect(code, id, conn)

	// A lobby persisted in countdown state has no task after a restart or
	// when every channel dropped mid-count; the first member back re-derives
	// it, provided the persisted start time is still fresh.
	if lby.Status == models.StatusCountdown && lby.CountdownStartTime != nil &&
		time.Since(*lby.CountdownStartTime) < countdownStaleAfter {
		if s.Lobbies.Countdown().StartIfAbsent(code) {
			s.Log.Infof("resumed countdown for lobby %s on connect", code)
		}
	}

	go s.writePump(ctx, c, conn)
	s.readPump(ctx, c)

	// Cleanup. Only the handler that still owns the registered channel tears
	// down membership; a stale handler racing a reconnect must not.
	if s.Lobbies.Registry().Disconnect(code, id, conn) {
		if err := s.Lobbies.Leave(context.Background(), id); err != nil {
			if _, ok := lobby.AsFailure(err); !ok {
				s.Log.Warnf("failed to leave lobby %s after disconnect: %v", code, err)
			}
		}
	}
	c.Close(websocket.StatusNormalClosure, "bye")
}

// writePump serializes outbound events onto the websocket and keeps the
// connection alive with periodic pings. Exits when the event channel closes
// or a write fails.
func (s *Server) writePump(ctx context.Context, c *websocket.Conn, conn *lobby.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-conn.Events():
			if !ok {
				c.Close(websocket.StatusNormalClosure, "lobby closed")
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.Log.Warnf("failed to marshal event %s: %v", ev.Type, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames until the peer disconnects. Client messages
// carry no meaning on this channel; every mutation goes through the HTTP
// surface.
func (s *Server) readPump(ctx context.Context, c *websocket.Conn) {
	for {
		if _, _, err := c.Read(ctx); err != nil {
			return
		}
	}
}
