// internal/models/events.go
package models

import "time"

// EventType identifies a websocket event broadcast to lobby members.
type EventType string

const (
	EventPlayerJoined       EventType = "player_joined"
	EventPlayerLeft         EventType = "player_left"
	EventReadyStatusChanged EventType = "ready_status_changed"
	EventCountdownStarted   EventType = "countdown_started"
	EventCountdownTick      EventType = "countdown_tick"
	EventCountdownAborted   EventType = "countdown_aborted"
	EventGameStarted        EventType = "game_started"
	EventLobbyDeleted       EventType = "lobby_deleted"
	EventError              EventType = "error"
)

// Event is the wire format pushed over lobby websocket channels. Lobby
// carries the full snapshot where applicable; the remaining fields are set
// per event type.
type Event struct {
	Type             EventType  `json:"type"`
	Lobby            *LobbyInfo `json:"lobby,omitempty"`
	DeviceID         string     `json:"device_id,omitempty"`
	IsReady          *bool      `json:"is_ready,omitempty"`
	SecondsRemaining *int       `json:"seconds_remaining,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	Message          string     `json:"message,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}
