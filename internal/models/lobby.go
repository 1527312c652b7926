// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// LobbyStatus is the lifecycle state of a lobby.
type LobbyStatus string

const (
	StatusWaiting     LobbyStatus = "waiting"
	StatusReadyCheck  LobbyStatus = "ready_check"
	StatusCountdown   LobbyStatus = "countdown"
	StatusGameStarted LobbyStatus = "game_started"
)

// Joinable reports whether a new member may enter a lobby in this state.
func (s LobbyStatus) Joinable() bool {
	return s == StatusWaiting || s == StatusReadyCheck
}

// Lobby represents a row in the lobbies table. CurrentPlayers must equal the
// live member count after every mutation; CountdownStartTime is non-nil iff
// Status == StatusCountdown.
type Lobby struct {
	ID                 uuid.UUID   `json:"id"`
	Code               string      `json:"code"`
	Status             LobbyStatus `json:"status"`
	MaxPlayers         int         `json:"max_players"`
	CurrentPlayers     int         `json:"current_players"`
	CountdownStartTime *time.Time  `json:"countdown_start_time,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// LobbyMember represents a row in the lobby_members table, keyed by
// (lobby_id, device_id). A device belongs to at most one lobby at a time.
type LobbyMember struct {
	LobbyID  uuid.UUID `json:"lobby_id"`
	DeviceID string    `json:"device_id"`
	IsReady  bool      `json:"is_ready"`
	JoinedAt time.Time `json:"joined_at"`
}

// QueueEntry represents a row in the matchmaking_queue table, keyed by
// device_id and ordered by QueueTime for strict FIFO pairing.
type QueueEntry struct {
	DeviceID  string    `json:"device_id"`
	QueueTime time.Time `json:"queue_time"`
}

// PlayerInfo is the per-member view inside a lobby snapshot. UserName is nil
// when the player directory has no record for the device.
type PlayerInfo struct {
	DeviceID string    `json:"device_id"`
	UserName *string   `json:"user_name"`
	IsReady  bool      `json:"is_ready"`
	JoinedAt time.Time `json:"joined_at"`
}

// LobbyInfo is the full lobby snapshot sent to clients on every state change.
type LobbyInfo struct {
	ID                 uuid.UUID    `json:"id"`
	Code               string       `json:"code"`
	Status             LobbyStatus  `json:"status"`
	MaxPlayers         int          `json:"max_players"`
	CurrentPlayers     int          `json:"current_players"`
	Players            []PlayerInfo `json:"players"`
	CountdownStartTime *time.Time   `json:"countdown_start_time,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
}

// Snapshot assembles a LobbyInfo from a lobby, its members, and an optional
// device_id -> display name map from the player directory.
func Snapshot(lobby *Lobby, members []LobbyMember, names map[string]string) *LobbyInfo {
	players := make([]PlayerInfo, 0, len(members))
	for _, m := range members {
		var name *string
		if n, ok := names[m.DeviceID]; ok {
			v := n
			name = &v
		}
		players = append(players, PlayerInfo{
			DeviceID: m.DeviceID,
			UserName: name,
			IsReady:  m.IsReady,
			JoinedAt: m.JoinedAt,
		})
	}
	return &LobbyInfo{
		ID:                 lobby.ID,
		Code:               lobby.Code,
		Status:             lobby.Status,
		MaxPlayers:         lobby.MaxPlayers,
		CurrentPlayers:     lobby.CurrentPlayers,
		Players:            players,
		CountdownStartTime: lobby.CountdownStartTime,
		CreatedAt:          lobby.CreatedAt,
	}
}
