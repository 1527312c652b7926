// internal/models/responses.go
package models

import "time"

// FailureReason is the closed set of machine-readable failure tags returned
// by lobby and matchmaking operations. Clients branch on these, never on
// free-form messages.
type FailureReason string

const (
	ReasonInvalidDeviceID  FailureReason = "invalid_device_id"
	ReasonInvalidCode      FailureReason = "invalid_code"
	ReasonLobbyNotFound    FailureReason = "lobby_not_found"
	ReasonLobbyFull        FailureReason = "lobby_full"
	ReasonLobbyNotJoinable FailureReason = "lobby_not_joinable"
	ReasonAlreadyInLobby   FailureReason = "already_in_this_lobby"
	ReasonInAnotherLobby   FailureReason = "in_another_lobby"
	ReasonNotInLobby       FailureReason = "not_in_lobby"
	ReasonPlayerNotFound   FailureReason = "player_not_found"
	ReasonPlayerExists     FailureReason = "player_already_exists"
	ReasonUsernameTaken    FailureReason = "username_taken"
	ReasonStoreError       FailureReason = "store_error"
)

// LobbyResponse is the result envelope for lobby lifecycle operations.
type LobbyResponse struct {
	Success bool          `json:"success"`
	Reason  FailureReason `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
	Lobby   *LobbyInfo    `json:"lobby,omitempty"`
}

// MatchmakingResponse is the result envelope for queue operations. Lobby is
// set only when a match was formed.
type MatchmakingResponse struct {
	Success           bool          `json:"success"`
	InQueue           bool          `json:"in_queue"`
	QueuePosition     int           `json:"queue_position,omitempty"`
	EstimatedWaitTime int           `json:"estimated_wait_time"`
	Reason            FailureReason `json:"reason,omitempty"`
	Message           string        `json:"message,omitempty"`
	Lobby             *LobbyInfo    `json:"lobby,omitempty"`
}

// PlayerResponse wraps a player lookup.
type PlayerResponse struct {
	Exists bool    `json:"exists"`
	Player *Player `json:"player,omitempty"`
}

// LoginResponse is returned by /login. Token is a signed device session
// token accepted in place of the raw device id header.
type LoginResponse struct {
	Exists        bool    `json:"exists"`
	Player        *Player `json:"player,omitempty"`
	NeedsUsername bool    `json:"needs_username"`
	Token         string  `json:"token,omitempty"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	HostInfo  map[string]string `json:"host_info"`
}
