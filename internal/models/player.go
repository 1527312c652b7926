package models

import "time"

// Player represents a row in the players table. Accounts are keyed by an
// opaque device identifier; UserName stays nil until the player picks one.
type Player struct {
	DeviceID   string    `json:"device_id"`
	UserName   *string   `json:"user_name"`
	Gold       int       `json:"gold"`
	Diamond    int       `json:"diamond"`
	Elo        int       `json:"elo"`
	LastOnline time.Time `json:"last_online"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
