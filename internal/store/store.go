// Package store defines the persistent table-oriented store the lobby engine
// runs against. The engine treats it as the single source of truth; any
// implementation error is surfaced to callers as a generic store failure.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// ErrNotFound is returned when a requested row does not exist. Callers must
// distinguish it from other store errors to report not-found conditions
// separately from conflicts and infrastructure failures.
var ErrNotFound = errors.New("store: not found")

// Store is the durable table interface for lobbies, lobby members, the
// matchmaking queue, and player accounts.
type Store interface {
	// lobbies, keyed by id, unique-indexed on code
	InsertLobby(ctx context.Context, lobby *models.Lobby) error
	GetLobbyByID(ctx context.Context, id uuid.UUID) (*models.Lobby, error)
	GetLobbyByCode(ctx context.Context, code string) (*models.Lobby, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateLobby(ctx context.Context, lobby *models.Lobby) error
	DeleteLobby(ctx context.Context, id uuid.UUID) error

	// lobby_members, keyed by (lobby_id, device_id)
	InsertMember(ctx context.Context, member *models.LobbyMember) error
	GetMemberByDevice(ctx context.Context, deviceID string) (*models.LobbyMember, error)
	ListMembers(ctx context.Context, lobbyID uuid.UUID) ([]models.LobbyMember, error)
	UpdateMemberReady(ctx context.Context, lobbyID uuid.UUID, deviceID string, isReady bool) error
	ResetMembersReady(ctx context.Context, lobbyID uuid.UUID) error
	DeleteMember(ctx context.Context, lobbyID uuid.UUID, deviceID string) error

	// matchmaking_queue, keyed by device_id, sortable by queue_time
	InsertQueueEntry(ctx context.Context, entry *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, deviceID string) (*models.QueueEntry, error)
	ListQueue(ctx context.Context) ([]models.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, deviceID string) (bool, error)
	// PopOldestQueueEntry atomically removes and returns the entry with the
	// earliest queue_time, or (nil, nil) when the queue is empty. Concurrent
	// callers never observe the same entry.
	PopOldestQueueEntry(ctx context.Context) (*models.QueueEntry, error)
	DeleteQueueEntriesBefore(ctx context.Context, cutoff time.Time) (int, error)

	// players, keyed by device_id
	InsertPlayer(ctx context.Context, player *models.Player) error
	GetPlayer(ctx context.Context, deviceID string) (*models.Player, error)
	GetPlayerNames(ctx context.Context, deviceIDs []string) (map[string]string, error)
	UpdatePlayerUsername(ctx context.Context, deviceID, username string) error
	TouchPlayer(ctx context.Context, deviceID string) error
	UsernameTaken(ctx context.Context, username, excludeDeviceID string) (bool, error)
	DeletePlayer(ctx context.Context, deviceID string) error
}
