// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and local
// development runs without a database.
type Memory struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]models.Lobby
	codes   map[string]uuid.UUID
	members map[uuid.UUID]map[string]models.LobbyMember
	byDev   map[string]uuid.UUID
	queue   map[string]models.QueueEntry
	players map[string]models.Player
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		lobbies: make(map[uuid.UUID]models.Lobby),
		codes:   make(map[string]uuid.UUID),
		members: make(map[uuid.UUID]map[string]models.LobbyMember),
		byDev:   make(map[string]uuid.UUID),
		queue:   make(map[string]models.QueueEntry),
		players: make(map[string]models.Player),
	}
}

func (m *Memory) InsertLobby(_ context.Context, lobby *models.Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobbies[lobby.ID] = *lobby
	m.codes[lobby.Code] = lobby.ID
	return nil
}

func (m *Memory) GetLobbyByID(_ context.Context, id uuid.UUID) (*models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (m *Memory) GetLobbyByCode(_ context.Context, code string) (*models.Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	l := m.lobbies[id]
	return &l, nil
}

func (m *Memory) CodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.codes[code]
	return ok, nil
}

func (m *Memory) UpdateLobby(_ context.Context, lobby *models.Lobby) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lobbies[lobby.ID]; !ok {
		return ErrNotFound
	}
	updated := *lobby
	updated.UpdatedAt = time.Now().UTC()
	m.lobbies[lobby.ID] = updated
	return nil
}

func (m *Memory) DeleteLobby(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return nil
	}
	for deviceID := range m.members[id] {
		delete(m.byDev, deviceID)
	}
	delete(m.members, id)
	delete(m.codes, l.Code)
	delete(m.lobbies, id)
	return nil
}

func (m *Memory) InsertMember(_ context.Context, member *models.LobbyMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[member.LobbyID] == nil {
		m.members[member.LobbyID] = make(map[string]models.LobbyMember)
	}
	m.members[member.LobbyID][member.DeviceID] = *member
	m.byDev[member.DeviceID] = member.LobbyID
	return nil
}

func (m *Memory) GetMemberByDevice(_ context.Context, deviceID string) (*models.LobbyMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lobbyID, ok := m.byDev[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	member := m.members[lobbyID][deviceID]
	return &member, nil
}

func (m *Memory) ListMembers(_ context.Context, lobbyID uuid.UUID) ([]models.LobbyMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var members []models.LobbyMember
	for _, member := range m.members[lobbyID] {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (m *Memory) UpdateMemberReady(_ context.Context, lobbyID uuid.UUID, deviceID string, isReady bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[lobbyID][deviceID]
	if !ok {
		return ErrNotFound
	}
	member.IsReady = isReady
	m.members[lobbyID][deviceID] = member
	return nil
}

func (m *Memory) ResetMembersReady(_ context.Context, lobbyID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for deviceID, member := range m.members[lobbyID] {
		member.IsReady = false
		m.members[lobbyID][deviceID] = member
	}
	return nil
}

func (m *Memory) DeleteMember(_ context.Context, lobbyID uuid.UUID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[lobbyID][deviceID]; !ok {
		return ErrNotFound
	}
	delete(m.members[lobbyID], deviceID)
	delete(m.byDev, deviceID)
	return nil
}

func (m *Memory) InsertQueueEntry(_ context.Context, entry *models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[entry.DeviceID] = *entry
	return nil
}

func (m *Memory) GetQueueEntry(_ context.Context, deviceID string) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.queue[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *Memory) ListQueue(_ context.Context) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedQueueLocked(), nil
}

func (m *Memory) sortedQueueLocked() []models.QueueEntry {
	entries := make([]models.QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].QueueTime.Equal(entries[j].QueueTime) {
			return entries[i].DeviceID < entries[j].DeviceID
		}
		return entries[i].QueueTime.Before(entries[j].QueueTime)
	})
	return entries
}

func (m *Memory) DeleteQueueEntry(_ context.Context, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[deviceID]; !ok {
		return false, nil
	}
	delete(m.queue, deviceID)
	return true, nil
}

func (m *Memory) PopOldestQueueEntry(_ context.Context) (*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.sortedQueueLocked()
	if len(entries) == 0 {
		return nil, nil
	}
	oldest := entries[0]
	delete(m.queue, oldest.DeviceID)
	return &oldest, nil
}

func (m *Memory) DeleteQueueEntriesBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for deviceID, e := range m.queue {
		if e.QueueTime.Before(cutoff) {
			delete(m.queue, deviceID)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) InsertPlayer(_ context.Context, player *models.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[player.DeviceID] = *player
	return nil
}

func (m *Memory) GetPlayer(_ context.Context, deviceID string) (*models.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) GetPlayerNames(_ context.Context, deviceIDs []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make(map[string]string, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		if p, ok := m.players[deviceID]; ok && p.UserName != nil {
			names[deviceID] = *p.UserName
		}
	}
	return names, nil
}

func (m *Memory) UpdatePlayerUsername(_ context.Context, deviceID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[deviceID]
	if !ok {
		return ErrNotFound
	}
	p.UserName = &username
	p.UpdatedAt = time.Now().UTC()
	m.players[deviceID] = p
	return nil
}

func (m *Memory) TouchPlayer(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[deviceID]
	if !ok {
		return nil
	}
	p.LastOnline = time.Now().UTC()
	m.players[deviceID] = p
	return nil
}

func (m *Memory) UsernameTaken(_ context.Context, username, excludeDeviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for deviceID, p := range m.players {
		if deviceID == excludeDeviceID {
			continue
		}
		if p.UserName != nil && *p.UserName == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) DeletePlayer(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[deviceID]; !ok {
		return ErrNotFound
	}
	delete(m.players, deviceID)
	return nil
}
