// internal/lobby/service.go

// Package lobby implements the lobby lifecycle engine: the create/join/
// leave/ready state machine, the per-code mutual exclusion it requires, the
// real-time connection registry, and the countdown controller that moves a
// fully-ready lobby into a started game.
package lobby

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

// MaxPlayers is the fixed lobby capacity. The engine only pairs two players.
const MaxPlayers = 2

// Service owns every mutation of lobby state. All read-modify-write
// sequences against one lobby code are serialized through a keyed mutex;
// distinct codes proceed independently.
type Service struct {
	store     store.Store
	registry  *Registry
	countdown *Countdown
	keys      *KeyMutex
	events    *events.Publisher
	log       *logrus.Logger
}

// NewService wires the lifecycle engine together. The registry, countdown
// controller, and keyed mutex must be the same instances the websocket layer
// uses.
func NewService(st store.Store, reg *Registry, cd *Countdown, keys *KeyMutex, pub *events.Publisher, log *logrus.Logger) *Service {
	return &Service{
		store:     st,
		registry:  reg,
		countdown: cd,
		keys:      keys,
		events:    pub,
		log:       log,
	}
}

// Registry exposes the connection registry for the websocket layer.
func (s *Service) Registry() *Registry { return s.registry }

// Countdown exposes the countdown controller for the websocket layer.
func (s *Service) Countdown() *Countdown { return s.countdown }

// loadSnapshot assembles the client-facing lobby view, resolving display
// names from the player directory. A missing player record yields a null
// name, never an error.
func loadSnapshot(ctx context.Context, st store.Store, lby *models.Lobby) (*models.LobbyInfo, error) {
	members, err := st.ListMembers(ctx, lby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby members: %w", err)
	}
	deviceIDs := make([]string, 0, len(members))
	for _, m := range members {
		deviceIDs = append(deviceIDs, m.DeviceID)
	}
	names, err := st.GetPlayerNames(ctx, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve player names: %w", err)
	}
	return models.Snapshot(lby, members, names), nil
}

func validateDeviceID(deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return failf(models.ReasonInvalidDeviceID, "device_id must be a non-empty string")
	}
	return nil
}

// NormalizeCode upper-cases and trims a client-supplied lobby code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create allocates a new lobby with the caller as its sole, unready member.
// Any queue entry the device holds is removed first; a device never sits in
// a lobby and the matchmaking queue at once.
func (s *Service) Create(ctx context.Context, deviceID string) (*models.LobbyInfo, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}

	if _, err := s.store.GetMemberByDevice(ctx, deviceID); err == nil {
		return nil, failf(models.ReasonInAnotherLobby, "leave your current lobby first")
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if _, err := s.store.DeleteQueueEntry(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("failed to clear queue entry: %w", err)
	}

	code, err := allocateCode(ctx, s.store)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lby := &models.Lobby{
		ID:             uuid.New(),
		Code:           code,
		Status:         models.StatusWaiting,
		MaxPlayers:     MaxPlayers,
		CurrentPlayers: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertLobby(ctx, lby); err != nil {
		return nil, fmt.Errorf("failed to create lobby: %w", err)
	}
	member := &models.LobbyMember{
		LobbyID:  lby.ID,
		DeviceID: deviceID,
		IsReady:  false,
		JoinedAt: now,
	}
	if err := s.store.InsertMember(ctx, member); err != nil {
		// No orphan lobby may survive a failed member insert.
		if derr := s.store.DeleteLobby(ctx, lby.ID); derr != nil {
			s.log.Errorf("lobby: failed to roll back lobby %s after member insert failure: %v", code, derr)
		}
		return nil, fmt.Errorf("failed to add creator to lobby: %w", err)
	}

	s.events.Publish(ctx, "lobby_created", deviceID, map[string]any{"lobby_code": code})
	return loadSnapshot(ctx, s.store, lby)
}

// Join adds the caller to the lobby identified by code. The code is
// case-normalized before validation; format errors are reported distinctly
// from a missing lobby.
func (s *Service) Join(ctx context.Context, deviceID, code string) (*models.LobbyInfo, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}
	code = NormalizeCode(code)
	if !IsValidCode(code) {
		return nil, failf(models.ReasonInvalidCode, "lobby code must be exactly 4 alphanumeric characters")
	}

	s.keys.Lock(code)
	defer s.keys.Unlock(code)

	lby, err := s.store.GetLobbyByCode(ctx, code)
	if err == store.ErrNotFound {
		return nil, failf(models.ReasonLobbyNotFound, "no lobby with that code")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load lobby: %w", err)
	}

	if member, err := s.store.GetMemberByDevice(ctx, deviceID); err == nil {
		if member.LobbyID == lby.ID {
			return nil, failf(models.ReasonAlreadyInLobby, "already in this lobby")
		}
		return nil, failf(models.ReasonInAnotherLobby, "leave your current lobby first")
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	if lby.CurrentPlayers >= lby.MaxPlayers {
		return nil, failf(models.ReasonLobbyFull, "lobby is full")
	}
	if !lby.Status.Joinable() {
		return nil, failf(models.ReasonLobbyNotJoinable, "lobby is not accepting players")
	}

	if _, err := s.store.DeleteQueueEntry(ctx, deviceID); err != nil {
		return nil, fmt.Errorf("failed to clear queue entry: %w", err)
	}

	now := time.Now().UTC()
	member := &models.LobbyMember{
		LobbyID:  lby.ID,
		DeviceID: deviceID,
		IsReady:  false,
		JoinedAt: now,
	}
	if err := s.store.InsertMember(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to join lobby: %w", err)
	}
	lby.CurrentPlayers++
	lby.UpdatedAt = now
	if err := s.store.UpdateLobby(ctx, lby); err != nil {
		if derr := s.store.DeleteMember(ctx, lby.ID, deviceID); derr != nil {
			s.log.Errorf("lobby: failed to roll back member %s after count update failure: %v", deviceID, derr)
		}
		return nil, fmt.Errorf("failed to update lobby: %w", err)
	}

	info, err := loadSnapshot(ctx, s.store, lby)
	if err != nil {
		return nil, err
	}

	ev := models.NewEvent(models.EventPlayerJoined)
	ev.DeviceID = deviceID
	ev.Lobby = info
	s.registry.Broadcast(code, ev, deviceID)
	s.events.Publish(ctx, string(models.EventPlayerJoined), deviceID, map[string]any{"lobby_code": code})
	return info, nil
}

// Leave removes the caller from their lobby. The last member leaving deletes
// the lobby; otherwise remaining members are reset to unready and any
// readiness progress or running countdown is cancelled.
func (s *Service) Leave(ctx context.Context, deviceID string) error {
	if err := validateDeviceID(deviceID); err != nil {
		return err
	}

	member, err := s.store.GetMemberByDevice(ctx, deviceID)
	if err == store.ErrNotFound {
		return failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	lby, err := s.store.GetLobbyByID(ctx, member.LobbyID)
	if err == store.ErrNotFound {
		// Dangling membership; clean it up and treat the leave as done.
		if derr := s.store.DeleteMember(ctx, member.LobbyID, deviceID); derr != nil && derr != store.ErrNotFound {
			return fmt.Errorf("failed to remove dangling membership: %w", derr)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load lobby: %w", err)
	}
	code := lby.Code

	s.keys.Lock(code)
	defer s.keys.Unlock(code)

	// Re-read under the lock; the lobby may have been torn down meanwhile.
	lby, err = s.store.GetLobbyByCode(ctx, code)
	if err == store.ErrNotFound {
		return failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return fmt.Errorf("failed to load lobby: %w", err)
	}
	if err := s.store.DeleteMember(ctx, lby.ID, deviceID); err == store.ErrNotFound {
		return failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return fmt.Errorf("failed to leave lobby: %w", err)
	}

	remaining, err := s.store.ListMembers(ctx, lby.ID)
	if err != nil {
		return fmt.Errorf("failed to list remaining members: %w", err)
	}

	if len(remaining) == 0 {
		if err := s.store.DeleteLobby(ctx, lby.ID); err != nil && err != store.ErrNotFound {
			return fmt.Errorf("failed to delete empty lobby: %w", err)
		}
		s.countdown.Stop(code)
		deleted := models.NewEvent(models.EventLobbyDeleted)
		deleted.Message = "last player left"
		s.registry.Broadcast(code, deleted, deviceID)
		s.registry.CloseLobby(code)
		s.events.Publish(ctx, string(models.EventLobbyDeleted), deviceID, map[string]any{"lobby_code": code})
		return nil
	}

	wasCountdown := lby.Status == models.StatusCountdown
	if lby.Status == models.StatusReadyCheck || lby.Status == models.StatusCountdown {
		if err := s.store.ResetMembersReady(ctx, lby.ID); err != nil {
			return fmt.Errorf("failed to reset ready flags: %w", err)
		}
		lby.Status = models.StatusWaiting
		lby.CountdownStartTime = nil
		s.countdown.Stop(code)
		remaining, err = s.store.ListMembers(ctx, lby.ID)
		if err != nil {
			return fmt.Errorf("failed to list remaining members: %w", err)
		}
	}
	lby.CurrentPlayers = len(remaining)
	lby.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateLobby(ctx, lby); err != nil {
		return fmt.Errorf("failed to update lobby: %w", err)
	}

	names, err := s.store.GetPlayerNames(ctx, memberDeviceIDs(remaining))
	if err != nil {
		return fmt.Errorf("failed to resolve player names: %w", err)
	}
	info := models.Snapshot(lby, remaining, names)

	ev := models.NewEvent(models.EventPlayerLeft)
	ev.DeviceID = deviceID
	ev.Lobby = info
	s.registry.Broadcast(code, ev, deviceID)
	if wasCountdown {
		aborted := models.NewEvent(models.EventCountdownAborted)
		aborted.Reason = "player_left"
		aborted.Lobby = info
		s.registry.Broadcast(code, aborted, deviceID)
	}
	s.events.Publish(ctx, string(models.EventPlayerLeft), deviceID, map[string]any{"lobby_code": code})
	return nil
}

// ToggleReady flips the caller's ready flag and derives the lobby's next
// status from the post-update membership set. The transition rules are
// evaluated in a fixed precedence order:
//
//  1. everyone ready, lobby full, and this toggle set ready: countdown
//     starts.
//  2. not everyone ready while a countdown was running: back to ready_check.
//  3. everyone ready and full (without rule 1): ready_check. Unreachable
//     through this surface since the just-toggled flag would have to be
//     false, but kept so externally forced ready flags cannot skip a state.
//  4. otherwise: waiting.
func (s *Service) ToggleReady(ctx context.Context, deviceID string, isReady bool) (*models.LobbyInfo, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}

	member, err := s.store.GetMemberByDevice(ctx, deviceID)
	if err == store.ErrNotFound {
		return nil, failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	lby, err := s.store.GetLobbyByID(ctx, member.LobbyID)
	if err == store.ErrNotFound {
		return nil, failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load lobby: %w", err)
	}
	code := lby.Code

	s.keys.Lock(code)
	defer s.keys.Unlock(code)

	lby, err = s.store.GetLobbyByCode(ctx, code)
	if err == store.ErrNotFound {
		return nil, failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return nil, fmt.Errorf("failed to load lobby: %w", err)
	}
	if err := s.store.UpdateMemberReady(ctx, lby.ID, deviceID, isReady); err == store.ErrNotFound {
		return nil, failf(models.ReasonNotInLobby, "not in a lobby")
	} else if err != nil {
		return nil, fmt.Errorf("failed to update ready status: %w", err)
	}

	members, err := s.store.ListMembers(ctx, lby.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby members: %w", err)
	}
	allReady := len(members) > 0
	for _, m := range members {
		if !m.IsReady {
			allReady = false
			break
		}
	}
	isFull := lby.CurrentPlayers == lby.MaxPlayers
	prev := lby.Status

	switch {
	case allReady && isFull && isReady:
		now := time.Now().UTC()
		lby.Status = models.StatusCountdown
		lby.CountdownStartTime = &now
	case !allReady && prev == models.StatusCountdown:
		lby.Status = models.StatusReadyCheck
		lby.CountdownStartTime = nil
	case allReady && isFull:
		lby.Status = models.StatusReadyCheck
		lby.CountdownStartTime = nil
	default:
		lby.Status = models.StatusWaiting
		lby.CountdownStartTime = nil
	}
	lby.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateLobby(ctx, lby); err != nil {
		return nil, fmt.Errorf("failed to update lobby: %w", err)
	}

	names, err := s.store.GetPlayerNames(ctx, memberDeviceIDs(members))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve player names: %w", err)
	}
	info := models.Snapshot(lby, members, names)

	ev := models.NewEvent(models.EventReadyStatusChanged)
	ev.DeviceID = deviceID
	ev.IsReady = &isReady
	ev.Lobby = info
	s.registry.Broadcast(code, ev, "")

	if prev != models.StatusCountdown && lby.Status == models.StatusCountdown {
		started := models.NewEvent(models.EventCountdownStarted)
		started.Lobby = info
		s.registry.Broadcast(code, started, "")
		s.events.Publish(ctx, string(models.EventCountdownStarted), deviceID, map[string]any{"lobby_code": code})
		s.countdown.Start(code)
	}
	if prev == models.StatusCountdown && lby.Status != models.StatusCountdown {
		s.countdown.Stop(code)
		aborted := models.NewEvent(models.EventCountdownAborted)
		aborted.Reason = "player_unready"
		aborted.Lobby = info
		s.registry.Broadcast(code, aborted, "")
		s.events.Publish(ctx, string(models.EventCountdownAborted), deviceID, map[string]any{"lobby_code": code})
	}
	return info, nil
}

// Status returns the caller's current lobby snapshot, or (nil, nil) when the
// device is not in any lobby.
func (s *Service) Status(ctx context.Context, deviceID string) (*models.LobbyInfo, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return nil, err
	}
	member, err := s.store.GetMemberByDevice(ctx, deviceID)
	if err == store.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	lby, err := s.store.GetLobbyByID(ctx, member.LobbyID)
	if err == store.ErrNotFound {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load lobby: %w", err)
	}
	return loadSnapshot(ctx, s.store, lby)
}

// Member reports whether the device is a member of the lobby with the given
// code. Used by the websocket layer to authorize connections.
func (s *Service) Member(ctx context.Context, deviceID, code string) (bool, *models.Lobby, error) {
	lby, err := s.store.GetLobbyByCode(ctx, NormalizeCode(code))
	if err == store.ErrNotFound {
		return false, nil, nil
	} else if err != nil {
		return false, nil, fmt.Errorf("failed to load lobby: %w", err)
	}
	member, err := s.store.GetMemberByDevice(ctx, deviceID)
	if err == store.ErrNotFound {
		return false, lby, nil
	} else if err != nil {
		return false, nil, fmt.Errorf("failed to check membership: %w", err)
	}
	return member.LobbyID == lby.ID, lby, nil
}

// CreateMatched builds a two-member lobby pairing the caller with a matched
// opponent. This is the only path a lobby starts at two players; both enter
// unready with status waiting, exactly as if the second had just joined.
func (s *Service) CreateMatched(ctx context.Context, callerID, opponentID string) (*models.LobbyInfo, error) {
	code, err := allocateCode(ctx, s.store)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lby := &models.Lobby{
		ID:             uuid.New(),
		Code:           code,
		Status:         models.StatusWaiting,
		MaxPlayers:     MaxPlayers,
		CurrentPlayers: 2,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertLobby(ctx, lby); err != nil {
		return nil, fmt.Errorf("failed to create matched lobby: %w", err)
	}
	for _, deviceID := range []string{opponentID, callerID} {
		member := &models.LobbyMember{
			LobbyID:  lby.ID,
			DeviceID: deviceID,
			IsReady:  false,
			JoinedAt: now,
		}
		if err := s.store.InsertMember(ctx, member); err != nil {
			if derr := s.store.DeleteLobby(ctx, lby.ID); derr != nil {
				s.log.Errorf("lobby: failed to roll back matched lobby %s: %v", code, derr)
			}
			return nil, fmt.Errorf("failed to add matched player to lobby: %w", err)
		}
	}

	s.events.Publish(ctx, "match_created", callerID, map[string]any{
		"lobby_code": code,
		"opponent":   opponentID,
	})
	return loadSnapshot(ctx, s.store, lby)
}

func memberDeviceIDs(members []models.LobbyMember) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.DeviceID)
	}
	return ids
}
