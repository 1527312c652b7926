// internal/matchmaking/service.go

// Package matchmaking implements the strict FIFO queue that pairs waiting
// players into lobbies, plus the periodic sweep that expires stale entries.
package matchmaking

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/lobby"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

const (
	// DefaultQueueTTL is how long a queue entry may sit unmatched before the
	// sweep removes it.
	DefaultQueueTTL = time.Hour

	defaultSweepInterval = 5 * time.Minute
)

// Result is the outcome of a queue operation. Exactly one of Matched or
// InQueue describes the caller's position after the call; both false means
// the caller is not queued at all.
type Result struct {
	Matched       bool
	InQueue       bool
	QueuePosition int
	EstimatedWait int
	Lobby         *models.LobbyInfo
}

// Service owns the matchmaking queue. Pairing relies on the store's atomic
// pop of the oldest entry, so two concurrent FindMatch calls can never claim
// the same opponent.
type Service struct {
	store   store.Store
	lobbies *lobby.Service
	events  *events.Publisher
	log     *logrus.Logger

	// QueueTTL and SweepInterval control entry expiry; tests shorten them.
	QueueTTL      time.Duration
	SweepInterval time.Duration
}

// NewService builds the matchmaking service. QUEUE_TTL_SEC overrides the
// default one-hour entry lifetime.
func NewService(st store.Store, lobbies *lobby.Service, pub *events.Publisher, log *logrus.Logger) *Service {
	ttl := DefaultQueueTTL
	if raw := os.Getenv("QUEUE_TTL_SEC"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	return &Service{
		store:         st,
		lobbies:       lobbies,
		events:        pub,
		log:           log,
		QueueTTL:      ttl,
		SweepInterval: defaultSweepInterval,
	}
}

// EstimateWait returns the display-only wait estimate in seconds for a
// 1-based queue position. Position 1 (or better) always estimates zero.
func EstimateWait(position int) int {
	if position <= 1 {
		return 0
	}
	peopleAhead := position - 1
	matchesAhead := (peopleAhead + 1) / 2
	estimate := matchesAhead*20 + rand.IntN(21) - 10
	if estimate < 5 {
		estimate = 5
	}
	return estimate
}

// FindMatch pairs the caller with the oldest waiting player, or enqueues the
// caller when nobody is waiting. A device already queued gets its current
// status back instead of a second entry.
func (s *Service) FindMatch(ctx context.Context, deviceID string) (*Result, error) {
	if deviceID == "" {
		return nil, &lobby.Failure{Reason: models.ReasonInvalidDeviceID, Message: "device_id must be a non-empty string"}
	}

	if _, err := s.store.GetMemberByDevice(ctx, deviceID); err == nil {
		return nil, &lobby.Failure{Reason: models.ReasonInAnotherLobby, Message: "leave your current lobby first"}
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	if _, err := s.store.GetQueueEntry(ctx, deviceID); err == nil {
		return s.queueStatus(ctx, deviceID)
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("failed to check queue: %w", err)
	}

	opponent, err := s.store.PopOldestQueueEntry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pop queue: %w", err)
	}
	if opponent != nil && opponent.DeviceID == deviceID {
		// The caller's own entry raced in between the queue check and the
		// pop. Put it back untouched and report the queued status.
		if rerr := s.store.InsertQueueEntry(ctx, opponent); rerr != nil {
			return nil, fmt.Errorf("failed to restore queue entry: %w", rerr)
		}
		return s.queueStatus(ctx, deviceID)
	}

	if opponent != nil {
		info, err := s.lobbies.CreateMatched(ctx, deviceID, opponent.DeviceID)
		if err != nil {
			// The opponent must not be lost when lobby creation fails;
			// re-enqueue with the original queue_time so FIFO order holds.
			if rerr := s.store.InsertQueueEntry(ctx, opponent); rerr != nil {
				s.log.Errorf("matchmaking: failed to restore opponent %s after match failure: %v", opponent.DeviceID, rerr)
			}
			return nil, err
		}
		s.events.Publish(ctx, "match_found", deviceID, map[string]any{
			"lobby_code": info.Code,
			"opponent":   opponent.DeviceID,
		})
		return &Result{Matched: true, Lobby: info}, nil
	}

	entry := &models.QueueEntry{DeviceID: deviceID, QueueTime: time.Now().UTC()}
	if err := s.store.InsertQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to join queue: %w", err)
	}
	s.events.Publish(ctx, "queue_joined", deviceID, nil)
	return s.queueStatus(ctx, deviceID)
}

// LeaveQueue removes the caller's entry if present. Idempotent; reports
// whether a removal occurred.
func (s *Service) LeaveQueue(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, &lobby.Failure{Reason: models.ReasonInvalidDeviceID, Message: "device_id must be a non-empty string"}
	}
	removed, err := s.store.DeleteQueueEntry(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("failed to leave queue: %w", err)
	}
	if removed {
		s.events.Publish(ctx, "queue_left", deviceID, nil)
	}
	return removed, nil
}

// QueueStatus reports the caller's queue position and wait estimate, or a
// not-queued result.
func (s *Service) QueueStatus(ctx context.Context, deviceID string) (*Result, error) {
	if deviceID == "" {
		return nil, &lobby.Failure{Reason: models.ReasonInvalidDeviceID, Message: "device_id must be a non-empty string"}
	}
	return s.queueStatus(ctx, deviceID)
}

func (s *Service) queueStatus(ctx context.Context, deviceID string) (*Result, error) {
	queue, err := s.store.ListQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	for i, entry := range queue {
		if entry.DeviceID == deviceID {
			position := i + 1
			return &Result{
				InQueue:       true,
				QueuePosition: position,
				EstimatedWait: EstimateWait(position),
			}, nil
		}
	}
	return &Result{}, nil
}

// StartSweeper launches the periodic expiry sweep. It stops when ctx is
// cancelled.
func (s *Service) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-s.QueueTTL)
				removed, err := s.store.DeleteQueueEntriesBefore(ctx, cutoff)
				if err != nil {
					s.log.Warnf("matchmaking: queue sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					s.log.Infof("matchmaking: expired %d stale queue entries", removed)
				}
			}
		}
	}()
}
