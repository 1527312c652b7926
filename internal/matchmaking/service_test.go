// internal/matchmaking/service_test.go
package matchmaking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/lobby"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemory()
	pub := events.NewPublisher(logger, nil)
	keys := lobby.NewKeyMutex()
	registry := lobby.NewRegistry(logger)
	countdown := lobby.NewCountdown(st, registry, keys, pub, logger)
	lobbies := lobby.NewService(st, registry, countdown, keys, pub, logger)
	return NewService(st, lobbies, pub, logger), st
}

func TestSoloEnqueue(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	res, err := svc.FindMatch(ctx, "dev-a")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.True(t, res.InQueue)
	assert.Equal(t, 1, res.QueuePosition)
	assert.Equal(t, 0, res.EstimatedWait)

	entries, err := st.ListQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFindMatchIsIdempotentWhileQueued(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.FindMatch(ctx, "dev-a")
	require.NoError(t, err)

	res, err := svc.FindMatch(ctx, "dev-a")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.True(t, res.InQueue)
	assert.Equal(t, 1, res.QueuePosition)

	entries, err := st.ListQueue(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSecondCallerMatches(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	_, err := svc.FindMatch(ctx, "dev-a")
	require.NoError(t, err)

	res, err := svc.FindMatch(ctx, "dev-b")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	require.NotNil(t, res.Lobby)
	assert.Equal(t, 2, res.Lobby.CurrentPlayers)
	assert.Equal(t, models.StatusWaiting, res.Lobby.Status)

	devices := []string{res.Lobby.Players[0].DeviceID, res.Lobby.Players[1].DeviceID}
	assert.ElementsMatch(t, []string{"dev-a", "dev-b"}, devices)

	// No queue entry survives a match.
	entries, err := st.ListQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMatchmakingIsFIFO(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, dev := range []string{"dev-a", "dev-b", "dev-c"} {
		require.NoError(t, svc.store.InsertQueueEntry(ctx, &models.QueueEntry{
			DeviceID:  dev,
			QueueTime: base.Add(time.Duration(i) * time.Second),
		}))
	}

	res, err := svc.FindMatch(ctx, "dev-d")
	require.NoError(t, err)
	require.True(t, res.Matched)
	devices := []string{res.Lobby.Players[0].DeviceID, res.Lobby.Players[1].DeviceID}
	assert.ElementsMatch(t, []string{"dev-a", "dev-d"}, devices)

	// With the head removed the next match pairs with dev-b.
	res, err = svc.FindMatch(ctx, "dev-e")
	require.NoError(t, err)
	require.True(t, res.Matched)
	devices = []string{res.Lobby.Players[0].DeviceID, res.Lobby.Players[1].DeviceID}
	assert.ElementsMatch(t, []string{"dev-b", "dev-e"}, devices)
}

func TestExplicitLeaveSkipsToNext(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, dev := range []string{"dev-a", "dev-b"} {
		require.NoError(t, svc.store.InsertQueueEntry(ctx, &models.QueueEntry{
			DeviceID:  dev,
			QueueTime: base.Add(time.Duration(i) * time.Second),
		}))
	}

	removed, err := svc.LeaveQueue(ctx, "dev-a")
	require.NoError(t, err)
	assert.True(t, removed)

	res, err := svc.FindMatch(ctx, "dev-c")
	require.NoError(t, err)
	require.True(t, res.Matched)
	devices := []string{res.Lobby.Players[0].DeviceID, res.Lobby.Players[1].DeviceID}
	assert.ElementsMatch(t, []string{"dev-b", "dev-c"}, devices)
}

func TestLeaveQueueIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	removed, err := svc.LeaveQueue(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLobbyMemberCannotQueue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.lobbies.Create(ctx, "dev-a")
	require.NoError(t, err)

	_, err = svc.FindMatch(ctx, "dev-a")
	f, ok := lobby.AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonInAnotherLobby, f.Reason)
}

func TestQueueStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.QueueStatus(ctx, "dev-a")
	require.NoError(t, err)
	assert.False(t, res.InQueue)

	_, err = svc.FindMatch(ctx, "dev-a")
	require.NoError(t, err)

	res, err = svc.QueueStatus(ctx, "dev-a")
	require.NoError(t, err)
	assert.True(t, res.InQueue)
	assert.Equal(t, 1, res.QueuePosition)
	assert.Equal(t, 0, res.EstimatedWait)
}

func TestEstimateWaitBounds(t *testing.T) {
	assert.Equal(t, 0, EstimateWait(0))
	assert.Equal(t, 0, EstimateWait(1))

	// Position 3 implies one match ahead: 20s plus jitter, floored at 5.
	for i := 0; i < 100; i++ {
		est := EstimateWait(3)
		assert.GreaterOrEqual(t, est, 5)
		assert.LessOrEqual(t, est, 60)
	}
	for i := 0; i < 100; i++ {
		est := EstimateWait(2)
		assert.GreaterOrEqual(t, est, 5)
	}
}

func TestQueueSweep(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	require.NoError(t, st.InsertQueueEntry(ctx, &models.QueueEntry{
		DeviceID:  "stale",
		QueueTime: time.Now().UTC().Add(-2 * time.Hour),
	}))
	require.NoError(t, st.InsertQueueEntry(ctx, &models.QueueEntry{
		DeviceID:  "fresh",
		QueueTime: time.Now().UTC(),
	}))

	removed, err := st.DeleteQueueEntriesBefore(ctx, time.Now().UTC().Add(-svc.QueueTTL))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := st.ListQueue(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fresh", entries[0].DeviceID)
}
