// internal/lobby/service_test.go
package lobby

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

// newTestEngine builds a full lifecycle engine on the in-memory store with
// countdown timings short enough for tests.
func newTestEngine(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemory()
	keys := NewKeyMutex()
	registry := NewRegistry(logger)
	countdown := NewCountdown(st, registry, keys, events.NewPublisher(logger, nil), logger)
	countdown.TickInterval = 10 * time.Millisecond
	countdown.GraceDelay = 20 * time.Millisecond
	registry.OnEmpty = func(code string) {
		countdown.Stop(code)
	}
	svc := NewService(st, registry, countdown, keys, events.NewPublisher(logger, nil), logger)
	return svc, st
}

func TestCreateLobby(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	info, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Len(t, info.Code, CodeLength)
	assert.Equal(t, models.StatusWaiting, info.Status)
	assert.Equal(t, 1, info.CurrentPlayers)
	require.Len(t, info.Players, 1)
	assert.Equal(t, "dev-a", info.Players[0].DeviceID)
	assert.False(t, info.Players[0].IsReady)
	assert.Nil(t, info.CountdownStartTime)

	lby, err := st.GetLobbyByCode(ctx, info.Code)
	require.NoError(t, err)
	assert.Equal(t, info.ID, lby.ID)
}

func TestCreateWhileInLobby(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	_, err = svc.Create(ctx, "dev-a")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonInAnotherLobby, f.Reason)
}

func TestCreateClearsQueueEntry(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, st.InsertQueueEntry(ctx, &models.QueueEntry{
		DeviceID:  "dev-a",
		QueueTime: time.Now().UTC(),
	}))

	_, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	_, err = st.GetQueueEntry(ctx, "dev-a")
	assert.Equal(t, store.ErrNotFound, err)
}

func TestJoinLobby(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	info, err := svc.Join(ctx, "dev-b", created.Code)
	require.NoError(t, err)
	assert.Equal(t, 2, info.CurrentPlayers)
	assert.Equal(t, models.StatusWaiting, info.Status)
	require.Len(t, info.Players, 2)

	members, err := st.ListMembers(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.CurrentPlayers, len(members))
}

func TestJoinNormalizesCode(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	padded := "  " + strings.ToLower(created.Code) + " "
	info, err := svc.Join(ctx, "dev-b", padded)
	require.NoError(t, err)
	assert.Equal(t, created.Code, info.Code)
}

func TestJoinFailures(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	// Malformed code is a validation failure, not a lookup miss.
	_, err = svc.Join(ctx, "dev-b", "AB1")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonInvalidCode, f.Reason)

	_, err = svc.Join(ctx, "dev-b", "ZZZZ")
	f, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonLobbyNotFound, f.Reason)

	_, err = svc.Join(ctx, "dev-a", created.Code)
	f, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonAlreadyInLobby, f.Reason)

	_, err = svc.Join(ctx, "dev-b", created.Code)
	require.NoError(t, err)

	_, err = svc.Join(ctx, "dev-c", created.Code)
	f, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonLobbyFull, f.Reason)

	other, err := svc.Create(ctx, "dev-d")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "dev-a", other.Code)
	f, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonInAnotherLobby, f.Reason)
}

func TestToggleReadyStateMachine(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "dev-b", created.Code)
	require.NoError(t, err)

	// First ready alone does not start anything.
	info, err := svc.ToggleReady(ctx, "dev-a", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, info.Status)
	assert.Nil(t, info.CountdownStartTime)
	assert.False(t, svc.Countdown().Running(created.Code))

	// The completing toggle starts the countdown.
	info, err = svc.ToggleReady(ctx, "dev-b", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCountdown, info.Status)
	require.NotNil(t, info.CountdownStartTime)
	assert.True(t, svc.Countdown().Running(created.Code))

	// Un-readying during the countdown aborts it.
	info, err = svc.ToggleReady(ctx, "dev-a", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReadyCheck, info.Status)
	assert.Nil(t, info.CountdownStartTime)
	assert.False(t, svc.Countdown().Running(created.Code))
}

func TestToggleReadyAlone(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	// Ready in a half-full lobby never starts a countdown.
	info, err := svc.ToggleReady(ctx, "dev-a", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, info.Status)
	assert.False(t, svc.Countdown().Running(created.Code))
}

func TestToggleReadyNotInLobby(t *testing.T) {
	svc, _ := newTestEngine(t)

	_, err := svc.ToggleReady(context.Background(), "ghost", true)
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonNotInLobby, f.Reason)
}

func TestLeaveResetsRemaining(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)
	_, err = svc.Join(ctx, "dev-b", created.Code)
	require.NoError(t, err)
	_, err = svc.ToggleReady(ctx, "dev-a", true)
	require.NoError(t, err)
	_, err = svc.ToggleReady(ctx, "dev-b", true)
	require.NoError(t, err)
	require.True(t, svc.Countdown().Running(created.Code))

	require.NoError(t, svc.Leave(ctx, "dev-b"))

	lby, err := st.GetLobbyByCode(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, lby.Status)
	assert.Equal(t, 1, lby.CurrentPlayers)
	assert.Nil(t, lby.CountdownStartTime)
	assert.False(t, svc.Countdown().Running(created.Code))

	members, err := st.ListMembers(ctx, lby.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.False(t, members[0].IsReady)
}

func TestLeaveLastDeletesLobby(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	require.NoError(t, svc.Leave(ctx, "dev-a"))

	_, err = st.GetLobbyByCode(ctx, created.Code)
	assert.Equal(t, store.ErrNotFound, err)
	_, err = st.GetMemberByDevice(ctx, "dev-a")
	assert.Equal(t, store.ErrNotFound, err)
}

func TestLeaveNotInLobby(t *testing.T) {
	svc, _ := newTestEngine(t)

	err := svc.Leave(context.Background(), "ghost")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonNotInLobby, f.Reason)
}

func TestStatus(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	info, err := svc.Status(ctx, "dev-a")
	require.NoError(t, err)
	assert.Nil(t, info)

	created, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)

	info, err = svc.Status(ctx, "dev-a")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, created.Code, info.Code)
}

func TestDistinctLobbiesAreIndependent(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "dev-a")
	require.NoError(t, err)
	second, err := svc.Create(ctx, "dev-b")
	require.NoError(t, err)

	_, err = svc.ToggleReady(ctx, "dev-a", true)
	require.NoError(t, err)

	lby, err := st.GetLobbyByCode(ctx, second.Code)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, lby.Status)
	assert.NotEqual(t, first.Code, second.Code)
}

func TestEmptyDeviceIDRejected(t *testing.T) {
	svc, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "  ")
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonInvalidDeviceID, f.Reason)

	_, err = svc.Join(ctx, "", "ABCD")
	f, ok = AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, models.ReasonInvalidDeviceID, f.Reason)
}

func TestCreateMatched(t *testing.T) {
	svc, st := newTestEngine(t)
	ctx := context.Background()

	info, err := svc.CreateMatched(ctx, "dev-a", "dev-b")
	require.NoError(t, err)
	assert.Equal(t, 2, info.CurrentPlayers)
	assert.Equal(t, models.StatusWaiting, info.Status)
	require.Len(t, info.Players, 2)
	for _, p := range info.Players {
		assert.False(t, p.IsReady)
	}

	members, err := st.ListMembers(ctx, info.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}
