// internal/lobby/countdown.go
package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/faceoff-gg/faceoff/internal/events"
	"github.com/faceoff-gg/faceoff/internal/models"
	"github.com/faceoff-gg/faceoff/internal/store"
)

const (
	// countdownFrom is the first tick value broadcast after a countdown starts.
	countdownFrom = 3

	defaultTickInterval = time.Second
	defaultGraceDelay   = 2 * time.Second
)

// Countdown runs the per-lobby countdown tasks: tick broadcasts, the
// transition to game_started, and post-game lobby teardown. At most one task
// runs per lobby code; starting a new one cancels its predecessor.
//
// Cancellation is checked before every side-effecting step, so a task
// cancelled mid-flight (player unready, player left, lobby emptied) stops
// without mutating the lobby further.
type Countdown struct {
	store    store.Store
	registry *Registry
	keys     *KeyMutex
	events   *events.Publisher
	log      *logrus.Logger

	// TickInterval and GraceDelay default to 1s and 2s; tests shorten them.
	TickInterval time.Duration
	GraceDelay   time.Duration

	mu    sync.Mutex
	tasks map[string]*countdownTask
}

type countdownTask struct {
	cancel context.CancelFunc
}

// NewCountdown builds a controller with production timings.
func NewCountdown(st store.Store, reg *Registry, keys *KeyMutex, pub *events.Publisher, log *logrus.Logger) *Countdown {
	return &Countdown{
		store:        st,
		registry:     reg,
		keys:         keys,
		events:       pub,
		log:          log,
		TickInterval: defaultTickInterval,
		GraceDelay:   defaultGraceDelay,
		tasks:        make(map[string]*countdownTask),
	}
}

// Start launches the countdown task for code, cancelling any task already
// running for it.
func (c *Countdown) Start(code string) {
	ctx, cancel := context.WithCancel(context.Background())
	task := &countdownTask{cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.tasks[code]; ok {
		prev.cancel()
	}
	c.tasks[code] = task
	c.mu.Unlock()

	go c.run(ctx, code, task)
}

// StartIfAbsent launches a countdown task only when none is running for
// code. It reports whether a task was started. Used when a websocket connects
// to a lobby already in countdown state, so a reconnect resumes delivery
// without restarting the count from the top.
func (c *Countdown) StartIfAbsent(code string) bool {
	ctx, cancel := context.WithCancel(context.Background())
	task := &countdownTask{cancel: cancel}

	c.mu.Lock()
	if _, ok := c.tasks[code]; ok {
		c.mu.Unlock()
		cancel()
		return false
	}
	c.tasks[code] = task
	c.mu.Unlock()

	go c.run(ctx, code, task)
	return true
}

// Stop cancels the countdown task for code, if any, and reports whether one
// was running.
func (c *Countdown) Stop(code string) bool {
	c.mu.Lock()
	task, ok := c.tasks[code]
	if ok {
		delete(c.tasks, code)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	task.cancel()
	return true
}

// Running reports whether a countdown task is active for code.
func (c *Countdown) Running(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[code]
	return ok
}

// remove clears the task entry, but only if it still belongs to this task. A
// task that was replaced by a newer Start must not evict its successor.
func (c *Countdown) remove(code string, task *countdownTask) {
	c.mu.Lock()
	if current, ok := c.tasks[code]; ok && current == task {
		delete(c.tasks, code)
	}
	c.mu.Unlock()
}

func (c *Countdown) run(ctx context.Context, code string, task *countdownTask) {
	defer c.remove(code, task)

	timer := time.NewTimer(c.TickInterval)
	defer timer.Stop()

	for secs := countdownFrom; secs >= 0; secs-- {
		if ctx.Err() != nil {
			return
		}
		remaining := secs
		ev := models.NewEvent(models.EventCountdownTick)
		ev.SecondsRemaining = &remaining
		c.registry.Broadcast(code, ev, "")

		if secs == 0 {
			break
		}
		timer.Reset(c.TickInterval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	c.finish(ctx, code)
}

// finish flips the lobby to game_started, broadcasts the final snapshot,
// waits out the grace period, then deletes the lobby and closes its channels.
func (c *Countdown) finish(ctx context.Context, code string) {
	c.keys.Lock(code)
	if ctx.Err() != nil {
		c.keys.Unlock(code)
		return
	}

	lby, err := c.store.GetLobbyByCode(ctx, code)
	if err != nil {
		c.keys.Unlock(code)
		c.log.Warnf("countdown: lobby %s vanished before game start: %v", code, err)
		return
	}
	if lby.Status != models.StatusCountdown {
		// Someone aborted between our cancellation check and the lock.
		c.keys.Unlock(code)
		return
	}

	lby.Status = models.StatusGameStarted
	lby.CountdownStartTime = nil
	lby.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateLobby(ctx, lby); err != nil {
		c.keys.Unlock(code)
		c.log.Errorf("countdown: failed to mark lobby %s started: %v", code, err)
		return
	}
	info, err := loadSnapshot(ctx, c.store, lby)
	c.keys.Unlock(code)
	if err != nil {
		c.log.Warnf("countdown: failed to snapshot lobby %s: %v", code, err)
	}

	ev := models.NewEvent(models.EventGameStarted)
	ev.Lobby = info
	c.registry.Broadcast(code, ev, "")
	c.events.Publish(ctx, string(models.EventGameStarted), "", map[string]any{"lobby_code": code})

	if ctx.Err() != nil {
		return
	}
	grace := time.NewTimer(c.GraceDelay)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return
	case <-grace.C:
	}

	c.keys.Lock(code)
	if ctx.Err() != nil {
		c.keys.Unlock(code)
		return
	}
	if err := c.store.DeleteLobby(ctx, lby.ID); err != nil && err != store.ErrNotFound {
		c.keys.Unlock(code)
		c.log.Errorf("countdown: failed to delete lobby %s after game start: %v", code, err)
		return
	}
	c.keys.Unlock(code)

	deleted := models.NewEvent(models.EventLobbyDeleted)
	deleted.Message = "game started, lobby closed"
	c.registry.Broadcast(code, deleted, "")
	c.events.Publish(ctx, string(models.EventLobbyDeleted), "", map[string]any{"lobby_code": code})
	c.registry.CloseLobby(code)
}
