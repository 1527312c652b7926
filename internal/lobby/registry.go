// internal/lobby/registry.go
package lobby

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/faceoff-gg/faceoff/internal/models"
)

// connBuffer is the outbound channel depth per connection. A receiver that
// falls this far behind is treated as disconnected.
const connBuffer = 16

// Conn is a single device's real-time channel into a lobby. Events are
// pushed non-blockingly onto Out; the websocket write pump drains it.
type Conn struct {
	DeviceID string

	out       chan models.Event
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConn builds a connection handle. cancel, if non-nil, is invoked on
// Close to stop the pumps attached to this channel.
func NewConn(deviceID string, cancel context.CancelFunc) *Conn {
	return &Conn{
		DeviceID: deviceID,
		out:      make(chan models.Event, connBuffer),
		cancel:   cancel,
	}
}

// Events exposes the outbound event stream.
func (c *Conn) Events() <-chan models.Event {
	return c.out
}

// push enqueues an event without blocking. It reports false when the buffer
// is full, which callers treat as an implicit disconnect.
func (c *Conn) push(ev models.Event) bool {
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// Close shuts the outbound channel and cancels the attached pumps. Safe to
// call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.out)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Registry tracks which device holds an open channel to which lobby and
// fans events out to them. It holds no authority over lobby state; it is a
// transport layer driven by the lifecycle service and countdown controller.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]map[string]*Conn // lobby code -> device id -> conn
	byDev  map[string]string           // device id -> lobby code
	log    *logrus.Logger

	// OnEmpty is called (outside the registry lock) after the last channel
	// for a code is removed. Wired to the countdown controller so a lobby
	// with no listeners never keeps ticking.
	OnEmpty func(code string)
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		conns: make(map[string]map[string]*Conn),
		byDev: make(map[string]string),
		log:   log,
	}
}

// Connect registers conn as the device's channel for the lobby code. Any
// previous channel for the device (in this or another lobby) is closed and
// replaced; a device has at most one open channel at a time.
func (r *Registry) Connect(code, deviceID string, conn *Conn) {
	var replaced *Conn

	r.mu.Lock()
	if prevCode, ok := r.byDev[deviceID]; ok {
		if prev, ok := r.conns[prevCode][deviceID]; ok {
			replaced = prev
			delete(r.conns[prevCode], deviceID)
			if len(r.conns[prevCode]) == 0 {
				delete(r.conns, prevCode)
			}
		}
	}
	if r.conns[code] == nil {
		r.conns[code] = make(map[string]*Conn)
	}
	r.conns[code][deviceID] = conn
	r.byDev[deviceID] = code
	total := len(r.conns[code])
	r.mu.Unlock()

	if replaced != nil {
		replaced.Close()
	}
	r.log.WithFields(logrus.Fields{
		"lobby_code":  code,
		"device_id":   deviceID,
		"connections": total,
	}).Info("websocket registered")
}

// Disconnect removes the device's channel for code. When conn is non-nil the
// removal only happens if that exact handle is still registered, so a stale
// handler cleaning up after a reconnect cannot evict its replacement. It
// reports whether a removal occurred.
func (r *Registry) Disconnect(code, deviceID string, conn *Conn) bool {
	var removed *Conn
	emptied := false

	r.mu.Lock()
	if current, ok := r.conns[code][deviceID]; ok && (conn == nil || current == conn) {
		removed = current
		delete(r.conns[code], deviceID)
		if r.byDev[deviceID] == code {
			delete(r.byDev, deviceID)
		}
		if len(r.conns[code]) == 0 {
			delete(r.conns, code)
			emptied = true
		}
	}
	onEmpty := r.OnEmpty
	r.mu.Unlock()

	if removed == nil {
		return false
	}
	removed.Close()
	if emptied && onEmpty != nil {
		onEmpty(code)
	}
	return true
}

// Send delivers an event to one device, best effort. A failed send is
// treated as an implicit disconnect of that channel.
func (r *Registry) Send(code, deviceID string, ev models.Event) bool {
	r.mu.Lock()
	conn, ok := r.conns[code][deviceID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	if !conn.push(ev) {
		r.log.Warnf("registry: send to %s in lobby %s failed, dropping connection", deviceID, code)
		r.Disconnect(code, deviceID, conn)
		return false
	}
	return true
}

// Broadcast delivers an event to every channel registered for code except
// excludeDevice. It iterates a snapshot of the channel set, so connects and
// disconnects during delivery do not affect this broadcast. Per-recipient
// failures degrade to disconnects without aborting the rest.
func (r *Registry) Broadcast(code string, ev models.Event, excludeDevice string) {
	r.mu.Lock()
	targets := make(map[string]*Conn, len(r.conns[code]))
	for deviceID, conn := range r.conns[code] {
		targets[deviceID] = conn
	}
	r.mu.Unlock()

	for deviceID, conn := range targets {
		if excludeDevice != "" && deviceID == excludeDevice {
			continue
		}
		if !conn.push(ev) {
			r.log.Warnf("registry: broadcast to %s in lobby %s failed, dropping connection", deviceID, code)
			r.Disconnect(code, deviceID, conn)
		}
	}
}

// CloseLobby force-closes every channel for code and forgets the code. Used
// by post-game teardown; OnEmpty is not invoked.
func (r *Registry) CloseLobby(code string) {
	r.mu.Lock()
	conns := r.conns[code]
	delete(r.conns, code)
	for deviceID := range conns {
		if r.byDev[deviceID] == code {
			delete(r.byDev, deviceID)
		}
	}
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Count returns the number of open channels for code.
func (r *Registry) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[code])
}

// LobbyFor returns the code the device currently has a channel into.
func (r *Registry) LobbyFor(deviceID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.byDev[deviceID]
	return code, ok
}
