package bridge

import (
	"sync"
	"time"
)

// TargetKind distinguishes the shared context from plugin frontends.
type TargetKind string

const (
	TargetShared   TargetKind = "shared"
	TargetFrontend TargetKind = "frontend"
)

// Target identifies the browser context a connection reaches.
type Target struct {
	Kind   TargetKind `json:"kind"`
	Plugin string     `json:"plugin,omitempty"`
}

// SharedTarget is the privileged shared context.
func SharedTarget() Target {
	return Target{Kind: TargetShared}
}

// FrontendTarget is the frontend context of plugin.
func FrontendTarget(plugin string) Target {
	return Target{Kind: TargetFrontend, Plugin: plugin}
}

func (t Target) String() string {
	if t.Kind == TargetFrontend {
		return "frontend:" + t.Plugin
	}
	return string(t.Kind)
}

// State is the lifecycle state of a connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Connection is a point-in-time view of one connection.
type Connection struct {
	ID         string    `json:"id"`
	Target     Target    `json:"target"`
	State      State     `json:"state"`
	RetryCount int       `json:"retry_count"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
}

// connection is the bridge-owned mutable state behind a Handle.
type connection struct {
	id       string
	target   Target
	endpoint string

	mu         sync.Mutex
	state      State
	retryCount int
	conn       Conn
	openedAt   time.Time
	err        error
	stopped    bool

	// writeMu keeps frames to one connection in send order.
	writeMu sync.Mutex
}

func (c *connection) snapshot() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Connection{
		ID:         c.id,
		Target:     c.target,
		State:      c.state,
		RetryCount: c.retryCount,
		OpenedAt:   c.openedAt,
	}
}

// setState stores s and returns the previous state.
func (c *connection) setState(s State, err error) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = s
	if s == StateOpen {
		c.openedAt = time.Now()
	}
	if err != nil {
		c.err = err
	}
	return prev
}

func (c *connection) setRetryCount(n int) {
	c.mu.Lock()
	c.retryCount = n
	c.mu.Unlock()
}

// attach installs conn unless the connection was stopped meanwhile.
func (c *connection) attach(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.conn = conn
	return true
}

// detach clears conn if it is still current.
func (c *connection) detach(conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return false
	}
	c.conn = nil
	return true
}

// current returns the attached conn when the connection is open.
func (c *connection) current() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return nil
	}
	return c.conn
}

// stop marks the connection stopped and returns the conn to close, if any.
func (c *connection) stop() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return c.conn
}

func (c *connection) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *connection) lastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
