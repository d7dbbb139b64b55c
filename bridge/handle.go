package bridge

import (
	"context"
)

// Handle is the caller's view of one supervised connection. It never exposes
// the connection's mutable state.
type Handle struct {
	bridge  *Bridge
	conn    *connection
	ctx     context.Context
	cancel  context.CancelFunc
	release func() bool
	done    chan struct{}
}

// ID returns the connection identifier.
func (h *Handle) ID() string { return h.conn.id }

// Target returns the browser context this handle connects to.
func (h *Handle) Target() Target { return h.conn.target }

// State returns the current connection state.
func (h *Handle) State() State { return h.conn.snapshot().State }

// Connection returns a snapshot of the connection.
func (h *Handle) Connection() Connection { return h.conn.snapshot() }

// Err returns the error that made the connection fail, if any.
func (h *Handle) Err() error { return h.conn.lastErr() }

// Done is closed once the supervisor has exited (Closed or Failed).
func (h *Handle) Done() <-chan struct{} { return h.done }

// stop cancels the supervisor and closes the open channel gracefully.
func (h *Handle) stop() {
	h.cancel()
	if conn := h.conn.stop(); conn != nil {
		go conn.Close("shutdown")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
