// Package devhost serves stand-in browser contexts for plugin development.
// It accepts the bridge's WebSocket connections at /shared and
// /frontend/{plugin}, records every envelope it receives and can push
// envelopes back.
package devhost

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/millennium/bridge"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// ErrHubStopped is returned when the hub is no longer running.
var ErrHubStopped = errors.New("devhost hub stopped")

// Message is an envelope received from the bridge.
type Message struct {
	Target   bridge.Target
	Envelope bridge.Envelope
	At       time.Time
}

type outbound struct {
	target *bridge.Target // nil broadcasts
	data   []byte
}

// Hub tracks the connected contexts. Run must be running for connections
// to be served.
type Hub struct {
	secret   []byte
	upgrader websocket.Upgrader
	logger   *zap.Logger

	register   chan *client
	unregister chan *client
	outbound   chan outbound
	requests   chan func(map[*client]bool)
	stopped    chan struct{}

	mu        sync.Mutex
	messages  []Message
	onMessage func(Message)
}

// New creates a hub. A non-empty secret requires every handshake to carry a
// bearer token for the target being connected.
func New(secret string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     logger.With(zap.String("component", "devhost")),
		register:   make(chan *client),
		unregister: make(chan *client),
		outbound:   make(chan outbound, 256),
		requests:   make(chan func(map[*client]bool)),
		stopped:    make(chan struct{}),
	}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// OnMessage installs a callback run for every received envelope.
func (h *Hub) OnMessage(fn func(Message)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// Run owns the client set until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]bool)
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			clients[c] = true
			h.logger.Info("context connected", zap.Stringer("target", c.target))

		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				close(c.send)
				h.logger.Info("context disconnected", zap.Stringer("target", c.target))
			}

		case out := <-h.outbound:
			for c := range clients {
				if out.target != nil && c.target != *out.target {
					continue
				}
				select {
				case c.send <- out.data:
				default:
					delete(clients, c)
					close(c.send)
				}
			}

		case fn := <-h.requests:
			fn(clients)

		case <-ctx.Done():
			for c := range clients {
				delete(clients, c)
				close(c.send)
			}
			return
		}
	}
}

// Handler serves /shared and /frontend/{plugin}.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /shared", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, bridge.SharedTarget())
	})
	mux.HandleFunc("GET /frontend/{plugin}", func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, bridge.FrontendTarget(r.PathValue("plugin")))
	})
	return mux
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, target bridge.Target) {
	if len(h.secret) > 0 {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		subject, err := bridge.VerifyToken(h.secret, token)
		if err != nil || subject != target.String() {
			h.logger.Warn("rejected handshake", zap.Stringer("target", target), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{hub: h, conn: conn, target: target, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.stopped:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Send delivers env to every context connected as target.
func (h *Hub) Send(target bridge.Target, env bridge.Envelope) error {
	return h.push(&target, env)
}

// Broadcast delivers env to every connected context.
func (h *Hub) Broadcast(env bridge.Envelope) error {
	return h.push(nil, env)
}

func (h *Hub) push(target *bridge.Target, env bridge.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	select {
	case h.outbound <- outbound{target: target, data: data}:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Clients returns the targets currently connected.
func (h *Hub) Clients() []bridge.Target {
	var out []bridge.Target
	h.do(func(clients map[*client]bool) {
		for c := range clients {
			out = append(out, c.target)
		}
	})
	return out
}

// Disconnect drops every connection for target without a close handshake.
func (h *Hub) Disconnect(target bridge.Target) int {
	n := 0
	h.do(func(clients map[*client]bool) {
		for c := range clients {
			if c.target == target {
				c.conn.Close()
				n++
			}
		}
	})
	return n
}

func (h *Hub) do(fn func(map[*client]bool)) {
	done := make(chan struct{})
	select {
	case h.requests <- func(clients map[*client]bool) {
		fn(clients)
		close(done)
	}:
		<-done
	case <-h.stopped:
	}
}

// Messages returns every envelope received so far.
func (h *Hub) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.messages...)
}

func (h *Hub) record(m Message) {
	h.mu.Lock()
	h.messages = append(h.messages, m)
	fn := h.onMessage
	h.mu.Unlock()

	h.logger.Debug("envelope received",
		zap.Stringer("target", m.Target),
		zap.String("kind", m.Envelope.Kind))
	if fn != nil {
		fn(m)
	}
}
