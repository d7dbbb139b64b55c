package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/millennium/internal/metrics"
	"github.com/BaSui01/millennium/internal/retry"
	"github.com/BaSui01/millennium/internal/telemetry"
)

// ErrConnection reports a failed handshake or send. It is only ever visible
// through Handle.Err and status reports.
var ErrConnection = errors.New("connection error")

const sharedSlot = "shared"

// Config tunes connection supervision.
type Config struct {
	// Handshake attempts per connect cycle
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// First backoff delay, doubled per attempt
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
	// Backoff cap
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	// Minimum interval between reconnect cycles of one connection
	ReconnectInterval time.Duration `yaml:"reconnect_interval" env:"RECONNECT_INTERVAL"`
	// Per-frame write timeout
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// HS256 secret for handshake bearer tokens; empty disables them
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`
	// Maximum inbound frame size in bytes
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT"`
}

// DefaultConfig returns the supervision defaults: five attempts starting at
// 200ms.
func DefaultConfig() Config {
	p := retry.DefaultPolicy()
	return Config{
		MaxAttempts:       p.MaxAttempts,
		BaseDelay:         p.BaseDelay,
		MaxDelay:          p.MaxDelay,
		ReconnectInterval: time.Second,
		WriteTimeout:      5 * time.Second,
		ReadLimit:         1 << 20,
	}
}

// Bridge owns the registry of live connections.
type Bridge struct {
	cfg       Config
	transport Transport
	retryer   *retry.Retryer
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	active map[string]*connection // Connecting or Open, by id
	slots  map[string]*Handle     // latest handle per target
	closed bool

	hooksMu       sync.RWMutex
	onMessage     func(Target, Envelope)
	onStateChange func(Connection)
}

// New creates a Bridge. A nil transport selects the WebSocket transport.
func New(cfg Config, transport Transport, collector *metrics.Collector, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if transport == nil {
		transport = NewWebSocketTransport(cfg.AuthSecret, cfg.ReadLimit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With(zap.String("component", "socket_bridge"))
	return &Bridge{
		cfg:       cfg,
		transport: transport,
		retryer: retry.New(retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			Multiplier:  2.0,
			Jitter:      true,
		}, logger),
		metrics: collector,
		tracer:  telemetry.Tracer(telemetry.ScopeBridge),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		active:  make(map[string]*connection),
		slots:   make(map[string]*Handle),
	}
}

// OnMessage installs the handler for inbound envelopes. It replaces any
// previous handler and is called from supervisor goroutines.
func (b *Bridge) OnMessage(fn func(Target, Envelope)) {
	b.hooksMu.Lock()
	b.onMessage = fn
	b.hooksMu.Unlock()
}

// OnStateChange installs the handler called after every state transition.
func (b *Bridge) OnStateChange(fn func(Connection)) {
	b.hooksMu.Lock()
	b.onStateChange = fn
	b.hooksMu.Unlock()
}

// ConnectSharedContext starts supervising the shared-context connection. A
// previous shared connection is stopped, and the new one dials only after the
// old one has closed. The connection lives until ctx is cancelled or the
// bridge is closed.
func (b *Bridge) ConnectSharedContext(ctx context.Context, endpoint string) *Handle {
	return b.connect(ctx, sharedSlot, SharedTarget(), endpoint)
}

// ConnectFrontend starts supervising the frontend connection of plugin,
// replacing an earlier one for the same plugin the same way.
func (b *Bridge) ConnectFrontend(ctx context.Context, plugin, endpoint string) *Handle {
	target := FrontendTarget(plugin)
	return b.connect(ctx, target.String(), target, endpoint)
}

func (b *Bridge) connect(ctx context.Context, slot string, target Target, endpoint string) *Handle {
	c := &connection{
		id:       uuid.NewString(),
		target:   target,
		endpoint: endpoint,
		state:    StateConnecting,
	}

	hctx, cancel := context.WithCancel(b.ctx)
	h := &Handle{
		bridge: b,
		conn:   c,
		ctx:    hctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		c.setState(StateClosed, nil)
		h.cancel()
		close(h.done)
		return h
	}
	prev := b.slots[slot]
	b.slots[slot] = h
	b.active[c.id] = c
	b.wg.Add(1)
	b.mu.Unlock()

	h.release = context.AfterFunc(ctx, h.stop)

	b.logger.Debug("connection registered",
		zap.String("id", c.id),
		zap.Stringer("target", target),
		zap.String("endpoint", endpoint))

	go b.supervise(h, prev)
	return h
}

// supervise drives one connection until it is stopped or fails.
func (b *Bridge) supervise(h *Handle, prev *Handle) {
	defer b.wg.Done()
	defer close(h.done)

	c := h.conn
	defer b.unregister(c)
	defer h.release()

	if prev != nil {
		prev.stop()
		select {
		case <-prev.Done():
		case <-h.ctx.Done():
		}
	}

	var limiter *rate.Limiter
	if b.cfg.ReconnectInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(b.cfg.ReconnectInterval), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	for {
		if err := limiter.Wait(h.ctx); err != nil {
			b.transition(c, StateClosed, nil)
			return
		}
		b.transition(c, StateConnecting, nil)

		conn, err := retry.Do(h.ctx, b.retryer, func(attempt int) (Conn, error) {
			c.setRetryCount(attempt - 1)
			return b.handshake(h.ctx, c, attempt)
		})
		if err != nil {
			if h.ctx.Err() != nil {
				b.transition(c, StateClosed, nil)
				return
			}
			b.logger.Warn("connection failed",
				zap.String("id", c.id),
				zap.Stringer("target", c.target),
				zap.Error(err))
			b.transition(c, StateFailed, err)
			return
		}

		if !c.attach(conn) {
			conn.Close("shutdown")
			b.transition(c, StateClosed, nil)
			return
		}
		b.transition(c, StateOpen, nil)

		b.readLoop(c, conn)

		if c.detach(conn) && !c.isStopped() {
			conn.CloseNow()
		}
		if h.ctx.Err() != nil || c.isStopped() {
			b.transition(c, StateClosed, nil)
			return
		}
		b.logger.Info("connection lost, reconnecting",
			zap.String("id", c.id),
			zap.Stringer("target", c.target))
	}
}

func (b *Bridge) handshake(ctx context.Context, c *connection, attempt int) (Conn, error) {
	ctx, span := b.tracer.Start(ctx, "bridge.handshake", trace.WithAttributes(
		telemetry.AttrTarget.String(c.target.String()),
		telemetry.AttrPlugin.String(c.target.Plugin),
		telemetry.AttrAttempt.Int(attempt),
		telemetry.AttrEndpoint.String(c.endpoint),
	))
	defer span.End()

	conn, err := b.transport.Dial(ctx, c.target, c.endpoint)
	b.metrics.RecordConnectAttempt(string(c.target.Kind), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		b.logger.Debug("handshake failed",
			zap.Stringer("target", c.target),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, c.target, err)
	}
	return conn, nil
}

// readLoop consumes inbound frames until the channel breaks. Malformed
// frames are dropped.
func (b *Bridge) readLoop(c *connection, conn Conn) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			b.logger.Debug("read loop ended",
				zap.Stringer("target", c.target),
				zap.Error(err))
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			b.metrics.RecordMalformedMessage("inbound")
			b.logger.Warn("dropping malformed inbound message",
				zap.Stringer("target", c.target),
				zap.Error(err))
			continue
		}

		b.hooksMu.RLock()
		fn := b.onMessage
		b.hooksMu.RUnlock()
		if fn != nil {
			fn(c.target, env)
		}
	}
}

func (b *Bridge) transition(c *connection, to State, err error) {
	from := c.setState(to, err)
	if from == to {
		return
	}
	b.metrics.RecordConnectionState(string(c.target.Kind), from.String(), to.String())
	b.logger.Debug("connection state changed",
		zap.String("id", c.id),
		zap.Stringer("target", c.target),
		zap.Stringer("from", from),
		zap.Stringer("to", to))

	b.hooksMu.RLock()
	fn := b.onStateChange
	b.hooksMu.RUnlock()
	if fn != nil {
		fn(c.snapshot())
	}
}

func (b *Bridge) unregister(c *connection) {
	b.mu.Lock()
	delete(b.active, c.id)
	b.mu.Unlock()
}

// PostShared delivers env to the shared context if it is open.
func (b *Bridge) PostShared(ctx context.Context, env Envelope) bool {
	data, ok := b.encode(env)
	if !ok {
		return false
	}

	c := b.openFor(sharedSlot, SharedTarget())
	delivered := c != nil && b.send(ctx, c, data)
	b.metrics.RecordBroadcast("shared", boolToInt(delivered))
	return delivered
}

// PostTarget delivers env to the current connection for target only.
func (b *Bridge) PostTarget(ctx context.Context, target Target, env Envelope) bool {
	data, ok := b.encode(env)
	if !ok {
		return false
	}

	c := b.openFor(target.String(), target)
	delivered := c != nil && b.send(ctx, c, data)
	b.metrics.RecordBroadcast("direct", boolToInt(delivered))
	return delivered
}

// PostGlobal delivers env to the shared context and every open frontend.
// It returns true if at least one connection accepted the frame. A failed
// write closes only that connection, which then reconnects on its own.
func (b *Bridge) PostGlobal(ctx context.Context, env Envelope) bool {
	data, ok := b.encode(env)
	if !ok {
		return false
	}

	targets := b.openConnections()

	var (
		g         errgroup.Group
		delivered atomic.Int64
	)
	for _, c := range targets {
		g.Go(func() error {
			if b.send(ctx, c, data) {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(delivered.Load())
	b.metrics.RecordBroadcast("global", n)
	return n > 0
}

// openFor returns the open connection for target. While a replacement is
// still dialing, the previous connection is open and is returned instead, so
// PostShared and PostTarget reach the same connections as PostGlobal.
func (b *Bridge) openFor(slot string, target Target) *connection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if h := b.slots[slot]; h != nil && h.conn.current() != nil {
		return h.conn
	}
	for _, c := range b.active {
		if c.target == target && c.current() != nil {
			return c
		}
	}
	return nil
}

// openConnections snapshots the open connections under the registry lock.
func (b *Bridge) openConnections() []*connection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*connection, 0, len(b.active))
	for _, c := range b.active {
		if c.current() != nil {
			out = append(out, c)
		}
	}
	return out
}

func (b *Bridge) encode(env Envelope) ([]byte, bool) {
	data, err := env.Encode()
	if err != nil {
		b.metrics.RecordMalformedMessage("outbound")
		b.logger.Warn("dropping malformed outbound message",
			zap.String("kind", env.Kind),
			zap.Error(err))
		return nil, false
	}
	return data, true
}

// send writes one frame. On failure the channel is dropped so the
// supervisor reconnects.
func (b *Bridge) send(ctx context.Context, c *connection, data []byte) bool {
	c.writeMu.Lock()
	conn := c.current()
	if conn == nil {
		c.writeMu.Unlock()
		return false
	}

	wctx, cancel := context.WithTimeout(ctx, b.cfg.WriteTimeout)
	err := conn.Write(wctx, data)
	cancel()
	c.writeMu.Unlock()

	if err == nil {
		return true
	}

	b.logger.Warn("send failed, dropping connection",
		zap.String("id", c.id),
		zap.Stringer("target", c.target),
		zap.Error(fmt.Errorf("%w: %w", ErrConnection, err)))
	if c.current() == conn {
		b.transition(c, StateConnecting, nil)
	}
	conn.CloseNow()
	return false
}

// Snapshot lists the connections in the active set.
func (b *Bridge) Snapshot() []Connection {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Connection, 0, len(b.active))
	for _, c := range b.active {
		out = append(out, c.snapshot())
	}
	return out
}

// Close stops every supervisor, closes open channels gracefully and waits
// for the supervisors to exit or ctx to end.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	handles := make([]*Handle, 0, len(b.slots))
	for _, h := range b.slots {
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		h.stop()
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("socket bridge closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close socket bridge: %w", ctx.Err())
	}
}
