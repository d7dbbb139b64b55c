package loader

import (
	"context"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/millennium/bridge"
	"github.com/BaSui01/millennium/internal/metrics"
	"github.com/BaSui01/millennium/internal/retry"
	"github.com/BaSui01/millennium/internal/telemetry"
	"github.com/BaSui01/millennium/settings"
)

// KindFrontendInject is posted to a frontend right after it opens.
const KindFrontendInject = "frontend.inject"

// Config tunes plugin startup.
type Config struct {
	// Base URL of the host's IPC endpoint
	IPCURL string `yaml:"ipc_url" env:"IPC_URL"`
	// How long a backend process must stay alive to count as ready
	BackendReadyDelay time.Duration `yaml:"backend_ready_delay" env:"BACKEND_READY_DELAY"`
	// Backend start attempts per cycle
	BackendMaxAttempts int `yaml:"backend_max_attempts" env:"BACKEND_MAX_ATTEMPTS"`
	// First backoff delay between backend start attempts
	BackendBaseDelay time.Duration `yaml:"backend_base_delay" env:"BACKEND_BASE_DELAY"`
	// Backoff cap
	BackendMaxDelay time.Duration `yaml:"backend_max_delay" env:"BACKEND_MAX_DELAY"`
	// Minimum interval between restarts of an exited backend
	RestartInterval time.Duration `yaml:"restart_interval" env:"RESTART_INTERVAL"`
}

// DefaultConfig returns the loader defaults.
func DefaultConfig() Config {
	p := retry.DefaultPolicy()
	return Config{
		IPCURL:             "ws://127.0.0.1:12039",
		BackendReadyDelay:  500 * time.Millisecond,
		BackendMaxAttempts: p.MaxAttempts,
		BackendBaseDelay:   p.BaseDelay,
		BackendMaxDelay:    p.MaxDelay,
		RestartInterval:    time.Second,
	}
}

// PluginSource yields the plugins to load.
type PluginSource interface {
	ListEnabled() []settings.PluginRecord
}

// Option configures a Loader.
type Option func(*Loader)

// WithRunner replaces the default ExecRunner.
func WithRunner(r BackendRunner) Option {
	return func(l *Loader) { l.runner = r }
}

// WithStartTime overrides the start time that uptime is measured from.
func WithStartTime(t time.Time) Option {
	return func(l *Loader) { l.startTime = t }
}

// WithMetrics records plugin phases and backend starts.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Loader) { l.metrics = c }
}

type plugin struct {
	record     settings.PluginRecord
	backend    HalfState
	backendErr error
	proc       Backend
	frontend   HalfState
	handle     *bridge.Handle
	phase      Phase
	readyAfter time.Duration
}

// Loader starts the enabled plugins and tracks their connection state.
type Loader struct {
	cfg       Config
	bridge    *bridge.Bridge
	runner    BackendRunner
	retryer   *retry.Retryer
	metrics   *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	order    []string
	plugins  map[string]*plugin
	shared   *bridge.Handle
	shutdown bool
}

// New reads the enabled plugins from source once and prepares them in
// registry order. The loader installs itself as br's state-change handler.
func New(cfg Config, source PluginSource, br *bridge.Bridge, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IPCURL == "" {
		cfg.IPCURL = DefaultConfig().IPCURL
	}
	logger = logger.With(zap.String("component", "plugin_loader"))

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		cfg:    cfg,
		bridge: br,
		retryer: retry.New(retry.Policy{
			MaxAttempts: cfg.BackendMaxAttempts,
			BaseDelay:   cfg.BackendBaseDelay,
			MaxDelay:    cfg.BackendMaxDelay,
			Multiplier:  2.0,
			Jitter:      true,
		}, logger),
		tracer:  telemetry.Tracer(telemetry.ScopeLoader),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		plugins: make(map[string]*plugin),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runner == nil {
		l.runner = NewExecRunner(cfg.BackendReadyDelay, cfg.IPCURL, logger)
	}
	if l.startTime.IsZero() {
		l.startTime = processStartTime()
	}

	for _, rec := range source.ListEnabled() {
		if _, dup := l.plugins[rec.Name]; dup {
			continue
		}
		l.order = append(l.order, rec.Name)
		l.plugins[rec.Name] = &plugin{record: rec, phase: PhaseNotStarted}
		l.metrics.SetPluginPhase(rec.Name, string(PhaseNotStarted), phaseNames())
	}

	br.OnStateChange(l.onConnectionState)
	return l
}

// processStartTime is the creation time of this process, or now when the
// platform does not report it.
func processStartTime() time.Time {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if ms, err := p.CreateTime(); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Now()
}

// StartTime returns the instant uptime is measured from.
func (l *Loader) StartTime() time.Time { return l.startTime }

// Plugins returns the names of the loaded plugins in registry order.
func (l *Loader) Plugins() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// =============================================================================
// Backends
// =============================================================================

// StartBackEnds launches one task per enabled plugin in registry order and
// returns once all are dispatched. Tasks run until ctx is cancelled or the
// loader shuts down. Plugins whose backend was already started are skipped.
func (l *Loader) StartBackEnds(ctx context.Context) {
	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return
	}
	var recs []settings.PluginRecord
	for _, name := range l.order {
		p := l.plugins[name]
		if p.backend.Started {
			continue
		}
		p.backend = started(bridge.StateConnecting)
		recs = append(recs, p.record)
	}
	l.wg.Add(len(recs))
	l.mu.Unlock()

	for _, rec := range recs {
		l.refresh(rec.Name)
		tctx, stop := l.taskContext(ctx)
		go func(rec settings.PluginRecord) {
			defer l.wg.Done()
			defer stop()
			l.runBackend(tctx, rec)
		}(rec)
	}

	l.logger.Info("backends dispatched", zap.Int("count", len(recs)))
}

// taskContext is cancelled by either ctx or Shutdown.
func (l *Loader) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(l.ctx, cancel)
	return tctx, func() {
		release()
		cancel()
	}
}

func (l *Loader) runBackend(ctx context.Context, rec settings.PluginRecord) {
	limit := rate.Inf
	if l.cfg.RestartInterval > 0 {
		limit = rate.Every(l.cfg.RestartInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			l.setBackend(rec.Name, bridge.StateClosed, nil, nil)
			return
		}
		l.setBackend(rec.Name, bridge.StateConnecting, nil, nil)

		proc, err := retry.Do(ctx, l.retryer, func(attempt int) (Backend, error) {
			spanCtx, span := l.tracer.Start(ctx, "loader.backend_start", trace.WithAttributes(
				telemetry.AttrPlugin.String(rec.Name),
				telemetry.AttrAttempt.Int(attempt),
			))
			b, err := l.runner.Start(spanCtx, rec)
			l.metrics.RecordBackendStart(err == nil)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "backend start failed")
			}
			span.End()
			if err != nil {
				l.logger.Debug("backend start attempt failed",
					zap.String("plugin", rec.Name),
					zap.Int("attempt", attempt),
					zap.Error(err))
			}
			return b, err
		})
		if err != nil {
			if ctx.Err() != nil {
				l.setBackend(rec.Name, bridge.StateClosed, nil, nil)
				return
			}
			l.setBackend(rec.Name, bridge.StateFailed, nil, err)
			return
		}

		l.setBackend(rec.Name, bridge.StateOpen, proc, nil)
		werr := proc.Wait()
		if ctx.Err() != nil {
			l.setBackend(rec.Name, bridge.StateClosed, nil, nil)
			return
		}
		l.logger.Warn("plugin backend exited, restarting",
			zap.String("plugin", rec.Name),
			zap.Error(werr))
	}
}

func (l *Loader) setBackend(name string, s bridge.State, proc Backend, err error) {
	l.mu.Lock()
	p, ok := l.plugins[name]
	if !ok {
		l.mu.Unlock()
		return
	}
	p.backend = started(s)
	p.proc = proc
	if s != bridge.StateConnecting {
		p.backendErr = err
	}
	l.mu.Unlock()

	l.refresh(name)
}

// =============================================================================
// Frontends
// =============================================================================

// StartFrontEnds connects one frontend per enabled plugin in registry order.
// Connections are supervised by the bridge; failures show up in Report.
func (l *Loader) StartFrontEnds(ctx context.Context) {
	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return
	}
	var names []string
	for _, name := range l.order {
		p := l.plugins[name]
		if p.frontend.Started {
			continue
		}
		p.frontend = started(bridge.StateConnecting)
		names = append(names, name)
	}
	l.mu.Unlock()

	for _, name := range names {
		l.refresh(name)
		h := l.bridge.ConnectFrontend(ctx, name, l.frontendEndpoint(name))

		l.mu.Lock()
		l.plugins[name].handle = h
		l.mu.Unlock()

		// A closed bridge hands back a finished handle without notifying.
		select {
		case <-h.Done():
			l.onConnectionState(h.Connection())
		default:
		}
	}

	l.logger.Info("frontends dispatched", zap.Int("count", len(names)))
}

// ConnectShared connects the shared context. A second call replaces the
// first connection.
func (l *Loader) ConnectShared(ctx context.Context) *bridge.Handle {
	h := l.bridge.ConnectSharedContext(ctx, l.sharedEndpoint())
	l.mu.Lock()
	l.shared = h
	l.mu.Unlock()
	return h
}

func (l *Loader) sharedEndpoint() string {
	return strings.TrimRight(l.cfg.IPCURL, "/") + "/shared"
}

func (l *Loader) frontendEndpoint(name string) string {
	return strings.TrimRight(l.cfg.IPCURL, "/") + "/frontend/" + url.PathEscape(name)
}

func (l *Loader) onConnectionState(c bridge.Connection) {
	if c.Target.Kind != bridge.TargetFrontend {
		return
	}

	l.mu.Lock()
	p, ok := l.plugins[c.Target.Plugin]
	if !ok {
		l.mu.Unlock()
		return
	}
	p.frontend = started(c.State)
	entry := p.record.FrontendEntry
	l.mu.Unlock()

	l.refresh(c.Target.Plugin)

	if c.State == bridge.StateOpen {
		l.inject(c.Target, entry)
	}
}

func (l *Loader) inject(target bridge.Target, entry string) {
	env, err := bridge.NewEnvelope(KindFrontendInject, map[string]string{
		"plugin": target.Plugin,
		"entry":  entry,
	})
	if err != nil {
		l.logger.Error("failed to build inject envelope", zap.Error(err))
		return
	}
	if !l.bridge.PostTarget(l.ctx, target, env) {
		l.logger.Warn("frontend inject not delivered", zap.String("plugin", target.Plugin))
	}
}

// =============================================================================
// Phase tracking
// =============================================================================

// refresh recomputes the phase of name and reports a change.
func (l *Loader) refresh(name string) {
	l.mu.Lock()
	p, ok := l.plugins[name]
	if !ok {
		l.mu.Unlock()
		return
	}
	next := DerivePhase(p.backend, p.frontend)
	from := p.phase
	if next == from {
		l.mu.Unlock()
		return
	}
	p.phase = next
	if next == PhaseReady && p.readyAfter == 0 {
		p.readyAfter = time.Since(l.startTime)
	}
	err := p.backendErr
	if err == nil && p.handle != nil {
		err = p.handle.Err()
	}
	l.mu.Unlock()

	l.metrics.SetPluginPhase(name, string(next), phaseNames())

	fields := []zap.Field{
		zap.String("plugin", name),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	}
	switch next {
	case PhaseReady:
		l.logger.Info("plugin ready", fields...)
	case PhaseFailed:
		l.logger.Warn("plugin failed", append(fields, zap.Error(err))...)
	default:
		l.logger.Debug("plugin phase changed", fields...)
	}
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown cancels every task, stops running backends and closes the bridge.
// It waits for tasks to finish until ctx expires.
func (l *Loader) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	if l.shutdown {
		l.mu.Unlock()
		return nil
	}
	l.shutdown = true
	var procs []Backend
	for _, name := range l.order {
		if p := l.plugins[name]; p.proc != nil {
			procs = append(procs, p.proc)
		}
	}
	l.mu.Unlock()

	l.cancel()

	var errs []error
	for _, proc := range procs {
		if err := proc.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.bridge.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	l.logger.Info("plugin loader stopped")
	return errors.Join(errs...)
}
