package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"

	"github.com/BaSui01/millennium/settings"
)

// ErrBackendExited reports a backend process that exited before it was ready.
var ErrBackendExited = errors.New("backend exited during startup")

// Backend is a running plugin backend.
type Backend interface {
	// Wait blocks until the backend has stopped.
	Wait() error
	// Stop asks the backend to exit and waits for it, killing it when ctx
	// expires first.
	Stop(ctx context.Context) error
}

// BackendRunner launches plugin backends. Start returns once the backend is
// ready to serve; the backend lives until ctx is cancelled.
type BackendRunner interface {
	Start(ctx context.Context, rec settings.PluginRecord) (Backend, error)
}

// ExecRunner runs each backend entry as a child process. A process that is
// still alive after ReadyDelay counts as ready.
type ExecRunner struct {
	ReadyDelay time.Duration
	StopGrace  time.Duration
	IPCURL     string

	logger *zap.Logger
}

// NewExecRunner creates a runner whose children inherit the environment plus
// MILLENNIUM_PLUGIN_NAME and MILLENNIUM_IPC_URL.
func NewExecRunner(readyDelay time.Duration, ipcURL string, logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{
		ReadyDelay: readyDelay,
		StopGrace:  5 * time.Second,
		IPCURL:     ipcURL,
		logger:     logger.With(zap.String("component", "backend_runner")),
	}
}

// Start implements BackendRunner. Plugins without a backend entry get an idle
// backend that is ready immediately.
func (r *ExecRunner) Start(ctx context.Context, rec settings.PluginRecord) (Backend, error) {
	if rec.BackendEntry == "" {
		return &idleBackend{ctx: ctx}, nil
	}

	// Cmd resolves a relative Path against Dir, so pin the entry first.
	entry, err := filepath.Abs(rec.BackendEntry)
	if err != nil {
		return nil, fmt.Errorf("start backend %s: %w", rec.Name, err)
	}
	cmd := exec.CommandContext(ctx, entry)
	cmd.Dir = filepath.Dir(entry)
	cmd.Env = append(os.Environ(),
		"MILLENNIUM_PLUGIN_NAME="+rec.Name,
		"MILLENNIUM_IPC_URL="+r.IPCURL,
	)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = r.StopGrace

	out := &zapio.Writer{Log: r.logger.With(zap.String("plugin", rec.Name)), Level: zap.InfoLevel}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start backend %s: %w", rec.Name, err)
	}

	p := &processBackend{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		_ = out.Close()
		close(p.done)
	}()

	timer := time.NewTimer(r.ReadyDelay)
	defer timer.Stop()

	select {
	case <-p.done:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrBackendExited, rec.Name, exitReason(p.err))
	case <-timer.C:
		r.logger.Debug("backend process ready",
			zap.String("plugin", rec.Name),
			zap.Int("pid", cmd.Process.Pid))
		return p, nil
	case <-ctx.Done():
		<-p.done
		return nil, ctx.Err()
	}
}

func exitReason(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

type processBackend struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *processBackend) Wait() error {
	<-p.done
	return p.err
}

func (p *processBackend) Stop(ctx context.Context) error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.done
		return ctx.Err()
	}
}

// idleBackend stands in for frontend-only plugins.
type idleBackend struct {
	ctx context.Context
}

func (b *idleBackend) Wait() error {
	<-b.ctx.Done()
	return nil
}

func (b *idleBackend) Stop(context.Context) error { return nil }
