// Package host controls the client application that Millennium extends.
//
// Both operations are fire-and-forget: Restart launches the configured
// restart command and returns without waiting for it, and ReloadInterface
// asks the running client to reload its interface over the shared context.
package host

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/millennium/bridge"
)

// KindReload asks the shared context to reload the client interface.
const KindReload = "host.reload"

// ErrNoRestartCommand is returned by Restart when none is configured.
var ErrNoRestartCommand = errors.New("no restart command configured")

// Config describes how to reach and restart the host.
type Config struct {
	// Command line that restarts the client, split on whitespace
	RestartCommand string `yaml:"restart_command" env:"RESTART_COMMAND"`
	// Bound on dialing and posting the reload request
	ReloadTimeout time.Duration `yaml:"reload_timeout" env:"RELOAD_TIMEOUT"`
}

// DefaultConfig returns the host defaults.
func DefaultConfig() Config {
	return Config{
		ReloadTimeout: 5 * time.Second,
	}
}

// Controller restarts and reloads the host client.
type Controller struct {
	cfg       Config
	ipcURL    string
	transport bridge.Transport
	logger    *zap.Logger
}

// NewController creates a Controller. A nil transport selects the WebSocket
// transport.
func NewController(cfg Config, ipcURL string, transport bridge.Transport, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = DefaultConfig().ReloadTimeout
	}
	if transport == nil {
		transport = bridge.NewWebSocketTransport("", 0)
	}
	return &Controller{
		cfg:       cfg,
		ipcURL:    ipcURL,
		transport: transport,
		logger:    logger.With(zap.String("component", "host_controller")),
	}
}

// Restart starts the restart command and returns once it is running.
func (c *Controller) Restart(ctx context.Context) error {
	args := strings.Fields(c.cfg.RestartCommand)
	if len(args) == 0 {
		return ErrNoRestartCommand
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start restart command: %w", err)
	}
	pid := cmd.Process.Pid
	go func() {
		if err := cmd.Wait(); err != nil {
			c.logger.Warn("restart command failed", zap.Int("pid", pid), zap.Error(err))
		}
	}()

	c.logger.Info("host restart requested", zap.Int("pid", pid))
	return nil
}

// ReloadInterface makes a single connection to the shared context and posts
// a reload request on it.
func (c *Controller) ReloadInterface(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReloadTimeout)
	defer cancel()

	endpoint := strings.TrimRight(c.ipcURL, "/") + "/shared"
	conn, err := c.transport.Dial(ctx, bridge.SharedTarget(), endpoint)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", bridge.ErrConnection, endpoint, err)
	}

	data, err := bridge.Envelope{Kind: KindReload}.Encode()
	if err != nil {
		conn.CloseNow()
		return err
	}
	if err := conn.Write(ctx, data); err != nil {
		conn.CloseNow()
		return fmt.Errorf("%w: post reload: %w", bridge.ErrConnection, err)
	}

	c.logger.Info("host interface reload requested")
	return conn.Close("reload requested")
}
