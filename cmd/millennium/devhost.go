package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/millennium/internal/devhost"
	"github.com/BaSui01/millennium/internal/server"
)

// =============================================================================
// 🧪 devhost 命令
// =============================================================================

func runDevHost(args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("devhost", stderr)
	addr := fs.String("addr", "", "Listen address (defaults to devhost.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.DevHost.Addr = *addr
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := devhost.New(cfg.Bridge.AuthSecret, logger)
	hub.OnMessage(func(m devhost.Message) {
		logger.Info("envelope",
			zap.Stringer("target", m.Target),
			zap.String("kind", m.Envelope.Kind),
			zap.ByteString("payload", m.Envelope.Payload))
	})
	go hub.Run(ctx)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.DevHost.Addr
	srvCfg.ReadTimeout = 0
	srvCfg.WriteTimeout = 0
	srvCfg.ShutdownTimeout = 5 * time.Second
	m := server.NewManager(hub.Handler(), srvCfg, logger)
	if err := m.Start(); err != nil {
		return err
	}
	logger.Info("devhost listening", zap.String("addr", m.ListenAddr()))

	select {
	case <-ctx.Done():
	case err := <-m.Errors():
		return err
	}
	return m.Shutdown(context.Background())
}
