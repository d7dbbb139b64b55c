package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/millennium/bridge"
	"github.com/BaSui01/millennium/config"
	"github.com/BaSui01/millennium/internal/metrics"
	"github.com/BaSui01/millennium/internal/server"
	"github.com/BaSui01/millennium/internal/telemetry"
	"github.com/BaSui01/millennium/loader"
	"github.com/BaSui01/millennium/settings"
	"github.com/BaSui01/millennium/themeconfig"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("serve", stderr)
	reportAfter := fs.Duration("report-after", 5*time.Second, "Print the active plugin table after this delay (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting Millennium",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, *reportAfter, stdout, logger)
}

// serve runs the loader until ctx is done, then shuts everything down.
func serve(ctx context.Context, cfg *config.Config, reportAfter time.Duration, stdout io.Writer, logger *zap.Logger) error {
	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("millennium", reg, logger)

	store, err := settings.Open(ctx, cfg.Settings, logger)
	if err != nil {
		return fmt.Errorf("open plugin registry: %w", err)
	}
	br := bridge.New(cfg.Bridge, nil, collector, logger)
	ld := loader.New(cfg.Loader, store, br, logger, loader.WithMetrics(collector))
	if err := store.Close(); err != nil {
		logger.Warn("failed to close plugin registry", zap.Error(err))
	}

	ld.ConnectShared(ctx)
	ld.StartBackEnds(ctx)
	ld.StartFrontEnds(ctx)

	var watcher *config.FileWatcher
	if cfg.Theme.Watch {
		watcher, err = watchTheme(ctx, cfg.Theme, br, logger)
		if err != nil {
			logger.Warn("theme watcher disabled", zap.Error(err))
		}
	}

	var httpManager *server.Manager
	if cfg.Server.HTTPPort > 0 {
		handler := server.Chain(
			server.NewStatusHandler(ld, br, reg, logger),
			server.Recovery(logger),
			server.RequestID(),
			server.RequestLogger(logger),
		)
		httpManager = server.NewManager(handler, server.Config{
			Addr:            net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Server.HTTPPort)),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     2 * time.Minute,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, logger)
		if err := httpManager.Start(); err != nil {
			logger.Warn("status server disabled", zap.Error(err))
			httpManager = nil
		}
	}

	var reportC <-chan time.Time
	if reportAfter > 0 {
		timer := time.NewTimer(reportAfter)
		defer timer.Stop()
		reportC = timer.C
	}

	var serverErrs <-chan error
	if httpManager != nil {
		serverErrs = httpManager.Errors()
	}

wait:
	for {
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal")
			break wait
		case err := <-serverErrs:
			logger.Error("status server exited unexpectedly", zap.Error(err))
			break wait
		case <-reportC:
			if err := ld.PrintActivePlugins(stdout); err != nil {
				logger.Warn("failed to print active plugins", zap.Error(err))
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if watcher != nil {
		_ = watcher.Stop()
	}
	if httpManager != nil {
		errs = append(errs, httpManager.Shutdown(shutdownCtx))
	}
	errs = append(errs, ld.Shutdown(shutdownCtx))
	errs = append(errs, otelProviders.Shutdown(shutdownCtx))

	logger.Info("Millennium stopped")
	return errors.Join(errs...)
}

// watchTheme pushes the theme store to every open context whenever its
// file changes.
func watchTheme(ctx context.Context, cfg config.ThemeConfig, br *bridge.Bridge, logger *zap.Logger) (*config.FileWatcher, error) {
	w, err := config.NewFileWatcher([]string{cfg.Path},
		config.WithDebounceDelay(cfg.WatchDebounce),
		config.WithWatcherLogger(logger))
	if err != nil {
		return nil, err
	}
	store := themeconfig.NewFileStore(cfg.Path)
	w.OnChange(func(evt config.FileEvent) {
		broadcastTheme(ctx, store, br, logger)
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func broadcastTheme(ctx context.Context, store *themeconfig.FileStore, br *bridge.Bridge, logger *zap.Logger) bool {
	snap, err := store.Snapshot()
	if err != nil {
		logger.Warn("failed to read theme store", zap.String("path", store.Path()), zap.Error(err))
		return false
	}
	env, err := bridge.NewEnvelope(themeconfig.KindChanged, snap)
	if err != nil {
		logger.Warn("failed to encode theme change", zap.Error(err))
		return false
	}
	delivered := br.PostGlobal(ctx, env)
	logger.Debug("theme change broadcast", zap.Bool("delivered", delivered))
	return delivered
}
