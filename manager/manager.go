// Package manager is the management surface over the plugin registry. Every
// operation opens the registry, acts, and closes it again, so separate
// invocations (and separate processes) never share in-memory state.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/BaSui01/millennium/settings"
)

// Manager enables, disables and lists plugins.
type Manager struct {
	cfg    settings.Config
	open   func(ctx context.Context) (*settings.Store, error)
	logger *zap.Logger
}

// New creates a Manager over the registry described by cfg.
func New(cfg settings.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "plugin_manager")),
	}
	m.open = func(ctx context.Context) (*settings.Store, error) {
		return settings.Open(ctx, m.cfg, m.logger)
	}
	return m
}

func (m *Manager) withStore(ctx context.Context, fn func(*settings.Store) error) error {
	store, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			m.logger.Warn("failed to close registry", zap.Error(cerr))
		}
	}()
	return fn(store)
}

// EnablePlugin marks name enabled. Errors from the registry are returned
// unchanged (settings.ErrPluginNotFound, settings.ErrPersistence).
func (m *Manager) EnablePlugin(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, true)
}

// DisablePlugin marks name disabled.
func (m *Manager) DisablePlugin(ctx context.Context, name string) error {
	return m.setEnabled(ctx, name, false)
}

func (m *Manager) setEnabled(ctx context.Context, name string, enabled bool) error {
	err := m.withStore(ctx, func(s *settings.Store) error {
		return s.SetEnabled(ctx, name, enabled)
	})
	if err != nil {
		return err
	}
	m.logger.Info("plugin updated", zap.String("plugin", name), zap.Bool("enabled", enabled))
	return nil
}

// ListEnabledPlugins returns the enabled plugins in registry order. Enabled
// plugins missing on disk are kept and marked Stale.
func (m *Manager) ListEnabledPlugins(ctx context.Context) ([]settings.PluginRecord, error) {
	return m.list(ctx, (*settings.Store).ListEnabled)
}

// ListDisabledPlugins returns the disabled plugins in registry order.
func (m *Manager) ListDisabledPlugins(ctx context.Context) ([]settings.PluginRecord, error) {
	return m.list(ctx, (*settings.Store).ListDisabled)
}

// ListAllPlugins returns the registered plugins that are installed, in
// registry order. Stale records are left out.
func (m *Manager) ListAllPlugins(ctx context.Context) ([]settings.PluginRecord, error) {
	records, err := m.list(ctx, (*settings.Store).ListAll)
	if err != nil {
		return nil, err
	}
	out := records[:0]
	for _, r := range records {
		if !r.Stale {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Manager) list(ctx context.Context, query func(*settings.Store) []settings.PluginRecord) ([]settings.PluginRecord, error) {
	var out []settings.PluginRecord
	err := m.withStore(ctx, func(s *settings.Store) error {
		out = query(s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.markStale(out); err != nil {
		return nil, err
	}
	return out, nil
}

// markStale flags records with no plugin under PluginsDir. Without a plugins
// directory nothing can be checked and nothing is flagged.
func (m *Manager) markStale(records []settings.PluginRecord) error {
	if m.cfg.PluginsDir == "" || len(records) == 0 {
		return nil
	}
	if _, err := os.Stat(m.cfg.PluginsDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat plugins dir %s: %w", m.cfg.PluginsDir, err)
	}

	discovered, err := settings.Discover(m.cfg.PluginsDir)
	if err != nil {
		return err
	}
	onDisk := make(map[string]bool, len(discovered))
	for _, d := range discovered {
		onDisk[d.Name] = true
	}
	for i := range records {
		records[i].Stale = !onDisk[records[i].Name]
	}
	return nil
}

// Rescan merges the plugins found under the configured plugins directory
// into the registry and returns the names of registered plugins that are no
// longer on disk.
func (m *Manager) Rescan(ctx context.Context) ([]string, error) {
	discovered, err := settings.Discover(m.cfg.PluginsDir)
	if err != nil {
		return nil, err
	}

	var stale []string
	err = m.withStore(ctx, func(s *settings.Store) error {
		stale, err = s.Reconcile(ctx, discovered)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		m.logger.Warn("registered plugins missing on disk", zap.Strings("plugins", stale))
	}
	return stale, nil
}

// Render writes records as a table.
func Render(w io.Writer, records []settings.PluginRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "no plugins")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tBACKEND\tFRONTEND")
	for _, r := range records {
		status := "disabled"
		if r.Enabled {
			status = "enabled"
		}
		if r.Stale {
			status += " (missing)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, status, orDash(r.BackendEntry), orDash(r.FrontendEntry))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
