package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/BaSui01/millennium/bridge"
	"github.com/BaSui01/millennium/config"
	"github.com/BaSui01/millennium/host"
	"github.com/BaSui01/millennium/manager"
	"github.com/BaSui01/millennium/settings"
	"github.com/BaSui01/millennium/themeconfig"
)

// =============================================================================
// 🧩 plugins 命令
// =============================================================================

func runPlugins(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: millennium plugins enable|disable <name> | list [-e|-d] | scan")
		return errUsage
	}

	fs, configPath := newFlagSet("plugins "+args[0], stderr)
	enabledOnly := fs.Bool("e", false, "List enabled plugins only")
	disabledOnly := fs.Bool("d", false, "List disabled plugins only")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := manager.New(cfg.Settings, logger)

	switch args[0] {
	case "enable", "disable":
		if fs.NArg() != 1 {
			fmt.Fprintf(stderr, "Usage: millennium plugins %s <name>\n", args[0])
			return errUsage
		}
		name := fs.Arg(0)
		if args[0] == "enable" {
			err = m.EnablePlugin(ctx, name)
		} else {
			err = m.DisablePlugin(ctx, name)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%sd %s\n", args[0], name)
		return nil

	case "list":
		if *enabledOnly && *disabledOnly {
			fmt.Fprintln(stderr, "Usage: millennium plugins list [-e|-d]")
			return errUsage
		}
		var records []settings.PluginRecord
		switch {
		case *enabledOnly:
			records, err = m.ListEnabledPlugins(ctx)
		case *disabledOnly:
			records, err = m.ListDisabledPlugins(ctx)
		default:
			records, err = m.ListAllPlugins(ctx)
		}
		if err != nil {
			return err
		}
		return manager.Render(stdout, records)

	case "scan":
		stale, err := m.Rescan(ctx)
		if err != nil {
			return err
		}
		for _, name := range stale {
			fmt.Fprintf(stderr, "missing on disk: %s\n", name)
		}
		records, err := m.ListAllPlugins(ctx)
		if err != nil {
			return err
		}
		return manager.Render(stdout, records)

	default:
		fmt.Fprintf(stderr, "Unknown plugins command: %s\n", args[0])
		return errUsage
	}
}

// =============================================================================
// 🎨 themes 命令
// =============================================================================

func runThemes(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: millennium themes use <name> | list")
		return errUsage
	}

	fs, configPath := newFlagSet("themes "+args[0], stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store := themeconfig.NewFileStore(cfg.Theme.Path)

	switch args[0] {
	case "use":
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: millennium themes use <name>")
			return errUsage
		}
		if err := themeconfig.UseTheme(store, cfg.Theme.Dir, fs.Arg(0)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "using theme %s\n", fs.Arg(0))
		return nil

	case "list":
		active, err := store.Active()
		if err != nil {
			return err
		}
		themes, err := themeconfig.ListThemes(cfg.Theme.Dir, active)
		if err != nil {
			return err
		}
		if len(themes) == 0 {
			fmt.Fprintln(stdout, "no themes")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "THEME\tACTIVE")
		for _, th := range themes {
			mark := ""
			if th.Active {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\n", th.Name, mark)
		}
		return tw.Flush()

	default:
		fmt.Fprintf(stderr, "Unknown themes command: %s\n", args[0])
		return errUsage
	}
}

// =============================================================================
// ⚙️ config / theme_config 命令
// =============================================================================

func runConfig(args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("config", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch fs.NArg() {
	case 0:
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		fields, err := config.Fields(cfg)
		if err != nil {
			return err
		}
		for _, name := range config.FieldNames() {
			fmt.Fprintf(stdout, "%s = %s\n", name, fields[name])
		}
		return nil

	case 1:
		cfg, err := loadConfig(*configPath)
		if err != nil {
			return err
		}
		v, err := config.Lookup(cfg, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, v)
		return nil

	case 2:
		return config.SetField(*configPath, fs.Arg(0), fs.Arg(1))

	default:
		fmt.Fprintln(stderr, "Usage: millennium config [field [value]]")
		return errUsage
	}
}

func runThemeConfig(args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("theme_config", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fmt.Fprintln(stderr, "Usage: millennium theme_config field [value]")
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store := themeconfig.NewFileStore(cfg.Theme.Path)
	field := fs.Arg(0)

	if fs.NArg() == 2 {
		return themeconfig.Apply(store, field, fs.Arg(1))
	}
	v, ok, err := store.Get(field)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("theme setting %q is not set", field)
	}
	fmt.Fprintf(stdout, "%s (%s)\n", v, v.Kind)
	return nil
}

// =============================================================================
// 🎮 steam 命令
// =============================================================================

func runSteam(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: millennium steam restart|reload")
		return errUsage
	}
	fs, configPath := newFlagSet("steam "+args[0], stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := bridge.NewWebSocketTransport(cfg.Bridge.AuthSecret, cfg.Bridge.ReadLimit)
	ctrl := host.NewController(cfg.Host, cfg.Loader.IPCURL, transport, logger)

	switch args[0] {
	case "restart":
		if err := ctrl.Restart(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "restart requested")
		return nil
	case "reload":
		if err := ctrl.ReloadInterface(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "reload requested")
		return nil
	default:
		fmt.Fprintf(stderr, "Unknown steam command: %s\n", args[0])
		return errUsage
	}
}
