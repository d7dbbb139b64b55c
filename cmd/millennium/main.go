// =============================================================================
// Millennium 主入口
// =============================================================================
// 插件加载器、插件/主题管理与宿主控制的命令行入口
//
// 使用方法:
//
//	millennium serve                          # 加载插件并保持运行
//	millennium plugins list -e                # 列出已启用插件
//	millennium plugins enable <name>          # 启用插件
//	millennium themes use <name>              # 切换主题
//	millennium config loader.ipc_url          # 读取配置项
//	millennium theme_config accent "#ff00ff"  # 写入主题配置
//	millennium steam reload                   # 重载客户端界面
//	millennium devhost                        # 启动开发用上下文模拟器
// =============================================================================

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/millennium/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const defaultConfigPath = "millennium.yaml"

// errUsage marks argument errors; usage has already been printed.
var errUsage = errors.New("usage")

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "serve":
		err = runServe(args[1:], stdout, stderr)
	case "plugins":
		err = runPlugins(args[1:], stdout, stderr)
	case "themes":
		err = runThemes(args[1:], stdout, stderr)
	case "config":
		err = runConfig(args[1:], stdout, stderr)
	case "theme_config":
		err = runThemeConfig(args[1:], stdout, stderr)
	case "steam":
		err = runSteam(args[1:], stdout, stderr)
	case "devhost":
		err = runDevHost(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

// =============================================================================
// 🔧 公共参数与配置
// =============================================================================

// newFlagSet returns a flag set carrying the shared -config flag.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	def := os.Getenv("MILLENNIUM_CONFIG")
	if def == "" {
		def = defaultConfigPath
	}
	path := fs.String("config", def, "Path to config file (YAML)")
	return fs, path
}

// loadConfig loads and validates the configuration at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewLoader().
		WithConfigPath(path).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Millennium %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Millennium - plugin loader for the Steam client

Usage:
  millennium <command> [options]

Commands:
  serve                        Start enabled plugins and keep them running
  plugins enable <name>        Enable a plugin
  plugins disable <name>       Disable a plugin
  plugins list [-e|-d]         List all, enabled (-e) or disabled (-d) plugins
  plugins scan                 Register plugins found in the plugins directory
  themes use <name>            Select the active theme
  themes list                  List installed themes
  config [field [value]]       Show or change configuration fields
  theme_config field [value]   Show or change a theme setting
  steam restart                Restart the Steam client
  steam reload                 Reload the Steam user interface
  devhost                      Serve stand-in browser contexts for development
  version                      Show version information
  help                         Show this help message

Every command accepts -config <path> (default millennium.yaml, or
$MILLENNIUM_CONFIG). Settings can be overridden with MILLENNIUM_* variables.

Examples:
  millennium serve -config /etc/millennium/millennium.yaml
  millennium plugins list -e
  millennium config bridge.max_attempts 8
  millennium theme_config accent "#ff00ff"`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
