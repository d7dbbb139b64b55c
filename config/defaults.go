// =============================================================================
// 📦 Millennium 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/millennium/bridge"
	"github.com/BaSui01/millennium/host"
	"github.com/BaSui01/millennium/internal/telemetry"
	"github.com/BaSui01/millennium/loader"
	"github.com/BaSui01/millennium/settings"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Settings:  settings.DefaultConfig(),
		Bridge:    bridge.DefaultConfig(),
		Loader:    loader.DefaultConfig(),
		Host:      host.DefaultConfig(),
		Theme:     DefaultThemeConfig(),
		Server:    DefaultServerConfig(),
		DevHost:   DefaultDevHostConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultThemeConfig 返回默认主题配置
func DefaultThemeConfig() ThemeConfig {
	return ThemeConfig{
		Path:          "theme.yaml",
		Dir:           "skins",
		Watch:         true,
		WatchDebounce: 100 * time.Millisecond,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        12040,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDevHostConfig 监听与 loader.ipc_url 默认值相同的端口
func DefaultDevHostConfig() DevHostConfig {
	return DevHostConfig{Addr: "127.0.0.1:12039"}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}
