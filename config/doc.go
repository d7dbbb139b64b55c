// Package config 提供 Millennium 的配置管理功能。
//
// 包含配置加载（默认值 → YAML 文件 → MILLENNIUM_* 环境变量）、
// 按点分路径读写单个配置项，以及监听文件变更的轮询监听器。
package config
