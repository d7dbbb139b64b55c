// Copyright (c) Millennium Authors.
// Licensed under the MIT License.

/*
Package main 提供 Millennium 插件加载器的命令行入口。

# 概述

cmd/millennium 是 Millennium 的可执行入口：启动已启用插件的后端与前端、
管理插件注册表和主题、读写配置，并可控制宿主客户端。配置来自 YAML 文件
与 MILLENNIUM_* 环境变量，日志使用 zap。

# 子命令

  - serve          : 连接共享上下文，启动后端与前端，打印活动插件表
  - plugins        : enable / disable / list [-e|-d] / scan
  - themes         : use / list
  - config         : 按点分字段读取或写入配置文件
  - theme_config   : 读取或写入带类型推断的主题设置
  - steam          : restart / reload
  - devhost        : 开发用的上下文模拟器，接收桥接消息

# 主要能力

  - 状态服务：仅监听 127.0.0.1，提供 /health、/status、/metrics
  - 主题监听：主题文件变更后向所有上下文广播 theme.changed
  - 优雅关闭：信号监听 → 停止监听 → 关闭 HTTP → 关闭加载器 → 关闭 OTel
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
