/*
包 metrics 提供基于 Prometheus 的插件加载器指标采集能力，覆盖
IPC 连接、广播与插件后端三个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册到调用方传入的 Registerer（默认全局 Registerer）。所有指标按
namespace 隔离，nil Collector 的 Record 方法均为空操作，便于在
测试与未启用指标的场景下直接传 nil。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - 连接指标：握手尝试次数（按 target/result）、状态转换计数、
    当前打开连接数 Gauge、畸形消息丢弃计数。
  - 广播指标：按 shared/global/direct 通道统计广播结果与送达连接数。
  - 插件指标：后端启动尝试计数、每个插件的当前阶段 Gauge。
*/
package metrics
