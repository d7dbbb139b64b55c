// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil *Collector 可安全调用所有 Record 方法（不记录）。
type Collector struct {
	// 连接指标
	connectAttempts     *prometheus.CounterVec
	connectionStates    *prometheus.CounterVec
	openConnections     *prometheus.GaugeVec
	malformedMessages   *prometheus.CounterVec
	broadcastsTotal     *prometheus.CounterVec
	broadcastRecipients *prometheus.HistogramVec

	// 插件指标
	backendStarts *prometheus.CounterVec
	pluginPhases  *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到 reg（nil 时使用默认 Registerer）
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.connectAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of IPC handshake attempts",
		},
		[]string{"target", "result"},
	)

	c.connectionStates = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_state_transitions_total",
			Help:      "Total number of connection state transitions",
		},
		[]string{"target", "state"},
	)

	c.openConnections = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Number of open IPC connections",
		},
		[]string{"target"},
	)

	c.malformedMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Total number of dropped malformed messages",
		},
		[]string{"direction"},
	)

	c.broadcastsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts by channel and outcome",
		},
		[]string{"channel", "result"},
	)

	c.broadcastRecipients = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_recipients",
			Help:      "Number of connections a broadcast was delivered to",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"channel"},
	)

	c.backendStarts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_starts_total",
			Help:      "Total number of plugin backend start attempts",
		},
		[]string{"result"},
	)

	c.pluginPhases = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugin_phase",
			Help:      "Current phase of each plugin (1 for the active phase)",
		},
		[]string{"plugin", "phase"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔌 连接指标记录
// =============================================================================

// RecordConnectAttempt 记录一次握手尝试
func (c *Collector) RecordConnectAttempt(target string, ok bool) {
	if c == nil {
		return
	}
	c.connectAttempts.WithLabelValues(target, result(ok)).Inc()
}

// RecordConnectionState 记录连接状态转换；open 增减 open_connections
func (c *Collector) RecordConnectionState(target, from, to string) {
	if c == nil {
		return
	}
	c.connectionStates.WithLabelValues(target, to).Inc()
	switch {
	case to == "open" && from != "open":
		c.openConnections.WithLabelValues(target).Inc()
	case from == "open" && to != "open":
		c.openConnections.WithLabelValues(target).Dec()
	}
}

// RecordMalformedMessage 记录被丢弃的畸形消息（direction: inbound, outbound）
func (c *Collector) RecordMalformedMessage(direction string) {
	if c == nil {
		return
	}
	c.malformedMessages.WithLabelValues(direction).Inc()
}

// RecordBroadcast 记录一次广播及其送达连接数
func (c *Collector) RecordBroadcast(channel string, delivered int) {
	if c == nil {
		return
	}
	c.broadcastsTotal.WithLabelValues(channel, result(delivered > 0)).Inc()
	c.broadcastRecipients.WithLabelValues(channel).Observe(float64(delivered))
}

// =============================================================================
// 🧩 插件指标记录
// =============================================================================

// RecordBackendStart 记录一次后端启动尝试
func (c *Collector) RecordBackendStart(ok bool) {
	if c == nil {
		return
	}
	c.backendStarts.WithLabelValues(result(ok)).Inc()
}

// SetPluginPhase 将插件的当前阶段置 1，其它阶段置 0
func (c *Collector) SetPluginPhase(plugin, phase string, phases []string) {
	if c == nil {
		return
	}
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		c.pluginPhases.WithLabelValues(plugin, p).Set(v)
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
