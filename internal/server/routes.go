package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/millennium/bridge"
	"github.com/BaSui01/millennium/loader"
)

// PluginReporter is satisfied by *loader.Loader.
type PluginReporter interface {
	Report() []loader.ActivePluginReport
	StartTime() time.Time
}

// ConnectionLister is satisfied by *bridge.Bridge.
type ConnectionLister interface {
	Snapshot() []bridge.Connection
}

// Status is the body of GET /status.
type Status struct {
	StartTime   time.Time                   `json:"start_time"`
	Uptime      string                      `json:"uptime"`
	Ready       int                         `json:"ready"`
	Total       int                         `json:"total"`
	Plugins     []loader.ActivePluginReport `json:"plugins"`
	Connections []bridge.Connection         `json:"connections"`
}

// NewStatusHandler serves /health, /status and /metrics. A nil gatherer
// serves the default prometheus registry.
func NewStatusHandler(plugins PluginReporter, conns ConnectionLister, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildStatus(plugins, conns), logger)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func buildStatus(plugins PluginReporter, conns ConnectionLister) Status {
	reports := plugins.Report()
	start := plugins.StartTime()

	s := Status{
		StartTime:   start,
		Uptime:      time.Since(start).Round(time.Second).String(),
		Total:       len(reports),
		Plugins:     reports,
		Connections: conns.Snapshot(),
	}
	for _, r := range reports {
		if r.Phase == loader.PhaseReady {
			s.Ready++
		}
	}
	if s.Connections == nil {
		s.Connections = []bridge.Connection{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}
