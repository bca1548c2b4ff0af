package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-ssm/internal/config"
	"github.com/23skdu/longbow-ssm/internal/cpu"
	"github.com/23skdu/longbow-ssm/internal/engine"
	"github.com/23skdu/longbow-ssm/internal/logger"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusCritical = "critical"

	maxAlerts = 100
)

// HealthStatus represents the health status of the system
type HealthStatus struct {
	Status        string     `json:"status"`
	Timestamp     time.Time  `json:"timestamp"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	System        SystemInfo `json:"system"`
	Engine        EngineInfo `json:"engine"`
	Alerts        []Alert    `json:"alerts"`
}

// SystemInfo contains system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	NumCPU       int    `json:"num_cpu"`
	Workers      int    `json:"workers"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// EngineInfo describes the served model
type EngineInfo struct {
	Block          string    `json:"block"`
	Variant        string    `json:"variant"`
	Layers         int       `json:"layers"`
	Channels       int       `json:"channels"`
	StateDim       int       `json:"state_dim"`
	Forwards       int64     `json:"forwards"`
	NonFinite      int64     `json:"non_finite_outputs"`
	LastForward    time.Time `json:"last_forward"`
	Parameters     int       `json:"parameters"`
	ParameterBytes int64     `json:"parameter_bytes"`
	WorkspaceBytes int64     `json:"workspace_bytes"`
}

// Alert represents a system alert
type Alert struct {
	Level     string    `json:"level"`     // info, warning, error, critical
	Component string    `json:"component"` // engine, flight, system
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// StatsSource reports engine counters.
type StatsSource interface {
	Stats() engine.Stats
}

// HealthMonitor serves /health, /status and /metrics for a running engine.
type HealthMonitor struct {
	startTime time.Time
	cfg       config.Config
	source    StatsSource

	mu     sync.RWMutex
	server *http.Server
	alerts []Alert
}

func NewHealthMonitor(cfg config.Config, source StatsSource) *HealthMonitor {
	return &HealthMonitor{
		startTime: time.Now(),
		cfg:       cfg,
		source:    source,
		alerts:    make([]Alert, 0),
	}
}

// Handler returns the monitoring mux.
func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.HandleFunc("/status", hm.handleDetailedStatus)
	mux.HandleFunc("/admin/alerts", hm.handleAlerts)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the monitoring endpoints until Stop.
func (hm *HealthMonitor) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	hm.mu.Lock()
	hm.server = server
	hm.mu.Unlock()

	logger.Log.Info("Health monitor starting", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitoring server: %w", err)
	}
	return nil
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	hm.mu.RLock()
	server := hm.server
	hm.mu.RUnlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// AddAlert records an alert; the newest maxAlerts are kept.
func (hm *HealthMonitor) AddAlert(level, component, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.alerts = append(hm.alerts, Alert{
		Level:     level,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(hm.alerts) > maxAlerts {
		hm.alerts = hm.alerts[len(hm.alerts)-maxAlerts:]
	}
	logger.Log.Warn("Alert raised", "level", level, "component", component, "message", message)
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()
	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, map[string]string{
		"status":    status.Status,
		"timestamp": status.Timestamp.Format(time.RFC3339),
	})
}

func (hm *HealthMonitor) handleDetailedStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, hm.Status())
}

func (hm *HealthMonitor) handleAlerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hm.mu.RLock()
		alerts := append([]Alert(nil), hm.alerts...)
		hm.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, alerts)
	case http.MethodDelete:
		hm.mu.Lock()
		hm.alerts = hm.alerts[:0]
		hm.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Error("Failed to encode response", "err", err)
	}
}

// Status computes the current health. Unresolved critical alerts make the
// service critical; error alerts or non-finite outputs degrade it.
func (hm *HealthMonitor) Status() HealthStatus {
	stats := hm.source.Stats()

	hm.mu.RLock()
	alerts := append([]Alert(nil), hm.alerts...)
	hm.mu.RUnlock()

	status := StatusHealthy
	if stats.NonFinite > 0 {
		status = StatusDegraded
	}
	for _, a := range alerts {
		if a.Level == "critical" {
			status = StatusCritical
			break
		}
		if a.Level == "error" {
			status = StatusDegraded
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(hm.startTime).Seconds(),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			OS:           runtime.GOOS,
			Arch:         runtime.GOARCH,
			NumCPU:       runtime.NumCPU(),
			Workers:      cpu.Parallelism(),
			MemoryUsedMB: int(m.Alloc / 1024 / 1024),
		},
		Engine: EngineInfo{
			Block:          hm.cfg.GetBlock(),
			Variant:        hm.cfg.SSMVariant(),
			Layers:         hm.cfg.Layers,
			Channels:       hm.cfg.Channels,
			StateDim:       hm.cfg.StateDim,
			Forwards:       stats.Forwards,
			NonFinite:      stats.NonFinite,
			LastForward:    stats.LastForward,
			Parameters:     stats.Parameters,
			ParameterBytes: stats.ParameterBytes,
			WorkspaceBytes: cpu.AllocatedBytes(),
		},
		Alerts: alerts,
	}
}
