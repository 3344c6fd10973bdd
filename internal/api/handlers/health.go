package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/irfndi/celebrum-arbwatch/pkg/ccxt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var startTime = time.Now()

// HealthChecker is a dependency that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CCXTHealthChecker is the part of the ccxt client the health check uses.
type CCXTHealthChecker interface {
	HealthCheck(ctx context.Context) (*ccxt.HealthResponse, error)
}

// MonitorStatus reports which monitoring loops are running.
type MonitorStatus interface {
	IsServiceRunning(name string) bool
}

type HealthHandler struct {
	db       HealthChecker
	redis    HealthChecker
	ccxt     CCXTHealthChecker
	monitors MonitorStatus
	names    []string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Monitors  map[string]bool   `json:"monitors,omitempty"`
	Resources *ResourceUsage    `json:"resources,omitempty"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

// ResourceUsage is the host utilisation sampled at request time.
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// NewHealthHandler creates a health handler. db and redis may be nil when
// the configured statistics backend does not use them.
func NewHealthHandler(db, redis HealthChecker, ccxtClient CCXTHealthChecker, monitors MonitorStatus, monitorNames ...string) *HealthHandler {
	return &HealthHandler{
		db:       db,
		redis:    redis,
		ccxt:     ccxtClient,
		monitors: monitors,
		names:    monitorNames,
	}
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)

	if h.db != nil {
		services["database"] = healthStatus(h.db.HealthCheck(ctx))
	}
	if h.redis != nil {
		services["redis"] = healthStatus(h.redis.HealthCheck(ctx))
	}
	if h.ccxt != nil {
		services["ccxt"] = h.checkCCXTService(ctx)
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status != "healthy" {
			overallStatus = "unhealthy"
			break
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Resources: sampleResources(ctx),
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}
	if h.monitors != nil && len(h.names) > 0 {
		response.Monitors = make(map[string]bool, len(h.names))
		for _, name := range h.names {
			response.Monitors[name] = h.monitors.IsServiceRunning(name)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if overallStatus == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Liveness check for container restarts
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *HealthHandler) checkCCXTService(ctx context.Context) string {
	resp, err := h.ccxt.HealthCheck(ctx)
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	if resp != nil && resp.Status != "" && resp.Status != "ok" && resp.Status != "healthy" {
		return "unhealthy: status " + resp.Status
	}
	return "healthy"
}

func healthStatus(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// sampleResources reads host usage without blocking; a zero interval makes
// gopsutil compare against the previous call.
func sampleResources(ctx context.Context) *ResourceUsage {
	usage := &ResourceUsage{}
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		usage.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		usage.MemoryPercent = vm.UsedPercent
		usage.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	return usage
}
