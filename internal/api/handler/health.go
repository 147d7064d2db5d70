package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gormscope/gormscope/consts"
	"github.com/gormscope/gormscope/internal/database"
	"github.com/gormscope/gormscope/pkg/logger"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker pings the database engines
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Monitor() *database.Monitor
}

// HealthHandler handles health and status requests
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// ServerStatusResponse represents the server status response
type ServerStatusResponse struct {
	Version     string                  `json:"version"`
	BuildTime   string                  `json:"build_time"`
	GitCommit   string                  `json:"git_commit"`
	Uptime      int64                   `json:"uptime"` // seconds
	StartedAt   string                  `json:"started_at"`
	GoVersion   string                  `json:"go_version"`
	MemoryUsage int64                   `json:"memory_usage"` // bytes
	Engines     []database.EngineStatus `json:"engines,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.checker.HealthCheck(ctx); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status handles GET /status
func (h *HealthHandler) Status(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	build := consts.Build()
	status := ServerStatusResponse{
		Version:     build.Version,
		BuildTime:   build.BuildTime,
		GitCommit:   build.GitCommit,
		Uptime:      int64(consts.Uptime().Seconds()),
		StartedAt:   build.StartedAt.Format(time.RFC3339),
		GoVersion:   runtime.Version(),
		MemoryUsage: int64(memStats.Alloc),
	}
	if m := h.checker.Monitor(); m != nil {
		status.Engines = m.Status()
	}

	c.JSON(http.StatusOK, status)
}
