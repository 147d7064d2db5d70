// Package router sets up the API routes for the application.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/gormscope/gormscope/consts"
	"github.com/gormscope/gormscope/internal/api/handler"
	"github.com/gormscope/gormscope/internal/api/middleware"
	"github.com/gormscope/gormscope/internal/config"
	"github.com/gormscope/gormscope/internal/database"
)

// Setup configures all API routes. Every route runs inside a database
// session opened by the DBSession middleware.
func Setup(r *gin.Engine, db *database.DB, cfg *config.Config) {
	// Recovery stays outermost so session teardown runs before the panic is recovered
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))
	r.Use(otelgin.Middleware(serviceName(cfg)))
	r.Use(middleware.DBSession(db))

	healthHandler := handler.NewHealthHandler(db)
	r.GET("/health", healthHandler.Health)
	r.GET("/status", healthHandler.Status)

	taskHandler := handler.NewTaskHandler(db)
	tasks := r.Group("/tasks")
	{
		tasks.GET("", taskHandler.ListTasks)
		tasks.POST("", taskHandler.CreateTask)
		tasks.GET("/:id", taskHandler.GetTask)
		tasks.POST("/:id/toggle", taskHandler.ToggleTask)
		tasks.DELETE("/:id", taskHandler.DeleteTask)
	}
}

func serviceName(cfg *config.Config) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return consts.ServiceName
}
