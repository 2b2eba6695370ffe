package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/longrun-driver/internal/transport/http/handler"
	"github.com/ErlanBelekov/longrun-driver/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// NewRouter builds the local control panel for one run.
func NewRouter(logger *slog.Logger, runID string, healthHandler *handler.HealthHandler, runHandler *handler.RunHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(runID))
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/summary", runHandler.Summary)

	api := r.Group("/api")
	api.GET("/status", runHandler.Status)
	api.GET("/events", runHandler.Events)
	api.GET("/runs/:id/events", runHandler.RunEvents)

	return r
}
