package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	_ "wiki-data-pipeline/internal/api/docs"
	"wiki-data-pipeline/internal/api/handler"
	"wiki-data-pipeline/pkg/router"
)

func RegisterRoutes(r *router.Router, h *handler.PipelineHandler) {
	r.GET("/healthz", h.Health)
	r.GET("/api/v1/jobs", h.ListJobs)
	r.POST("/api/v1/jobs/*/runs", h.TriggerRun)
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/steps", h.GetRunSteps)
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/*/logs", h.GetRunLogs)
	// Generic run route last
	r.GET("/api/v1/runs/*", h.GetRun)
	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.WrapHandler))
}
