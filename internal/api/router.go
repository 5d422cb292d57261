// Package api exposes stored runs over a read-only HTTP API.
package api

import (
	"go-school-projections/internal/api/handler"
	"go-school-projections/pkg/router"

	_ "go-school-projections/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.RunHandler) {
	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/*/errors", h.GetRunErrors)
	r.GET("/api/v1/runs/*/progress", h.GetProgress)
	r.GET("/api/v1/runs/*/projections", h.GetProjections)
	r.GET("/api/v1/runs/*/ratios", h.GetRatios)
	r.GET("/api/v1/runs/*/statistics", h.GetStatistics)
	r.GET("/api/v1/runs/*/summary", h.GetSummary)
	r.GET("/api/v1/runs/*/files", h.ListFiles)
	r.GET("/api/v1/runs/*/files/*", h.DownloadFile)
	// Generic run route last
	r.GET("/api/v1/runs/*", h.GetRun)

	r.GET("/swagger/*", router.HandlerFunc(httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json"))))
}

// NewRouter builds a router with every API route registered
func NewRouter(h *handler.RunHandler) *router.Router {
	r := router.New(h.Logger)
	RegisterRoutes(r, h)
	return r
}
