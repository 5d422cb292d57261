package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go-school-projections/internal/model"
	"go-school-projections/internal/report"
	"go-school-projections/internal/store"
	"go-school-projections/pkg/utils"

	"go.uber.org/zap"
)

const runsPrefix = "/api/v1/runs/"

// RunReader is the read side of the run store
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	GetRun(ctx context.Context, id string) (model.Run, error)
	GetRunErrors(ctx context.Context, runID string) ([]model.ErrorDetail, error)
	GetStageProgress(ctx context.Context, runID string) ([]model.StageMetrics, error)
	GetProjections(ctx context.Context, runID, region string) ([]model.ProjectionRow, error)
	GetRatios(ctx context.Context, runID string) ([]model.RatioRecord, error)
	GetStatistics(ctx context.Context, runID string) ([]model.DeclineStatistic, error)
	GetOutputs(ctx context.Context, runID string) ([]model.ExportResult, error)
}

// RunHandler serves stored runs and their results
type RunHandler struct {
	Store   RunReader
	Outputs *utils.OutputManager
	Logger  *zap.Logger
}

// NewRunHandler creates a handler over the given store
func NewRunHandler(s RunReader, outputs *utils.OutputManager, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{Store: s, Outputs: outputs, Logger: logger}
}

// FileInfo describes one output of a run
type FileInfo struct {
	model.ExportResult
	DownloadURL string `json:"download_url,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}

// runID extracts the run ID from /api/v1/runs/{id}{suffix}
func runID(path, suffix string) (string, bool) {
	if !strings.HasPrefix(path, runsPrefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := path[len(runsPrefix) : len(path)-len(suffix)]
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// lookup resolves the run ID of the request and checks the run exists.
// It writes the error response itself and reports whether to continue.
func (h *RunHandler) lookup(w http.ResponseWriter, r *http.Request, suffix string) (model.Run, bool) {
	id, ok := runID(r.URL.Path, suffix)
	if !ok {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return model.Run{}, false
	}
	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return run, false
	}
	if err != nil {
		h.fail(w, "failed to get run", err)
		return run, false
	}
	return run, true
}

func (h *RunHandler) fail(w http.ResponseWriter, msg string, err error) {
	h.Logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// ListRuns lists stored runs
// @Summary List runs
// @Description List projection runs, most recent first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs"
// @Success 200 {object} map[string]interface{} "Runs"
// @Failure 400 {object} map[string]interface{} "Invalid limit"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, "failed to list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun returns one run with its stage progress
// @Summary Get run
// @Description Retrieve a run, its reference years and counters
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.Run
// @Failure 400 {object} map[string]interface{} "Invalid run ID"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunErrors returns the non-fatal errors of a run
// @Summary Get run errors
// @Description Retrieve per-region and per-stage errors recorded during a run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs/{id}/errors [get]
func (h *RunHandler) GetRunErrors(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/errors")
	if !ok {
		return
	}
	errs, err := h.Store.GetRunErrors(r.Context(), run.ID)
	if err != nil {
		h.fail(w, "failed to get run errors", err)
		return
	}
	rep := model.RunReport{Errors: errs}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"errors":  errs,
		"count":   len(errs),
		"skipped": rep.SkippedRegions(),
	})
}

// GetProgress returns the stage metrics of a run
// @Summary Get run progress
// @Description Retrieve per-stage status, row counts and timings
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Stage progress"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/progress [get]
func (h *RunHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/progress")
	if !ok {
		return
	}
	stages, err := h.Store.GetStageProgress(r.Context(), run.ID)
	if err != nil {
		h.fail(w, "failed to get stage progress", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"status": run.Status,
		"stages": stages,
	})
}

// GetProjections returns the projection table of a run
// @Summary Get projections
// @Description Retrieve historical and projected rows with ratio bounds and school estimates
// @Tags results
// @Produce json
// @Param id path string true "Run ID"
// @Param region query string false "Restrict to one region"
// @Success 200 {object} map[string]interface{} "Projection rows"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/projections [get]
func (h *RunHandler) GetProjections(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/projections")
	if !ok {
		return
	}
	region := strings.TrimSpace(r.URL.Query().Get("region"))
	if region != "" {
		if canonical, found := model.CanonicalRegion(region); found {
			region = canonical
		}
	}
	rows, err := h.Store.GetProjections(r.Context(), run.ID, region)
	if err != nil {
		h.fail(w, "failed to get projections", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      run.ID,
		"region":      region,
		"projections": rows,
		"count":       len(rows),
	})
}

// GetRatios returns the per-region ratio bounds of a run
// @Summary Get ratios
// @Description Retrieve the historical enrollment-to-school ratio bounds of each region
// @Tags results
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Ratio bounds"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/ratios [get]
func (h *RunHandler) GetRatios(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/ratios")
	if !ok {
		return
	}
	ratios, err := h.Store.GetRatios(r.Context(), run.ID)
	if err != nil {
		h.fail(w, "failed to get ratios", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"ratios": ratios,
		"count":  len(ratios),
	})
}

// GetStatistics returns the decline statistics of a run
// @Summary Get decline statistics
// @Description Retrieve per-region change at both horizons, sorted by first-horizon change
// @Tags results
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Decline statistics"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/statistics [get]
func (h *RunHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/statistics")
	if !ok {
		return
	}
	stats, err := h.Store.GetStatistics(r.Context(), run.ID)
	if err != nil {
		h.fail(w, "failed to get statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":     run.ID,
		"horizons":   run.Horizons,
		"statistics": stats,
		"count":      len(stats),
	})
}

// GetSummary returns the rounded summary table of a run
// @Summary Get summary table
// @Description Retrieve the rounded per-region summary with its column headers
// @Tags results
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Summary table"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/summary [get]
func (h *RunHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/summary")
	if !ok {
		return
	}
	stats, err := h.Store.GetStatistics(r.Context(), run.ID)
	if err != nil {
		h.fail(w, "failed to get statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  run.ID,
		"columns": report.SummaryHeader(run.Horizons),
		"rows":    report.BuildSummary(stats),
	})
}

// ListFiles lists the outputs written by a run
// @Summary List run files
// @Description List every output of a run with its download URL
// @Tags files
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Files"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/files [get]
func (h *RunHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r, "/files")
	if !ok {
		return
	}
	outputs, err := h.Store.GetOutputs(r.Context(), run.ID)
	if err != nil {
		h.fail(w, "failed to get outputs", err)
		return
	}
	files := make([]FileInfo, 0, len(outputs))
	for _, o := range outputs {
		info := FileInfo{ExportResult: o}
		if o.Success && o.Type != "database" && h.Outputs != nil {
			info.DownloadURL = h.Outputs.DownloadURL(run.ID, o.Path)
		}
		files = append(files, info)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": run.ID,
		"files":  files,
		"count":  len(files),
	})
}

// DownloadFile serves one output file of a run
// @Summary Download file
// @Description Download an output file (CSV, JSON, XLSX or PNG) written by a run
// @Tags files
// @Produce octet-stream
// @Param id path string true "Run ID"
// @Param name path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 400 {object} map[string]interface{} "Invalid URL format"
// @Failure 404 {object} map[string]interface{} "File not found"
// @Router /runs/{id}/files/{name} [get]
func (h *RunHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	// URL format: /api/v1/runs/{id}/files/{name}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 6 || pathParts[4] != "files" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid URL format: %s", r.URL.Path))
		return
	}
	id, fileName := pathParts[3], pathParts[5]

	outputs, err := h.Store.GetOutputs(r.Context(), id)
	if err != nil {
		h.fail(w, "failed to get outputs", err)
		return
	}

	// only files the run recorded are served, never arbitrary paths
	var path string
	for _, o := range outputs {
		if o.Success && o.Type != "database" && filepath.Base(o.Path) == fileName {
			path = o.Path
		}
	}
	if path == "" {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if _, err := utils.FileSize(path); err != nil {
		writeError(w, http.StatusNotFound, "File no longer exists")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Type", utils.ContentType(fileName))
	http.ServeFile(w, r, path)
}
