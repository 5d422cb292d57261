package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
	// PerRun places each run's files under BaseOutputDir/<runID>
	PerRun bool
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string, perRun bool) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
		PerRun:        perRun,
	}
}

// RunDir creates (if needed) and returns the output directory of a run
func (om *OutputManager) RunDir(runID string) (string, error) {
	dir := om.BaseOutputDir
	if om.PerRun && runID != "" {
		dir = filepath.Join(om.BaseOutputDir, runID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// FilePath generates a full path for an output file
func (om *OutputManager) FilePath(runID, fileName string) (string, error) {
	dir, err := om.RunDir(runID)
	if err != nil {
		return "", err
	}
	// Clean the filename to remove any path separators
	return filepath.Join(dir, filepath.Base(fileName)), nil
}

// DownloadURL generates an API download URL for a file
func (om *OutputManager) DownloadURL(runID, fileName string) string {
	return fmt.Sprintf("/api/v1/runs/%s/files/%s", runID, filepath.Base(fileName))
}

// FileType determines the file type based on extension
func FileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx", ".xls":
		return "xlsx"
	case ".png":
		return "png"
	case ".svg":
		return "svg"
	default:
		return "unknown"
	}
}

// ContentType maps a file type onto its HTTP content type
func ContentType(fileName string) string {
	switch FileType(fileName) {
	case "csv":
		return "text/csv; charset=utf-8"
	case "json":
		return "application/json"
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "png":
		return "image/png"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

// FileSize returns the size of a file in bytes
func FileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}
