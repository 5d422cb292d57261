// Package report renders derived outputs of a finished run: the rounded
// summary table, the xlsx workbook and the PNG charts.
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"go-school-projections/internal/model"
	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"
)

// Default output file names
const (
	SummaryFile      = "regional_school_summary_table.csv"
	WorkbookFile     = "regional_school_projections.xlsx"
	TrendsChartFile  = "regional_school_trends.png"
	DeclineChartFile = "regional_school_decline_map.png"
	RatioChartFile   = "student_school_ratio.png"
)

var (
	_ pipeline.Reporter = (*SummaryReporter)(nil)
	_ pipeline.Reporter = (*WorkbookReporter)(nil)
	_ pipeline.Reporter = (*ChartsReporter)(nil)
)

// writeOutput creates fileName in the run's output directory and records the
// outcome. The returned error is the one stored in the result.
func writeOutput(outputs *utils.OutputManager, runID, name, fileName string, count int, write func(io.Writer) error) (model.ExportResult, error) {
	result := model.ExportResult{
		Type:        utils.FileType(fileName),
		Name:        name,
		RecordCount: count,
		Timestamp:   time.Now().UTC(),
	}
	path, err := outputs.FilePath(runID, fileName)
	if err == nil {
		result.Path = path
		err = createFile(path, write)
	}
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%s: %w", name, err)
	}
	result.Success = true
	return result, nil
}

func createFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
