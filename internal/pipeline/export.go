package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go-school-projections/internal/model"
	"go-school-projections/pkg/utils"

	"go.uber.org/zap"
)

// ProjectionColumns is the header of the projections table
var ProjectionColumns = []string{
	"region", "year", "school_count", "enrollment", "children_6_10", "is_projected",
	"enrollment_proxy", "ratio", "ratio_hat", "ratio_lcl", "ratio_ucl",
	"scuole_hat", "scuole_lcl", "scuole_ucl",
}

// StatisticsColumns returns the decline table header with the run's years
// substituted, e.g. schools_2022 and pct_change_2050.
func StatisticsColumns(h model.Horizons) []string {
	return []string{
		"region",
		fmt.Sprintf("schools_%d", h.Baseline),
		fmt.Sprintf("schools_%d", h.H1),
		fmt.Sprintf("schools_%d", h.H2),
		fmt.Sprintf("change_%d", h.H1),
		fmt.Sprintf("pct_change_%d", h.H1),
		fmt.Sprintf("change_%d", h.H2),
		fmt.Sprintf("pct_change_%d", h.H2),
		"category",
	}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteProjectionsCSV writes rows in the given order. Missing values are
// empty cells.
func WriteProjectionsCSV(w io.Writer, rows []model.ProjectionRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ProjectionColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			r.Region,
			strconv.Itoa(r.Year),
			r.SchoolCount.String(),
			r.Enrollment.String(),
			r.ChildPopulation6to10.String(),
			strconv.FormatBool(r.IsProjected),
			r.EnrollmentProxy.String(),
			r.Ratio.String(),
			r.RatioHat.String(),
			r.RatioLCL.String(),
			r.RatioUCL.String(),
			r.ScuoleHat.String(),
			r.ScuoleLCL.String(),
			r.ScuoleUCL.String(),
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteStatisticsCSV writes decline statistics in the given order.
func WriteStatisticsCSV(w io.Writer, stats []model.DeclineStatistic, h model.Horizons) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(StatisticsColumns(h)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, s := range stats {
		rec := []string{
			s.Region,
			formatFloat(s.Baseline),
			formatFloat(s.AtH1),
			formatFloat(s.AtH2),
			formatFloat(s.ChangeH1),
			formatFloat(s.PctChangeH1),
			formatFloat(s.ChangeH2),
			formatFloat(s.PctChangeH2),
			s.Category,
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ------------------- Export Manager -------------------

// ExportManager writes a run's tables to files and, when a recorder is
// attached, to the database
type ExportManager struct {
	RunID    string
	Outputs  *utils.OutputManager
	Recorder Recorder
	Logger   *zap.Logger

	ProjectionsFile string
	StatisticsFile  string
	JSON            bool
}

// Export writes every configured output and reports one result per target.
// A failed target does not stop the others.
func (em *ExportManager) Export(ctx context.Context, report *model.RunReport) []model.ExportResult {
	var results []model.ExportResult
	h := report.Run.Horizons

	results = append(results, em.exportFile("projections", em.ProjectionsFile, len(report.Projections), func(w io.Writer) error {
		return WriteProjectionsCSV(w, report.Projections)
	}))
	results = append(results, em.exportFile("statistics", em.StatisticsFile, len(report.Statistics), func(w io.Writer) error {
		return WriteStatisticsCSV(w, report.Statistics, h)
	}))

	if em.JSON {
		results = append(results, em.exportFile("report", "run_report.json", len(report.Statistics), func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}))
	}

	if em.Recorder != nil {
		results = append(results, em.exportToDatabase(ctx, report)...)
	}
	return results
}

func (em *ExportManager) exportFile(name, fileName string, count int, write func(io.Writer) error) model.ExportResult {
	result := model.ExportResult{
		Type:        utils.FileType(fileName),
		Name:        name,
		RecordCount: count,
		Timestamp:   time.Now().UTC(),
	}

	path, err := em.Outputs.FilePath(em.RunID, fileName)
	if err == nil {
		result.Path = path
		err = writeFile(path, write)
	}
	if err != nil {
		result.Error = err.Error()
		em.Logger.Error("export failed", zap.String("output", name), zap.Error(err))
		return result
	}
	result.Success = true
	em.Logger.Info("exported", zap.String("output", name), zap.String("path", path), zap.Int("records", count))
	return result
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// exportToDatabase persists projections and statistics
func (em *ExportManager) exportToDatabase(ctx context.Context, report *model.RunReport) []model.ExportResult {
	now := time.Now().UTC()
	results := []model.ExportResult{
		{Type: "database", Name: "projections", Path: "projections", RecordCount: len(report.Projections), Timestamp: now},
		{Type: "database", Name: "statistics", Path: "decline_statistics", RecordCount: len(report.Statistics), Timestamp: now},
	}
	errs := []error{
		em.Recorder.SaveProjections(ctx, em.RunID, report.Projections),
		em.Recorder.SaveStatistics(ctx, em.RunID, report.Statistics),
	}
	for i, err := range errs {
		if err != nil {
			results[i].Error = err.Error()
			em.Logger.Error("database export failed", zap.String("table", results[i].Path), zap.Error(err))
			continue
		}
		results[i].Success = true
	}
	return results
}
