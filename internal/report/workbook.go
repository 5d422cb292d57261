package report

import (
	"context"
	"fmt"
	"io"

	"go-school-projections/internal/model"
	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook
const (
	SheetSummary     = "Summary"
	SheetProjections = "Projections"
	SheetRatios      = "Ratios"
)

func cellValue(f model.Float) interface{} {
	if !f.Valid {
		return nil
	}
	return f.Value
}

type sheetWriter struct {
	f      *excelize.File
	sheet  string
	row    int
	header int
}

func (sw *sheetWriter) write(values []interface{}) error {
	sw.row++
	cell, err := excelize.CoordinatesToCellName(1, sw.row)
	if err != nil {
		return err
	}
	return sw.f.SetSheetRow(sw.sheet, cell, &values)
}

func (sw *sheetWriter) writeHeader(cols []string, width float64) error {
	values := make([]interface{}, len(cols))
	for i, c := range cols {
		values[i] = c
	}
	if err := sw.write(values); err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, sw.row)
	last, _ := excelize.CoordinatesToCellName(len(cols), sw.row)
	if err := sw.f.SetCellStyle(sw.sheet, first, last, sw.header); err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(cols))
	return sw.f.SetColWidth(sw.sheet, "A", lastCol, width)
}

// BuildWorkbook lays a run out on three sheets: the rounded summary, every
// projection row and the per-region ratio bounds.
func BuildWorkbook(rep *model.RunReport) (*excelize.File, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, s := range []string{SheetProjections, SheetRatios} {
		if _, err := f.NewSheet(s); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := fillWorkbook(f, bold, rep); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func fillWorkbook(f *excelize.File, bold int, rep *model.RunReport) error {
	h := rep.Run.Horizons

	summary := &sheetWriter{f: f, sheet: SheetSummary, header: bold}
	if err := summary.writeHeader(append(SummaryHeader(h), "Category"), 20); err != nil {
		return err
	}
	for _, r := range BuildSummary(rep.Statistics) {
		if err := summary.write([]interface{}{r.Region, r.Baseline, r.AtH1, r.PctH1, r.AtH2, r.PctH2, r.Category}); err != nil {
			return err
		}
	}

	proj := &sheetWriter{f: f, sheet: SheetProjections, header: bold}
	if err := proj.writeHeader(pipeline.ProjectionColumns, 14); err != nil {
		return err
	}
	for _, p := range rep.Projections {
		err := proj.write([]interface{}{
			p.Region, p.Year,
			cellValue(p.SchoolCount), cellValue(p.Enrollment), cellValue(p.ChildPopulation6to10),
			p.IsProjected,
			cellValue(p.EnrollmentProxy), cellValue(p.Ratio),
			cellValue(p.RatioHat), cellValue(p.RatioLCL), cellValue(p.RatioUCL),
			cellValue(p.ScuoleHat), cellValue(p.ScuoleLCL), cellValue(p.ScuoleUCL),
		})
		if err != nil {
			return err
		}
	}

	ratios := &sheetWriter{f: f, sheet: SheetRatios, header: bold}
	if err := ratios.writeHeader([]string{"region", "ratio_min", "ratio_median", "ratio_max", "samples"}, 16); err != nil {
		return err
	}
	for _, r := range rep.Ratios {
		if err := ratios.write([]interface{}{r.Region, r.Min, r.Median, r.Max, r.Samples}); err != nil {
			return err
		}
	}

	for _, s := range []string{SheetSummary, SheetProjections, SheetRatios} {
		if err := f.SetPanes(s, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("freezing header of %s: %w", s, err)
		}
	}
	f.SetActiveSheet(0)
	return nil
}

// WorkbookReporter writes the xlsx workbook
type WorkbookReporter struct {
	FileName string
}

func (wr *WorkbookReporter) Name() string { return "workbook" }

func (wr *WorkbookReporter) Render(_ context.Context, rep *model.RunReport, outputs *utils.OutputManager) ([]model.ExportResult, error) {
	name := wr.FileName
	if name == "" {
		name = WorkbookFile
	}
	book, err := BuildWorkbook(rep)
	if err != nil {
		return nil, fmt.Errorf("building workbook: %w", err)
	}
	defer book.Close()

	res, err := writeOutput(outputs, rep.Run.ID, wr.Name(), name, len(rep.Projections), func(w io.Writer) error {
		_, err := book.WriteTo(w)
		return err
	})
	return []model.ExportResult{res}, err
}
