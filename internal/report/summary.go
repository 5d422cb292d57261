package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"go-school-projections/internal/model"
	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// SummaryRow is one rounded line of the summary table
type SummaryRow struct {
	Region   string
	Baseline int64
	AtH1     int64
	PctH1    float64
	AtH2     int64
	PctH2    float64
	Category string
}

// BuildSummary rounds the decline statistics for presentation: school counts
// to integers, percentages to one decimal, ordered by the first horizon's
// change.
func BuildSummary(stats []model.DeclineStatistic) []SummaryRow {
	sorted := make([]model.DeclineStatistic, len(stats))
	copy(sorted, stats)
	pipeline.SortStatistics(sorted)

	rows := make([]SummaryRow, len(sorted))
	for i, s := range sorted {
		rows[i] = SummaryRow{
			Region:   s.Region,
			Baseline: int64(math.Round(s.Baseline)),
			AtH1:     int64(math.Round(s.AtH1)),
			PctH1:    model.Some(s.PctChangeH1).Round(1).Value,
			AtH2:     int64(math.Round(s.AtH2)),
			PctH2:    model.Some(s.PctChangeH2).Round(1).Value,
			Category: s.Category,
		}
	}
	return rows
}

// SummaryHeader names the columns after the run's years.
func SummaryHeader(h model.Horizons) []string {
	return []string{
		"Region",
		strconv.Itoa(h.Baseline),
		fmt.Sprintf("%d (Projected)", h.H1),
		fmt.Sprintf("Change %d (%%)", h.H1),
		fmt.Sprintf("%d (Projected)", h.H2),
		fmt.Sprintf("Change %d (%%)", h.H2),
	}
}

func formatPct(p float64) string { return strconv.FormatFloat(p, 'f', 1, 64) }

// WriteSummaryCSV writes the rounded summary table.
func WriteSummaryCSV(w io.Writer, rows []SummaryRow, h model.Horizons) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(SummaryHeader(h)); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Region,
			strconv.FormatInt(r.Baseline, 10),
			strconv.FormatInt(r.AtH1, 10),
			formatPct(r.PctH1),
			strconv.FormatInt(r.AtH2, 10),
			formatPct(r.PctH2),
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// RenderTable prints the summary rows as a console table.
func RenderTable(w io.Writer, title string, rows []SummaryRow, h model.Horizons) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}

	header := table.Row{}
	for _, col := range SummaryHeader(h) {
		header = append(header, col)
	}
	header = append(header, "Category")
	t.AppendHeader(header)

	for _, r := range rows {
		t.AppendRow(table.Row{r.Region, r.Baseline, r.AtH1, formatPct(r.PctH1), r.AtH2, formatPct(r.PctH2), r.Category})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}

// PrintRunSummary writes the console digest of a run: the top decliners,
// the number of regions per category and the skipped regions.
func PrintRunSummary(w io.Writer, rep *model.RunReport, topN int) {
	h := rep.Run.Horizons
	if len(rep.Statistics) == 0 {
		_, _ = fmt.Fprintln(w, "(no regions projected)")
	} else {
		top := pipeline.TopDecliners(rep.Statistics, topN)
		RenderTable(w, fmt.Sprintf("Top %d regions by projected decline %d-%d", len(top), h.Baseline, h.H1), BuildSummary(top), h)

		counts := pipeline.CountByCategory(rep.Statistics)
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Category", "Regions"})
		for _, c := range pipeline.Categories {
			if n := counts[c]; n > 0 {
				t.AppendRow(table.Row{c, n})
			}
		}
		t.Render()
	}

	if skipped := rep.SkippedRegions(); len(skipped) > 0 {
		_, _ = fmt.Fprintf(w, "Skipped regions (%d):\n", len(skipped))
		for _, e := range rep.Errors {
			if e.Kind == model.KindInsufficientHistory || e.Kind == model.KindMissingHorizonData {
				_, _ = fmt.Fprintf(w, "  - %s: %s\n", e.Region, e.Message)
			}
		}
	}
}

// SummaryReporter writes the rounded summary CSV
type SummaryReporter struct {
	FileName string
}

func (s *SummaryReporter) Name() string { return "summary" }

func (s *SummaryReporter) Render(_ context.Context, rep *model.RunReport, outputs *utils.OutputManager) ([]model.ExportResult, error) {
	name := s.FileName
	if name == "" {
		name = SummaryFile
	}
	rows := BuildSummary(rep.Statistics)
	res, err := writeOutput(outputs, rep.Run.ID, s.Name(), name, len(rows), func(w io.Writer) error {
		return WriteSummaryCSV(w, rows, rep.Run.Horizons)
	})
	return []model.ExportResult{res}, err
}
