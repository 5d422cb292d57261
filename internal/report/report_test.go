package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-school-projections/internal/model"
	"go-school-projections/internal/pipeline"
	"go-school-projections/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testHorizons = model.Horizons{Cutoff: 1990, Baseline: 2022, H1: 2050, H2: 2080}

func record(region string, year int, schools, enrollment, children model.Float) model.RegionYearRecord {
	return model.RegionYearRecord{
		Region:               region,
		Year:                 year,
		SchoolCount:          schools,
		Enrollment:           enrollment,
		ChildPopulation6to10: children,
		IsProjected:          !(schools.Valid && year <= testHorizons.Baseline),
	}
}

// testReport projects Lazio (declining) and Molise (growing) through the
// real pipeline stages.
func testReport(t *testing.T) *model.RunReport {
	t.Helper()
	some, none := model.Some, model.None()
	records := []model.RegionYearRecord{
		record("Lazio", 2015, some(1000), some(300000), none),
		record("Lazio", 2022, some(1000), some(290000), none),
		record("Lazio", 2050, none, none, some(250000)),
		record("Lazio", 2080, none, none, some(200000)),
		record("Molise", 2020, some(100), some(10000), none),
		record("Molise", 2022, some(100), some(10000), none),
		record("Molise", 2050, none, none, some(12000)),
		record("Molise", 2080, none, none, some(15000)),
	}
	projected, err := pipeline.Project(context.Background(), records, testHorizons.Cutoff, 2)
	require.NoError(t, err)
	decline := pipeline.ComputeDecline(projected.Rows, testHorizons)
	require.Len(t, decline.Statistics, 2)

	return &model.RunReport{
		Run:         model.Run{ID: "run-1", Horizons: testHorizons},
		Projections: projected.Rows,
		Ratios:      projected.Ratios,
		Statistics:  decline.Statistics,
	}
}

func TestBuildSummaryRounds(t *testing.T) {
	rows := BuildSummary(testReport(t).Statistics)
	require.Len(t, rows, 2)
	assert.Equal(t, SummaryRow{
		Region: "Lazio", Baseline: 1000, AtH1: 847, PctH1: -15.3, AtH2: 678, PctH2: -32.2,
		Category: pipeline.CategoryStrongDecline,
	}, rows[0])
	assert.Equal(t, "Molise", rows[1].Region)
	assert.Equal(t, 20.0, rows[1].PctH1)
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, BuildSummary(testReport(t).Statistics), testHorizons))
	assert.Equal(t,
		"Region,2022,2050 (Projected),Change 2050 (%),2080 (Projected),Change 2080 (%)\n"+
			"Lazio,1000,847,-15.3,678,-32.2\n"+
			"Molise,100,120,20.0,150,50.0\n",
		buf.String())
}

func TestPrintRunSummary(t *testing.T) {
	rep := testReport(t)
	rep.Errors = []model.ErrorDetail{{
		Kind: model.KindInsufficientHistory, Region: "Molise", Message: "no school counts after 1990",
	}}

	var buf bytes.Buffer
	PrintRunSummary(&buf, rep, 1)
	out := buf.String()
	assert.Contains(t, out, "Top 1 regions by projected decline 2022-2050")
	assert.Contains(t, out, "Lazio")
	assert.Contains(t, out, "-15.3")
	assert.Contains(t, out, pipeline.CategoryStrongDecline)
	assert.Contains(t, out, "Skipped regions (1):")
	assert.Contains(t, out, "Molise: no school counts after 1990")

	buf.Reset()
	PrintRunSummary(&buf, &model.RunReport{}, 10)
	assert.Equal(t, "(no regions projected)\n", buf.String())
}

func TestSummaryReporter(t *testing.T) {
	dir := t.TempDir()
	results, err := (&SummaryReporter{}).Render(context.Background(), testReport(t), utils.NewOutputManager(dir, false))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "csv", results[0].Type)
	assert.Equal(t, 2, results[0].RecordCount)

	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "Region,2022,"))
}

func TestWorkbookReporter(t *testing.T) {
	dir := t.TempDir()
	rep := testReport(t)
	results, err := (&WorkbookReporter{}).Render(context.Background(), rep, utils.NewOutputManager(dir, true))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Success, results[0].Error)
	assert.Equal(t, filepath.Join(dir, "run-1", WorkbookFile), results[0].Path)

	f, err := excelize.OpenFile(results[0].Path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetProjections, SheetRatios}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "Category", summary[0][6])
	assert.Equal(t, []string{"Lazio", "1000", "847", "-15.3", "678", "-32.2", pipeline.CategoryStrongDecline}, summary[1])

	projections, err := f.GetRows(SheetProjections)
	require.NoError(t, err)
	assert.Len(t, projections, len(rep.Projections)+1)
	assert.Equal(t, pipeline.ProjectionColumns, projections[0])

	ratios, err := f.GetRows(SheetRatios)
	require.NoError(t, err)
	require.Len(t, ratios, 3)
	assert.Equal(t, []string{"Lazio", "290", "295", "300", "2"}, ratios[1])
}

func TestChartsReporter(t *testing.T) {
	dir := t.TempDir()
	results, err := (&ChartsReporter{TopN: 2}).Render(context.Background(), testReport(t), utils.NewOutputManager(dir, false))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, r.Name)
		assert.Equal(t, "png", r.Type)
		size, err := utils.FileSize(r.Path)
		require.NoError(t, err)
		assert.Positive(t, size, r.Name)
	}
}

func TestChartsWithoutData(t *testing.T) {
	_, err := DeclineChart(nil, testHorizons)
	assert.Error(t, err)

	_, err = RatioChart(&model.RunReport{}, 5)
	assert.Error(t, err)

	results, err := (&ChartsReporter{}).Render(context.Background(), &model.RunReport{Run: model.Run{ID: "empty", Horizons: testHorizons}}, utils.NewOutputManager(t.TempDir(), false))
	assert.Error(t, err)
	// the trend chart has nothing to draw but still renders its axes
	assert.Len(t, results, 1)
}
